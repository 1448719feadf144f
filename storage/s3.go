package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bioledger/bioregistry/interfaces"
)

// S3Config parameterizes an S3-compatible artifact store.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store keeps artifact bytes in an S3-compatible bucket. Objects are laid
// out content-addressed with a two-level fan-out under the configured prefix
// (<prefix>/<cid[:2]>/<cid>) so listings stay manageable at registry scale.
// The stored object metadata records the digest for operators; reads never
// trust it, the verifier re-hashes the bytes.
type S3Store struct {
	api *s3.S3
	cfg S3Config
	log *slog.Logger
}

// NewS3Store creates an S3-backed artifact store. Credentials are optional;
// without them the store relies on the ambient AWS credential chain.
func NewS3Store(cfg S3Config, log *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", interfaces.ErrInvalidLocationURI)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		// Custom endpoints (minio and friends) need path-style addressing.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{api: s3.New(sess), cfg: cfg, log: log}, nil
}

// Fetch retrieves artifact bytes by key.
func (s *S3Store) Fetch(ctx context.Context, cid string) ([]byte, error) {
	key, err := s.objectKey(cid)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.classify(cid, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated read of %s: %v", interfaces.ErrStoreUnavailable, key, err)
	}

	s.log.Debug("Fetched artifact from S3", slog.String("key", key), slog.Int("size", len(data)))
	return data, nil
}

// Store saves artifact bytes under the hex of their SHA-256.
func (s *S3Store) Store(ctx context.Context, data []byte) (string, common.Hash, error) {
	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])

	key, err := s.objectKey(cid)
	if err != nil {
		return "", common.Hash{}, err
	}

	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			"artifact-sha256": aws.String(cid),
		},
	})
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("failed to upload artifact %s: %w", key, err)
	}

	s.log.Debug("Stored artifact in S3", slog.String("key", key), slog.Int("size", len(data)))
	return cid, common.Hash(digest), nil
}

// Available probes read access to the artifact prefix, not just the bucket's
// existence.
func (s *S3Store) Available(ctx context.Context) bool {
	_, err := s.api.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(s.cfg.Prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		s.log.Debug("S3 store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *S3Store) Name() string {
	if s.cfg.Prefix == "" {
		return "s3-" + s.cfg.Bucket
	}
	return "s3-" + s.cfg.Bucket + "-" + path.Base(s.cfg.Prefix)
}

// LocationURI returns the URI identifying this store.
func (s *S3Store) LocationURI() string {
	q := url.Values{}
	q.Set("region", s.cfg.Region)
	if s.cfg.Endpoint != "" {
		q.Set("endpoint", s.cfg.Endpoint)
	}
	u := url.URL{Scheme: "s3", Host: s.cfg.Bucket, Path: "/" + s.cfg.Prefix, RawQuery: q.Encode()}
	return u.String()
}

// objectKey maps a store key onto the fan-out layout. Keys shorter than the
// fan-out width cannot have been minted by Store and are rejected outright.
func (s *S3Store) objectKey(cid string) (string, error) {
	if len(cid) < 3 {
		return "", fmt.Errorf("%w: bad artifact key %q", interfaces.ErrInvalidLocationURI, cid)
	}
	return path.Join(s.cfg.Prefix, cid[:2], cid), nil
}

// classify maps an S3 API error onto the artifact-store taxonomy: a served
// 404/NoSuchKey means the node answered and the artifact is absent; anything
// the service did not answer resolves to unavailable, which fails closed at
// verification time.
func (s *S3Store) classify(cid, key string, err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		if reqErr.Code() == s3.ErrCodeNoSuchKey || reqErr.StatusCode() == http.StatusNotFound {
			s.log.Debug("Artifact not found in S3", slog.String("key", key))
			return fmt.Errorf("%w: %s", interfaces.ErrArtifactNotFound, cid)
		}
		return fmt.Errorf("s3 rejected fetch of %s: %w", key, err)
	}
	var apiErr awserr.Error
	if errors.As(err, &apiErr) && apiErr.Code() == s3.ErrCodeNoSuchKey {
		return fmt.Errorf("%w: %s", interfaces.ErrArtifactNotFound, cid)
	}
	return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
}
