package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	shell "github.com/ipfs/go-ipfs-api"

	"github.com/bioledger/bioregistry/interfaces"
)

// IPFSStore keeps artifact bytes in IPFS, pinned on the configured node so
// garbage collection cannot drop committed artifacts. The store key is the
// CID minted at upload time; integrity is still established by re-hashing
// the fetched bytes, never by trusting the CID.
//
// Errors are classified by where they occur: a failure to reach the node at
// all is ErrStoreUnavailable, while an API-level error from a reachable node
// (bad or unresolvable CID) is ErrArtifactNotFound. Both fail closed at
// verification time.
type IPFSStore struct {
	sh      *shell.Shell
	apiAddr string
	timeout time.Duration
	log     *slog.Logger
}

// NewIPFSStore creates an IPFS-backed artifact store talking to the node API
// at apiAddr (host:port). A non-positive timeout disables the per-request
// deadline.
func NewIPFSStore(apiAddr string, timeout time.Duration, log *slog.Logger) *IPFSStore {
	return &IPFSStore{
		sh:      shell.NewShell(apiAddr),
		apiAddr: apiAddr,
		timeout: timeout,
		log:     log,
	}
}

func (s *IPFSStore) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Fetch retrieves artifact bytes by CID.
func (s *IPFSStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	ctx, cancel := s.requestCtx(ctx)
	defer cancel()

	start := time.Now()
	resp, err := s.sh.Request("cat", cid).Send(ctx)
	if err != nil {
		s.log.Warn("IPFS node unreachable",
			slog.String("api", s.apiAddr),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer resp.Close()

	if resp.Error != nil {
		// The node answered but could not resolve or read the content.
		s.log.Debug("Artifact not resolvable in IPFS",
			slog.String("cid", cid),
			slog.String("reason", resp.Error.Message),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %s: %s", interfaces.ErrArtifactNotFound, cid, resp.Error.Message)
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated read of %s: %v", interfaces.ErrStoreUnavailable, cid, err)
	}

	s.log.Debug("Fetched artifact from IPFS",
		slog.String("cid", cid),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds artifact bytes to IPFS, pinned, and returns the node-assigned
// CID along with the SHA-256 of the data.
func (s *IPFSStore) Store(ctx context.Context, data []byte) (string, common.Hash, error) {
	digest := sha256.Sum256(data)

	cid, err := s.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("%w: add failed: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.log.Debug("Stored artifact in IPFS",
		slog.String("cid", cid),
		slog.String("sha256", common.Hash(digest).Hex()))
	return cid, common.Hash(digest), nil
}

// Available probes the node API with a version request.
func (s *IPFSStore) Available(ctx context.Context) bool {
	ctx, cancel := s.requestCtx(ctx)
	defer cancel()

	resp, err := s.sh.Request("version").Send(ctx)
	if err != nil {
		s.log.Debug("IPFS store unavailable", "err", err)
		return false
	}
	defer resp.Close()
	return resp.Error == nil
}

// Name returns a unique identifier for this store.
func (s *IPFSStore) Name() string {
	return "ipfs-" + s.apiAddr
}

// LocationURI returns the URI identifying this store.
func (s *IPFSStore) LocationURI() string {
	return fmt.Sprintf("ipfs://%s/?timeout=%s", s.apiAddr, s.timeout)
}
