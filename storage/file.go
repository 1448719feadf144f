package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bioledger/bioregistry/interfaces"
)

// FileStore keeps artifact bytes on the local file system, one file per
// artifact named by its store key.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a file-backed artifact store rooted at baseDir,
// creating the directory if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves artifact bytes by key. Returns ErrArtifactNotFound if the
// file does not exist.
func (s *FileStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	path, err := s.artifactPath(cid)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}

	s.log.Debug("Fetched artifact from file",
		slog.String("path", path),
		slog.Int("size", len(data)))
	return data, nil
}

// Store saves artifact bytes under the hex of their SHA-256.
func (s *FileStore) Store(ctx context.Context, data []byte) (string, common.Hash, error) {
	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])

	path, err := s.artifactPath(cid)
	if err != nil {
		return "", common.Hash{}, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", common.Hash{}, fmt.Errorf("failed to write artifact file: %w", err)
	}

	s.log.Debug("Stored artifact in file",
		slog.String("path", path),
		slog.Int("size", len(data)))
	return cid, common.Hash(digest), nil
}

// Available checks that the base directory still exists.
func (s *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(s.baseDir)
	if err != nil {
		s.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI identifying this store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// artifactPath maps a store key to a file path, rejecting keys that would
// escape the base directory.
func (s *FileStore) artifactPath(cid string) (string, error) {
	if cid == "" || strings.ContainsAny(cid, "/\\") || cid == "." || cid == ".." {
		return "", fmt.Errorf("%w: bad artifact key %q", interfaces.ErrInvalidLocationURI, cid)
	}
	return filepath.Join(s.baseDir, cid), nil
}
