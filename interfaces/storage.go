package interfaces

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrArtifactNotFound is returned when the requested artifact does not
	// exist in the store.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrStoreUnavailable is returned when an artifact store cannot be
	// reached. Under the fail-closed policy this resolves to
	// ARTIFACT_UNAVAILABLE, never to a pass.
	ErrStoreUnavailable = errors.New("artifact store unavailable")

	// ErrInvalidLocationURI is returned for malformed or unsupported store
	// location URIs. Format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid store location URI")
)

// ArtifactStore provides content-addressed storage for the off-chain bytes
// referenced by credentials. The registry core only depends on the integrity
// contract: fetch by key, bytes or not-found. Server-returned metadata is
// never trusted; integrity is always established by re-hashing the bytes.
type ArtifactStore interface {
	// Fetch retrieves artifact bytes by their store key (the credential's
	// artifact_cid). Returns ErrArtifactNotFound if absent.
	Fetch(ctx context.Context, cid string) ([]byte, error)

	// Store saves artifact bytes and returns the store key along with the
	// SHA-256 of the data.
	Store(ctx context.Context, data []byte) (string, common.Hash, error)

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this store.
	LocationURI() string
}
