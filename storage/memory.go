package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bioledger/bioregistry/interfaces"
)

// MemoryStore is an in-process artifact store. It backs tests and the
// evaluation harness, where artifact bytes never need to leave the process.
type MemoryStore struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	available bool
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:   make(map[string][]byte),
		available: true,
	}
}

// Fetch retrieves artifact bytes by key.
func (s *MemoryStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.available {
		return nil, interfaces.ErrStoreUnavailable
	}
	data, ok := s.objects[cid]
	if !ok {
		return nil, interfaces.ErrArtifactNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves artifact bytes under the hex of their SHA-256.
func (s *MemoryStore) Store(ctx context.Context, data []byte) (string, common.Hash, error) {
	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		return "", common.Hash{}, interfaces.ErrStoreUnavailable
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[cid] = stored
	return cid, common.Hash(digest), nil
}

// Put plants bytes under an arbitrary key, bypassing content addressing.
// The evaluation harness uses this to model tampered artifacts.
func (s *MemoryStore) Put(cid string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[cid] = stored
}

// Delete removes a key, modelling an unretrievable artifact.
func (s *MemoryStore) Delete(cid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, cid)
}

// SetAvailable toggles the simulated availability of the store.
func (s *MemoryStore) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

// Available reports the simulated availability.
func (s *MemoryStore) Available(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Name returns a unique identifier for this store.
func (s *MemoryStore) Name() string {
	return "memory"
}

// LocationURI returns the URI identifying this store.
func (s *MemoryStore) LocationURI() string {
	return "memory://"
}
