// Package issuer implements the issuer key and signature layer: secp256k1
// keypairs, deterministic derivation from a master seed, and canonical-JSON
// signatures over credential payloads.
//
// Signature verification is a verifier-side check, not an admission check:
// compromised keys are handled through issuer revocation in the registry,
// not by rejecting signatures at issuance time.
package issuer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// Keyring derives issuer signing keys deterministically from a master seed.
// One seed yields a stable key per label, suitable for tests and for
// evaluation runs that need reproducible issuer identities.
type Keyring struct {
	seed []byte
}

// NewKeyring creates a keyring from a master seed of at least 32 bytes.
func NewKeyring(seed []byte) (*Keyring, error) {
	if len(seed) < 32 {
		return nil, errors.New("master seed must be at least 32 bytes")
	}
	owned := make([]byte, len(seed))
	copy(owned, seed)
	return &Keyring{seed: owned}, nil
}

// Signer derives the signing key for a label. The derivation reads candidate
// scalars from an HKDF stream until one is a valid secp256k1 key, so every
// label resolves to a key.
func (k *Keyring) Signer(label string) (*Signer, error) {
	reader := hkdf.New(sha256.New, k.seed, nil, []byte("bioregistry/issuer/"+label))

	candidate := make([]byte, 32)
	for attempt := 0; attempt < 128; attempt++ {
		if _, err := io.ReadFull(reader, candidate); err != nil {
			return nil, fmt.Errorf("key derivation failed for %q: %w", label, err)
		}
		key, err := crypto.ToECDSA(candidate)
		if err != nil {
			continue
		}
		return &Signer{key: key}, nil
	}
	return nil, fmt.Errorf("key derivation exhausted candidates for %q", label)
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// NewSigner wraps an existing secp256k1 private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}
