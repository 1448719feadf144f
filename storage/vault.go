package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/vault/api"

	"github.com/bioledger/bioregistry/interfaces"
)

// VaultStore keeps artifact bytes in HashiCorp Vault's KV v2 engine,
// base64-encoded under a per-artifact secret path.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a Vault-backed artifact store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault client token
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (e.g. "artifacts")
func NewVaultStore(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Fetch retrieves artifact bytes by key from the KV v2 engine.
func (s *VaultStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	start := time.Now()

	secret, err := s.client.KVv2(s.mountPath).Get(ctx, s.secretPath(cid))
	if err != nil {
		if strings.Contains(err.Error(), "secret not found") {
			return nil, interfaces.ErrArtifactNotFound
		}
		s.log.Error("Failed to read artifact from Vault",
			slog.String("cid", cid),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read artifact from Vault: %w", err)
	}

	encoded, ok := secret.Data["artifact"].(string)
	if !ok {
		return nil, interfaces.ErrArtifactNotFound
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact from Vault: %w", err)
	}

	s.log.Debug("Fetched artifact from Vault",
		slog.String("cid", cid),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store saves artifact bytes under the hex of their SHA-256.
func (s *VaultStore) Store(ctx context.Context, data []byte) (string, common.Hash, error) {
	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])

	_, err := s.client.KVv2(s.mountPath).Put(ctx, s.secretPath(cid), map[string]any{
		"artifact": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("failed to write artifact to Vault: %w", err)
	}

	s.log.Debug("Stored artifact in Vault", slog.String("cid", cid))
	return cid, common.Hash(digest), nil
}

// Available checks if the Vault server responds to a health query.
func (s *VaultStore) Available(ctx context.Context) bool {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		s.log.Debug("Vault store unavailable", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}

// Name returns a unique identifier for this store.
func (s *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s", s.mountPath)
}

// LocationURI returns the URI identifying this store.
func (s *VaultStore) LocationURI() string {
	return s.locationURI
}

func (s *VaultStore) secretPath(cid string) string {
	if s.dataPath == "" {
		return cid
	}
	return s.dataPath + "/" + cid
}
