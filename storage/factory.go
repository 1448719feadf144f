// Package storage provides artifact store backends behind the
// interfaces.ArtifactStore contract: in-memory, local file system, IPFS,
// Amazon S3, and HashiCorp Vault, created from location URIs by Factory.
package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bioledger/bioregistry/interfaces"
)

// Factory creates artifact stores from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a store factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StoreFor creates an artifact store from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - in-process storage (tests and evaluation runs)
//   - file:// - local file system storage
//   - ipfs:// - IPFS node storage
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2 storage
func (f *Factory) StoreFor(locationURI string) (interfaces.ArtifactStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return f.createFileStore(u)
	case "ipfs":
		return f.createIPFSStore(u)
	case "s3":
		return f.createS3Store(u)
	case "vault":
		return f.createVaultStore(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// createFileStore creates a file system store.
// URI format: file:///absolute/path/
func (f *Factory) createFileStore(u *url.URL) (interfaces.ArtifactStore, error) {
	f.log.Debug("Creating file artifact store", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %q", interfaces.ErrInvalidLocationURI, u.String())
	}
	return NewFileStore(path, f.log)
}

// createIPFSStore creates an IPFS store.
// URI format: ipfs://host:port/?timeout=30s
func (f *Factory) createIPFSStore(u *url.URL) (interfaces.ArtifactStore, error) {
	f.log.Debug("Creating IPFS artifact store", slog.String("uri", u.String()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001"
	}

	timeout := 30 * time.Second
	if v := u.Query().Get("timeout"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timeout %q: %v", interfaces.ErrInvalidLocationURI, v, err)
		}
		timeout = parsed
	}
	return NewIPFSStore(host+":"+port, timeout, f.log), nil
}

// createS3Store creates an S3 store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/path/?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Store(u *url.URL) (interfaces.ArtifactStore, error) {
	f.log.Debug("Creating S3 artifact store", slog.String("uri", u.String()))

	cfg := S3Config{
		Bucket:   u.Host,
		Prefix:   strings.Trim(u.Path, "/"),
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}
	return NewS3Store(cfg, f.log)
}

// createVaultStore creates a Vault store.
// URI format: vault://[TOKEN@]host:port/mount/path?tls=true
func (f *Factory) createVaultStore(u *url.URL) (interfaces.ArtifactStore, error) {
	f.log.Debug("Creating Vault artifact store", slog.String("uri", u.String()))

	scheme := "https"
	if u.Query().Get("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	var token string
	if u.User != nil {
		token = u.User.Username()
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("%w: vault URI needs a mount path", interfaces.ErrInvalidLocationURI)
	}
	mountPath := parts[0]
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}
	return NewVaultStore(address, token, mountPath, dataPath, f.log)
}
