package verifier

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/bioledger/bioregistry/interfaces"
)

// CheckResult is the outcome of one artifact integrity check.
type CheckResult int

const (
	// ArtifactValid means the fetched bytes hash to the stored commitment.
	ArtifactValid CheckResult = iota
	// ArtifactTampered means the bytes were retrieved but do not match.
	ArtifactTampered
	// ArtifactUnavailable means the bytes could not be retrieved. Under the
	// fail-closed policy this is a verification failure, never a pass.
	ArtifactUnavailable
)

// String returns the result name.
func (r CheckResult) String() string {
	switch r {
	case ArtifactValid:
		return "valid"
	case ArtifactTampered:
		return "tampered"
	case ArtifactUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ArtifactChecker verifies the off-chain bytes referenced by credentials
// against their on-chain commitment. It trusts nothing the store reports
// about the content; integrity is established only by re-hashing the bytes.
type ArtifactChecker struct {
	store   interfaces.ArtifactStore
	log     *slog.Logger
	timeout time.Duration
}

// NewArtifactChecker creates a checker over the given store. A non-positive
// timeout disables the per-fetch deadline.
func NewArtifactChecker(store interfaces.ArtifactStore, timeout time.Duration, log *slog.Logger) *ArtifactChecker {
	if log == nil {
		log = slog.Default()
	}
	return &ArtifactChecker{store: store, log: log, timeout: timeout}
}

// Check fetches the credential's artifact and compares its SHA-256 to the
// stored commitment in constant time. Retrieval errors and timeouts resolve
// to ArtifactUnavailable.
func (c *ArtifactChecker) Check(ctx context.Context, cred interfaces.Credential) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := c.store.Fetch(ctx, cred.ArtifactCID)
	if err != nil {
		c.log.Debug("Artifact unavailable",
			slog.String("credential", cred.ID),
			slog.String("cid", cred.ArtifactCID),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return ArtifactUnavailable
	}

	digest := sha256.Sum256(data)
	if subtle.ConstantTimeCompare(digest[:], cred.ArtifactHash[:]) != 1 {
		c.log.Warn("Artifact hash mismatch",
			slog.String("credential", cred.ID),
			slog.String("cid", cred.ArtifactCID))
		return ArtifactTampered
	}
	return ArtifactValid
}
