// Package verifier implements the deterministic verification predicate over
// registry snapshots, optionally extended with off-chain artifact integrity
// checks.
//
// The predicate is a pure function of the committed snapshot: reason codes
// accumulate in a fixed evaluation order (status, identity, latest QC,
// transfer continuity, artifacts), duplicates are suppressed, and a material
// passes iff the reason set is empty. Domain failures never surface as
// errors; they are encoded as reason codes.
package verifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/metrics"
)

// Result is the outcome of one verification: pass iff Reasons is empty.
type Result struct {
	MaterialID string                  `json:"material_id"`
	Pass       bool                    `json:"pass"`
	Reasons    []interfaces.ReasonCode `json:"reasons"`
	At         int64                   `json:"at"`
}

// Verifier evaluates the verification predicate against a registry.
type Verifier struct {
	reg     interfaces.RegistryReader
	checker *ArtifactChecker
	clock   func() int64
	log     *slog.Logger
	met     *metrics.Collector
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithArtifactStore enables full verification against the given store.
func WithArtifactStore(store interfaces.ArtifactStore, timeout time.Duration) Option {
	return func(v *Verifier) {
		v.checker = NewArtifactChecker(store, timeout, v.log)
	}
}

// WithClock overrides the evaluation time source.
func WithClock(clock func() int64) Option {
	return func(v *Verifier) { v.clock = clock }
}

// WithMetrics instruments verification outcomes.
func WithMetrics(met *metrics.Collector) Option {
	return func(v *Verifier) { v.met = met }
}

// New creates a verifier over the given registry reader.
func New(reg interfaces.RegistryReader, log *slog.Logger, opts ...Option) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	v := &Verifier{
		reg:   reg,
		clock: func() int64 { return time.Now().Unix() },
		log:   log,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyMaterial evaluates the on-chain predicate at the current time.
func (v *Verifier) VerifyMaterial(materialID string) (Result, error) {
	return v.VerifyMaterialAt(materialID, v.clock())
}

// VerifyMaterialAt evaluates the on-chain predicate at the given time.
func (v *Verifier) VerifyMaterialAt(materialID string, at int64) (Result, error) {
	snap, err := v.reg.Snapshot(materialID)
	if err != nil {
		return Result{}, err
	}
	res := v.evaluate(snap, at)
	v.record(res)
	return res, nil
}

// VerifyMaterialFull evaluates the on-chain predicate and then checks every
// artifact referenced by a non-revoked credential. Unretrievable artifacts
// fail closed as ARTIFACT_UNAVAILABLE.
func (v *Verifier) VerifyMaterialFull(ctx context.Context, materialID string) (Result, error) {
	snap, err := v.reg.Snapshot(materialID)
	if err != nil {
		return Result{}, err
	}

	res := v.evaluate(snap, v.clock())
	if v.checker != nil {
		rs := reasonSet{codes: res.Reasons}
		for _, cred := range snap.Credentials {
			if cred.Revoked {
				continue
			}
			switch v.checker.Check(ctx, cred) {
			case ArtifactTampered:
				rs.add(interfaces.ReasonArtifactTampered)
			case ArtifactUnavailable:
				rs.add(interfaces.ReasonArtifactUnavailable)
			}
		}
		res.Reasons = rs.codes
		res.Pass = len(res.Reasons) == 0
	}
	v.record(res)
	return res, nil
}

// evaluate runs the fixed-order on-chain policy over one snapshot.
func (v *Verifier) evaluate(snap interfaces.MaterialSnapshot, at int64) Result {
	var rs reasonSet

	// Status.
	switch snap.Material.Status {
	case interfaces.StatusRevoked:
		rs.add(interfaces.ReasonMaterialRevoked)
	case interfaces.StatusQuarantined:
		rs.add(interfaces.ReasonMaterialQuarantined)
	}

	// Identity: at least one non-revoked identity credential whose issuer
	// was not revoked before issuance.
	hasIdentity := false
	for _, cred := range snap.Credentials {
		if cred.CredentialType != interfaces.CredentialIdentity || cred.Revoked {
			continue
		}
		revokedAt := snap.Issuers[cred.IssuerAddress].RevokedAt
		if revokedAt != 0 && cred.IssuedAt >= revokedAt {
			continue
		}
		hasIdentity = true
		break
	}
	if !hasIdentity {
		rs.add(interfaces.ReasonMissingIdentity)
	}

	// Latest QC only: an older still-unexpired QC never overrides a newer
	// expired one.
	var latestQC *interfaces.Credential
	for i := range snap.Credentials {
		cred := &snap.Credentials[i]
		if cred.CredentialType != interfaces.CredentialQCMyco || cred.Revoked {
			continue
		}
		if latestQC == nil || cred.IssuedAt >= latestQC.IssuedAt {
			latestQC = cred
		}
	}
	switch {
	case latestQC == nil:
		rs.add(interfaces.ReasonQCMissing)
	default:
		revokedAt := snap.Issuers[latestQC.IssuerAddress].RevokedAt
		switch {
		case revokedAt != 0 && revokedAt <= latestQC.IssuedAt:
			rs.add(interfaces.ReasonQCIssuerRevoked)
		case latestQC.Expired(at):
			rs.add(interfaces.ReasonQCExpired)
		}
	}

	// Transfer continuity.
	for _, transfer := range snap.Transfers {
		if !transfer.Accepted {
			rs.add(interfaces.ReasonTransferPending)
			break
		}
	}

	return Result{
		MaterialID: snap.Material.ID,
		Pass:       len(rs.codes) == 0,
		Reasons:    rs.codes,
		At:         at,
	}
}

func (v *Verifier) record(res Result) {
	if v.met == nil {
		return
	}
	label := "pass"
	if !res.Pass {
		label = string(res.Reasons[0])
	}
	v.met.VerifyTotal.WithLabelValues(label).Inc()
}

// reasonSet accumulates reason codes in evaluation order with duplicates
// suppressed.
type reasonSet struct {
	codes []interfaces.ReasonCode
}

func (rs *reasonSet) add(code interfaces.ReasonCode) {
	for _, existing := range rs.codes {
		if existing == code {
			return
		}
	}
	rs.codes = append(rs.codes, code)
}
