// Package evaluation materializes generated workloads onto a live registry,
// checks predictions against ground truth, and measures operation latency
// and mixed-workload throughput.
//
// Materialization replays each material's lifecycle in causal order under a
// controlled clock: registration, credentials in ascending issuance order,
// transfers while the material is still active, then status changes. Every
// receipt is asserted to carry finality markers; a receipt without them
// aborts the run, so latency numbers always reflect committed operations.
package evaluation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"

	"github.com/bioledger/bioregistry/canonical"
	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/issuer"
	"github.com/bioledger/bioregistry/registry"
	"github.com/bioledger/bioregistry/storage"
	"github.com/bioledger/bioregistry/verifier"
	"github.com/bioledger/bioregistry/workload"
)

const day = int64(86400)

// Harness drives one evaluation run: an in-process registry with a
// controlled clock, a memory artifact store, derived issuer keys, and the
// verifier under test.
type Harness struct {
	log   *slog.Logger
	reg   *registry.Registry
	store *storage.MemoryStore
	ver   *verifier.Verifier
	clock *atomic.Int64

	admin   common.Address
	signers map[string]*issuer.Signer

	// pool is the frozen set of materialized material IDs, index-aligned
	// with the dataset specs.
	pool []string
}

// NewHarness creates a harness with deterministic issuer keys.
func NewHarness(log *slog.Logger) (*Harness, error) {
	if log == nil {
		log = slog.Default()
	}

	seed := sha256.Sum256([]byte("bioregistry evaluation master seed"))
	keyring, err := issuer.NewKeyring(seed[:])
	if err != nil {
		return nil, err
	}

	signers := make(map[string]*issuer.Signer)
	for _, label := range []string{"admin", workload.IdentityIssuerLabel, workload.QCIssuerLabel} {
		s, err := keyring.Signer(label)
		if err != nil {
			return nil, err
		}
		signers[label] = s
	}

	clock := atomic.NewInt64(0)
	h := &Harness{
		log:     log,
		store:   storage.NewMemoryStore(),
		clock:   clock,
		admin:   signers["admin"].Address(),
		signers: signers,
	}
	h.reg = registry.New(registry.Config{
		Admin: h.admin,
		Clock: clock.Load,
		Log:   log,
	})
	h.ver = verifier.New(h.reg, log,
		verifier.WithClock(clock.Load),
		verifier.WithArtifactStore(h.store, 5*time.Second),
	)
	return h, nil
}

// Close tears down the underlying registry.
func (h *Harness) Close() {
	h.reg.Close()
}

// Registry exposes the live registry, e.g. for benchmarks.
func (h *Harness) Registry() *registry.Registry { return h.reg }

// Verifier exposes the verifier under test.
func (h *Harness) Verifier() *verifier.Verifier { return h.ver }

// Pool returns the frozen material ID pool of the materialized dataset.
func (h *Harness) Pool() []string {
	out := make([]string, len(h.pool))
	copy(out, h.pool)
	return out
}

// requireFinal asserts the finality invariant on a receipt.
func requireFinal(receipt interfaces.Receipt) error {
	if !receipt.Final() {
		return interfaces.ErrReceiptNotFinal
	}
	return nil
}

// addrForOrg derives a stable caller address for an organization label.
func addrForOrg(org string) common.Address {
	digest := sha256.Sum256([]byte("org:" + org))
	return common.BytesToAddress(digest[12:])
}

// Materialize replays a dataset onto the registry. Credentials are admitted
// in ascending issuance order so the registry's latest-QC selection
// coincides with the dataset's; transfers are initiated while materials are
// still active; status changes land last.
func (h *Harness) Materialize(ctx context.Context, ds *workload.Dataset) error {
	start := time.Now()

	// Issuer setup happens before any dataset time is reached.
	h.clock.Store(ds.EvalTime - 40*day)
	receipt, err := h.reg.AuthorizeIssuer(ctx, h.admin, h.signers[workload.IdentityIssuerLabel].Address(), true, false, false)
	if err != nil {
		return fmt.Errorf("failed to authorize identity issuer: %w", err)
	}
	if err := requireFinal(receipt); err != nil {
		return err
	}
	receipt, err = h.reg.AuthorizeIssuer(ctx, h.admin, h.signers[workload.QCIssuerLabel].Address(), false, true, false)
	if err != nil {
		return fmt.Errorf("failed to authorize qc issuer: %w", err)
	}
	if err := requireFinal(receipt); err != nil {
		return err
	}

	for i := range ds.Specs {
		id, err := h.materializeOne(ctx, ds, &ds.Specs[i])
		if err != nil {
			return fmt.Errorf("failed to materialize spec %d: %w", i, err)
		}
		h.pool = append(h.pool, id)
	}

	h.clock.Store(ds.EvalTime)
	h.log.Info("Materialized dataset",
		slog.String("dataset", ds.Config.Name),
		slog.Int("materials", len(h.pool)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (h *Harness) materializeOne(ctx context.Context, ds *workload.Dataset, spec *workload.MaterialSpec) (string, error) {
	ownerAddr := addrForOrg(spec.OwnerOrg)

	metadataHash, err := canonical.Hash(spec.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to hash metadata: %w", err)
	}

	h.clock.Store(ds.EvalTime - 30*day)
	materialID, receipt, err := h.reg.RegisterMaterial(ctx, ownerAddr, spec.MaterialType, metadataHash, spec.OwnerOrg)
	if err != nil {
		return "", err
	}
	if err := requireFinal(receipt); err != nil {
		return "", err
	}

	creds := make([]workload.CredentialSpec, len(spec.Credentials))
	copy(creds, spec.Credentials)
	sort.SliceStable(creds, func(a, b int) bool { return creds[a].IssuedOffset < creds[b].IssuedOffset })

	for _, cred := range creds {
		if err := h.issueOne(ctx, ds, materialID, &cred); err != nil {
			return "", err
		}
	}

	if spec.Transfer != nil {
		h.clock.Store(ds.EvalTime - 5*day)
		recipient := addrForOrg(spec.Transfer.ToOrg)
		_, receipt, err := h.reg.InitiateTransfer(ctx, ownerAddr, materialID, recipient, spec.Transfer.ToOrg, canonical.HashBytes([]byte("shipment:"+materialID)))
		if err != nil {
			return "", err
		}
		if err := requireFinal(receipt); err != nil {
			return "", err
		}
		if spec.Transfer.Accepted {
			h.clock.Store(ds.EvalTime - 4*day)
			receipt, err := h.reg.AcceptTransfer(ctx, recipient, materialID)
			if err != nil {
				return "", err
			}
			if err := requireFinal(receipt); err != nil {
				return "", err
			}
		}
	}

	if spec.Status != interfaces.StatusActive {
		h.clock.Store(ds.EvalTime - 2*day)
		receipt, err := h.reg.SetStatusByAuthority(ctx, h.admin, materialID, spec.Status, canonical.HashBytes([]byte("workload:"+string(spec.Status))))
		if err != nil {
			return "", err
		}
		if err := requireFinal(receipt); err != nil {
			return "", err
		}
	}
	return materialID, nil
}

// issueOne signs, stores and admits one credential. A tampered spec stores
// doctored bytes under the honest key so the on-chain commitment no longer
// matches what the store serves.
func (h *Harness) issueOne(ctx context.Context, ds *workload.Dataset, materialID string, cred *workload.CredentialSpec) error {
	signer, ok := h.signers[cred.IssuerLabel]
	if !ok {
		return fmt.Errorf("unknown issuer label %q", cred.IssuerLabel)
	}

	cid, artifactHash, err := h.store.Store(ctx, cred.Artifact)
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	if cred.Tampered {
		h.store.Put(cid, append([]byte("tampered:"), cred.Artifact...))
	}

	issuedAt := ds.EvalTime + cred.IssuedOffset
	validUntil := int64(0)
	if cred.ValidUntilOffset != 0 {
		validUntil = ds.EvalTime + cred.ValidUntilOffset
	}

	payload := issuer.CredentialPayload{
		MaterialID:     materialID,
		CredentialType: cred.CredentialType,
		IssuerOrg:      cred.IssuerLabel,
		IssuedAt:       issuedAt,
		ValidUntil:     validUntil,
		ArtifactSHA256: hex.EncodeToString(artifactHash[:]),
		Claims:         cred.Claims,
	}
	_, commitment, err := signer.SignCredential(payload)
	if err != nil {
		return fmt.Errorf("failed to sign credential payload: %w", err)
	}

	h.clock.Store(issuedAt)
	_, receipt, err := h.reg.IssueCredential(ctx, signer.Address(), interfaces.IssueCredentialParams{
		MaterialID:     materialID,
		CredentialType: cred.CredentialType,
		CommitmentHash: commitment,
		ValidUntil:     validUntil,
		ArtifactCID:    cid,
		ArtifactHash:   artifactHash,
		IssuerOrg:      cred.IssuerLabel,
	})
	if err != nil {
		return err
	}
	return requireFinal(receipt)
}

// ClassOutcome holds the confusion matrices for one anomaly class.
type ClassOutcome struct {
	Class          workload.AnomalyClass `json:"class"`
	OnChain        ConfusionMatrix       `json:"onchain"`
	Full           ConfusionMatrix       `json:"full"`
	OnChainMetrics Metrics               `json:"onchain_metrics"`
	FullMetrics    Metrics               `json:"full_metrics"`
}

// Result summarizes one dataset evaluation.
type Result struct {
	Dataset         string                        `json:"dataset"`
	Materials       int                           `json:"materials"`
	OnChainFailures int                           `json:"onchain_failures"`
	FullFailures    int                           `json:"full_failures"`
	OnChainFailRate float64                       `json:"onchain_fail_rate"`
	FullFailRate    float64                       `json:"full_fail_rate"`
	OnChainReasons  map[interfaces.ReasonCode]int `json:"onchain_reason_histogram"`
	FullReasons     map[interfaces.ReasonCode]int `json:"full_reason_histogram"`
	Classes         []ClassOutcome                `json:"classes"`
}

// Evaluate verifies every materialized material and computes per-class
// confusion matrices against the dataset's ground truth. Prediction matching
// goes through the reason-code alias table with exact-match fallback.
func (h *Harness) Evaluate(ctx context.Context, ds *workload.Dataset) (*Result, error) {
	if len(h.pool) != len(ds.Specs) {
		return nil, fmt.Errorf("dataset not materialized: %d of %d materials", len(h.pool), len(ds.Specs))
	}

	res := &Result{
		Dataset:        ds.Config.Name,
		Materials:      len(h.pool),
		OnChainReasons: make(map[interfaces.ReasonCode]int),
		FullReasons:    make(map[interfaces.ReasonCode]int),
	}
	matrices := make(map[workload.AnomalyClass]*ClassOutcome, len(workload.AllAnomalyClasses))
	for _, class := range workload.AllAnomalyClasses {
		matrices[class] = &ClassOutcome{Class: class}
	}

	for i := range ds.Specs {
		spec := &ds.Specs[i]
		materialID := h.pool[i]

		onchain, err := h.ver.VerifyMaterial(materialID)
		if err != nil {
			return nil, fmt.Errorf("on-chain verification failed for %s: %w", materialID, err)
		}
		full, err := h.ver.VerifyMaterialFull(ctx, materialID)
		if err != nil {
			return nil, fmt.Errorf("full verification failed for %s: %w", materialID, err)
		}

		if !onchain.Pass {
			res.OnChainFailures++
		}
		if !full.Pass {
			res.FullFailures++
		}
		for _, reason := range onchain.Reasons {
			res.OnChainReasons[reason]++
		}
		for _, reason := range full.Reasons {
			res.FullReasons[reason]++
		}

		for _, class := range workload.AllAnomalyClasses {
			truth := spec.HasAnomaly(class)

			predictedOnChain := false
			if reason, ok := class.OnChainReason(); ok {
				predictedOnChain = interfaces.ContainsReason(onchain.Reasons, reason)
			}
			matrices[class].OnChain.Record(truth, predictedOnChain)

			predictedFull := interfaces.ContainsReason(full.Reasons, class.FullReason())
			matrices[class].Full.Record(truth, predictedFull)
		}
	}

	res.OnChainFailRate = float64(res.OnChainFailures) / float64(res.Materials)
	res.FullFailRate = float64(res.FullFailures) / float64(res.Materials)
	for _, class := range workload.AllAnomalyClasses {
		outcome := matrices[class]
		outcome.OnChainMetrics = outcome.OnChain.Derived()
		outcome.FullMetrics = outcome.Full.Derived()
		res.Classes = append(res.Classes, *outcome)
	}
	return res, nil
}
