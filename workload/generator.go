package workload

import (
	"fmt"
	"math/rand"

	"github.com/bioledger/bioregistry/interfaces"
)

// Issuer labels used by generated credentials. The evaluation harness maps
// them onto derived issuer keys before materialization.
const (
	IdentityIssuerLabel = "identity-lab"
	QCIssuerLabel       = "qc-lab"
)

const day = int64(86400)

// CredentialSpec describes one credential to admit during materialization.
// Times are offsets in seconds relative to the dataset's evaluation time.
type CredentialSpec struct {
	IssuerLabel      string                    `json:"issuer_label"`
	CredentialType   interfaces.CredentialType `json:"credential_type"`
	IssuedOffset     int64                     `json:"issued_offset"`
	ValidUntilOffset int64                     `json:"valid_until_offset"`
	Artifact         []byte                    `json:"artifact"`
	Tampered         bool                      `json:"tampered"`
	Claims           map[string]any            `json:"claims,omitempty"`
}

// TransferSpec describes a custody handoff to create during materialization.
type TransferSpec struct {
	ToOrg    string `json:"to_org"`
	Accepted bool   `json:"accepted"`
}

// MaterialSpec is one generated material with its realized ground truth.
type MaterialSpec struct {
	Index        int                       `json:"index"`
	MaterialType interfaces.MaterialType   `json:"material_type"`
	Metadata     map[string]any            `json:"metadata"`
	OwnerOrg     string                    `json:"owner_org"`
	Status       interfaces.MaterialStatus `json:"status"`
	Credentials  []CredentialSpec          `json:"credentials"`
	Transfer     *TransferSpec             `json:"transfer,omitempty"`
	GroundTruth  []AnomalyClass            `json:"ground_truth"`
}

// Dataset is a fully generated workload. EvalTime is the instant the
// verification predicate is meant to run at; every offset in the specs is
// relative to it.
type Dataset struct {
	Config   Config         `json:"config"`
	EvalTime int64          `json:"eval_time"`
	Count    int            `json:"count"`
	Specs    []MaterialSpec `json:"materials"`
}

// Generate produces the dataset for a configuration, deterministically from
// its seed. evalTime anchors all generated timestamps.
func Generate(cfg Config, evalTime int64) *Dataset {
	rng := rand.New(rand.NewSource(cfg.Seed))

	ds := &Dataset{
		Config:   cfg,
		EvalTime: evalTime,
		Count:    cfg.Materials,
		Specs:    make([]MaterialSpec, 0, cfg.Materials),
	}
	for i := 0; i < cfg.Materials; i++ {
		ds.Specs = append(ds.Specs, generateMaterial(cfg, rng, i))
	}
	return ds
}

func generateMaterial(cfg Config, rng *rand.Rand, index int) MaterialSpec {
	spec := MaterialSpec{
		Index:    index,
		OwnerOrg: fmt.Sprintf("lab-%03d", rng.Intn(40)),
		Status:   interfaces.StatusActive,
		Metadata: map[string]any{
			"name":    fmt.Sprintf("specimen-%05d", index),
			"lot":     fmt.Sprintf("lot-%04d", rng.Intn(10000)),
			"species": "homo sapiens",
		},
	}
	if rng.Float64() < cfg.CellLineRatio {
		spec.MaterialType = interfaces.MaterialCellLine
	} else {
		spec.MaterialType = interfaces.MaterialPlasmid
	}

	// Status anomalies are exclusive: revoked wins over quarantined.
	switch {
	case rng.Float64() < cfg.Rates.Revoked:
		spec.Status = interfaces.StatusRevoked
	case rng.Float64() < cfg.Rates.Quarantined:
		spec.Status = interfaces.StatusQuarantined
	}

	// Every material carries an identity credential.
	identity := CredentialSpec{
		IssuerLabel:    IdentityIssuerLabel,
		CredentialType: interfaces.CredentialIdentity,
		IssuedOffset:   -20*day - int64(rng.Intn(3600)),
		Artifact:       []byte(fmt.Sprintf("identity profile for specimen-%05d lot %d", index, rng.Intn(1_000_000))),
		Claims:         map[string]any{"method": "str-profile"},
	}
	spec.Credentials = append(spec.Credentials, identity)

	// QC: missing and expired are exclusive by construction.
	missingQC := rng.Float64() < cfg.Rates.MissingQC
	if !missingQC {
		// Occasionally a superseded older QC precedes the latest one; the
		// predicate must ignore it either way.
		if rng.Float64() < 0.25 {
			spec.Credentials = append(spec.Credentials, qcSpec(cfg, rng, index, -15*day-int64(rng.Intn(3600)), false))
		}
		expired := rng.Float64() < cfg.Rates.ExpiredQC
		spec.Credentials = append(spec.Credentials, qcSpec(cfg, rng, index, -10*day+int64(rng.Intn(3600)), expired))
	}

	// Artifact tampering targets the last issued credential's bytes.
	if rng.Float64() < cfg.Rates.TamperedArtifact {
		spec.Credentials[len(spec.Credentials)-1].Tampered = true
	}

	// Transfers are initiated while the material is still active; status
	// changes are applied afterwards during materialization.
	if rng.Float64() < cfg.Rates.PendingTransfer {
		spec.Transfer = &TransferSpec{ToOrg: fmt.Sprintf("lab-%03d", rng.Intn(40)), Accepted: false}
	} else if rng.Float64() < 0.2 {
		spec.Transfer = &TransferSpec{ToOrg: fmt.Sprintf("lab-%03d", rng.Intn(40)), Accepted: true}
	}

	spec.GroundTruth = realizedGroundTruth(spec)
	return spec
}

func qcSpec(cfg Config, rng *rand.Rand, index int, issuedOffset int64, expired bool) CredentialSpec {
	validOffset := int64(cfg.QCValidityDays) * day
	if expired {
		// Expired at evaluation time yet valid at issuance.
		validOffset = -1 - int64(rng.Int63n(5*day))
	}
	return CredentialSpec{
		IssuerLabel:      QCIssuerLabel,
		CredentialType:   interfaces.CredentialQCMyco,
		IssuedOffset:     issuedOffset,
		ValidUntilOffset: validOffset,
		Artifact:         []byte(fmt.Sprintf("myco panel for specimen-%05d run %d: negative", index, rng.Intn(1_000_000))),
		Claims:           map[string]any{"result": "negative", "panel": "myco-9"},
	}
}

// realizedGroundTruth derives the anomaly labels from the state the spec
// actually materializes to. A rejected or skipped injection never yields a
// label; only what ends up in the registry does.
func realizedGroundTruth(spec MaterialSpec) []AnomalyClass {
	var truth []AnomalyClass

	switch spec.Status {
	case interfaces.StatusRevoked:
		truth = append(truth, AnomalyRevoked)
	case interfaces.StatusQuarantined:
		truth = append(truth, AnomalyQuarantined)
	}

	var latestQC *CredentialSpec
	for i := range spec.Credentials {
		cred := &spec.Credentials[i]
		if cred.CredentialType != interfaces.CredentialQCMyco {
			continue
		}
		if latestQC == nil || cred.IssuedOffset >= latestQC.IssuedOffset {
			latestQC = cred
		}
	}
	switch {
	case latestQC == nil:
		truth = append(truth, AnomalyMissingQC)
	case latestQC.ValidUntilOffset < 0:
		truth = append(truth, AnomalyExpiredQC)
	}

	for _, cred := range spec.Credentials {
		if cred.Tampered {
			truth = append(truth, AnomalyTamperedArtifact)
			break
		}
	}

	if spec.Transfer != nil && !spec.Transfer.Accepted {
		truth = append(truth, AnomalyPendingTransfer)
	}
	return truth
}

// HasAnomaly reports whether the spec's ground truth contains the class.
func (m *MaterialSpec) HasAnomaly(class AnomalyClass) bool {
	for _, a := range m.GroundTruth {
		if a == class {
			return true
		}
	}
	return false
}

// ExpectOnChainPass reports whether the on-chain predicate should pass the
// material: every ground-truth anomaly except artifact tampering fails it.
func (m *MaterialSpec) ExpectOnChainPass() bool {
	for _, a := range m.GroundTruth {
		if a != AnomalyTamperedArtifact {
			return false
		}
	}
	return true
}

// ExpectFullPass reports whether full verification should pass the material.
func (m *MaterialSpec) ExpectFullPass() bool {
	return len(m.GroundTruth) == 0
}
