// Package workload produces deterministic labelled datasets for evaluating
// the verification predicate. Each preset materializes a population of
// materials with anomalies injected at configured rates; ground-truth labels
// are always derived from the realized state of each generated material, not
// from the nominal injection rate, so downstream confusion-matrix statistics
// are exact.
package workload

import (
	"github.com/bioledger/bioregistry/interfaces"
)

// AnomalyClass labels one injected defect in a generated material.
type AnomalyClass string

const (
	AnomalyRevoked          AnomalyClass = "REVOKED"
	AnomalyQuarantined      AnomalyClass = "QUARANTINED"
	AnomalyMissingQC        AnomalyClass = "MISSING_QC"
	AnomalyExpiredQC        AnomalyClass = "EXPIRED_QC"
	AnomalyTamperedArtifact AnomalyClass = "TAMPERED_ARTIFACT"
	AnomalyPendingTransfer  AnomalyClass = "PENDING_TRANSFER"
)

// AllAnomalyClasses lists the classes in reporting order.
var AllAnomalyClasses = []AnomalyClass{
	AnomalyRevoked,
	AnomalyQuarantined,
	AnomalyMissingQC,
	AnomalyExpiredQC,
	AnomalyTamperedArtifact,
	AnomalyPendingTransfer,
}

// OnChainReason maps an anomaly class to the reason code the on-chain
// predicate emits for it. TAMPERED_ARTIFACT is invisible on-chain and
// reports ok=false.
func (a AnomalyClass) OnChainReason() (interfaces.ReasonCode, bool) {
	switch a {
	case AnomalyRevoked:
		return interfaces.ReasonMaterialRevoked, true
	case AnomalyQuarantined:
		return interfaces.ReasonMaterialQuarantined, true
	case AnomalyMissingQC:
		return interfaces.ReasonQCMissing, true
	case AnomalyExpiredQC:
		return interfaces.ReasonQCExpired, true
	case AnomalyPendingTransfer:
		return interfaces.ReasonTransferPending, true
	default:
		return "", false
	}
}

// FullReason maps an anomaly class to the reason code full verification
// emits for it.
func (a AnomalyClass) FullReason() interfaces.ReasonCode {
	if a == AnomalyTamperedArtifact {
		return interfaces.ReasonArtifactTampered
	}
	reason, _ := a.OnChainReason()
	return reason
}

// AnomalyRates configures per-class injection probabilities. Status classes
// are drawn exclusively (a material is revoked or quarantined, never both);
// likewise a material's QC is missing or expired, never both.
type AnomalyRates struct {
	Revoked          float64 `json:"revoked"`
	Quarantined      float64 `json:"quarantined"`
	MissingQC        float64 `json:"missing_qc"`
	ExpiredQC        float64 `json:"expired_qc"`
	TamperedArtifact float64 `json:"tampered_artifact"`
	PendingTransfer  float64 `json:"pending_transfer"`
}

// Config parameterizes one generated dataset.
type Config struct {
	Name           string       `json:"name"`
	Seed           int64        `json:"seed"`
	Materials      int          `json:"materials"`
	CellLineRatio  float64      `json:"cell_line_ratio"`
	QCValidityDays int          `json:"qc_validity_days"`
	Rates          AnomalyRates `json:"rates"`
}

// Normal is a clean population: every material carries a valid identity and
// QC credential and passes verification.
func Normal() Config {
	return Config{
		Name:           "normal",
		Seed:           101,
		Materials:      500,
		CellLineRatio:  0.6,
		QCValidityDays: 90,
	}
}

// Drift models a population aging in place: mostly healthy with a tail of
// expired QCs, holds and stalled transfers.
func Drift() Config {
	return Config{
		Name:           "drift",
		Seed:           202,
		Materials:      500,
		CellLineRatio:  0.6,
		QCValidityDays: 30,
		Rates: AnomalyRates{
			Revoked:          0.02,
			Quarantined:      0.05,
			MissingQC:        0.04,
			ExpiredQC:        0.10,
			TamperedArtifact: 0.03,
			PendingTransfer:  0.05,
		},
	}
}

// Adversarial is a hostile population with heavy anomaly injection across
// every class.
func Adversarial() Config {
	return Config{
		Name:           "adversarial",
		Seed:           303,
		Materials:      500,
		CellLineRatio:  0.5,
		QCValidityDays: 90,
		Rates: AnomalyRates{
			Revoked:          0.18,
			Quarantined:      0.12,
			MissingQC:        0.20,
			ExpiredQC:        0.25,
			TamperedArtifact: 0.20,
			PendingTransfer:  0.25,
		},
	}
}

// Presets returns the three standard dataset configurations.
func Presets() []Config {
	return []Config{Normal(), Drift(), Adversarial()}
}
