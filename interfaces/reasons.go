package interfaces

// ReasonCode denotes a specific verification failure cause. The verification
// predicate returns reasons as a deduplicated set in canonical evaluation
// order; a material passes iff the set is empty.
type ReasonCode string

const (
	ReasonMaterialRevoked     ReasonCode = "MATERIAL_REVOKED"
	ReasonMaterialQuarantined ReasonCode = "MATERIAL_QUARANTINED"
	ReasonMissingIdentity     ReasonCode = "MISSING_IDENTITY"
	ReasonQCMissing           ReasonCode = "QC_MISSING"
	ReasonQCExpired           ReasonCode = "QC_EXPIRED"
	ReasonQCIssuerRevoked     ReasonCode = "QC_ISSUER_REVOKED"
	ReasonTransferPending     ReasonCode = "TRANSFER_PENDING"
	ReasonArtifactTampered    ReasonCode = "ARTIFACT_TAMPERED"
	ReasonArtifactUnavailable ReasonCode = "ARTIFACT_UNAVAILABLE"
)

// reasonAliases maps interoperability aliases emitted by other verifiers onto
// the canonical vocabulary.
var reasonAliases = map[ReasonCode]ReasonCode{
	"CREDENTIAL_EXPIRED": ReasonQCExpired,
	"HASH_MISMATCH":      ReasonArtifactTampered,
	"INTEGRITY_FAILED":   ReasonArtifactTampered,
	"REVOKED":            ReasonMaterialRevoked,
	"STATUS_REVOKED":     ReasonMaterialRevoked,
	"QUARANTINED":        ReasonMaterialQuarantined,
	"STATUS_QUARANTINED": ReasonMaterialQuarantined,
}

// CanonicalReason resolves a possibly-aliased reason code to its canonical
// form. Unknown codes are returned unchanged (exact-match fallback).
func CanonicalReason(code ReasonCode) ReasonCode {
	if canonical, ok := reasonAliases[code]; ok {
		return canonical
	}
	return code
}

// SameReason reports whether two reason codes denote the same failure cause
// after alias resolution.
func SameReason(a, b ReasonCode) bool {
	return CanonicalReason(a) == CanonicalReason(b)
}

// ContainsReason reports whether the reason set contains the given code,
// matching through the alias table.
func ContainsReason(reasons []ReasonCode, code ReasonCode) bool {
	want := CanonicalReason(code)
	for _, r := range reasons {
		if CanonicalReason(r) == want {
			return true
		}
	}
	return false
}
