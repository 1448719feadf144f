// Package interfaces defines the core types and contracts for the bio-material
// provenance registry, separating interface definitions from implementations.
package interfaces

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaterialType identifies the kind of tracked biological material.
type MaterialType string

const (
	MaterialCellLine MaterialType = "CELL_LINE"
	MaterialPlasmid  MaterialType = "PLASMID"
)

// Valid reports whether the material type is part of the fixed vocabulary.
func (t MaterialType) Valid() bool {
	return t == MaterialCellLine || t == MaterialPlasmid
}

// IDKind returns the identifier segment for this material type.
func (t MaterialType) IDKind() string {
	switch t {
	case MaterialCellLine:
		return "cell_line"
	case MaterialPlasmid:
		return "plasmid"
	default:
		return "unknown"
	}
}

// MaterialStatus is the lifecycle state of a material.
type MaterialStatus string

const (
	StatusActive      MaterialStatus = "ACTIVE"
	StatusQuarantined MaterialStatus = "QUARANTINED"
	StatusRevoked     MaterialStatus = "REVOKED"
)

// Valid reports whether the status is part of the fixed vocabulary.
func (s MaterialStatus) Valid() bool {
	return s == StatusActive || s == StatusQuarantined || s == StatusRevoked
}

// CredentialType identifies the kind of attested statement a credential makes.
type CredentialType string

const (
	CredentialIdentity    CredentialType = "IDENTITY"
	CredentialQCMyco      CredentialType = "QC_MYCO"
	CredentialUsageRights CredentialType = "USAGE_RIGHTS"
)

// Valid reports whether the credential type is part of the fixed vocabulary.
func (t CredentialType) Valid() bool {
	return t == CredentialIdentity || t == CredentialQCMyco || t == CredentialUsageRights
}

// Material is a tracked biological specimen represented by an identifier and
// a metadata commitment. Materials are never destroyed; REVOKED is terminal.
type Material struct {
	ID           string         `json:"id"`
	MaterialType MaterialType   `json:"material_type"`
	MetadataHash common.Hash    `json:"metadata_hash"`
	OwnerAddress common.Address `json:"owner_address"`
	OwnerOrg     string         `json:"owner_org"`
	Status       MaterialStatus `json:"status"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// Credential is an attested statement about a material, committed on-chain by
// the canonical hash of its payload. Credentials are append-only; Revoked may
// flip false to true exactly once.
type Credential struct {
	ID             string         `json:"id"`
	MaterialID     string         `json:"material_id"`
	CredentialType CredentialType `json:"credential_type"`
	CommitmentHash common.Hash    `json:"commitment_hash"`
	IssuerAddress  common.Address `json:"issuer_address"`
	IssuerOrg      string         `json:"issuer_org"`
	IssuedAt       int64          `json:"issued_at"`
	ValidUntil     int64          `json:"valid_until"`
	ArtifactCID    string         `json:"artifact_cid"`
	ArtifactHash   common.Hash    `json:"artifact_hash"`
	Revoked        bool           `json:"revoked"`
}

// Expired reports whether the credential's validity window has closed at the
// given time. ValidUntil of zero means no expiry.
func (c Credential) Expired(at int64) bool {
	return c.ValidUntil != 0 && c.ValidUntil < at
}

// Transfer records a custody handoff of a material between organizations.
// It becomes effective only once the recipient accepts it.
type Transfer struct {
	ID           string         `json:"id"`
	MaterialID   string         `json:"material_id"`
	FromAddress  common.Address `json:"from_address"`
	FromOrg      string         `json:"from_org"`
	ToAddress    common.Address `json:"to_address"`
	ToOrg        string         `json:"to_org"`
	ShipmentHash common.Hash    `json:"shipment_hash"`
	Timestamp    int64          `json:"timestamp"`
	Accepted     bool           `json:"accepted"`
}

// IssuerPermission holds the approval and capability flags for one issuer.
// RevokedAt of zero means the issuer has not been revoked.
type IssuerPermission struct {
	Approved            bool  `json:"is_approved"`
	CanIssueIdentity    bool  `json:"can_issue_identity"`
	CanIssueQC          bool  `json:"can_issue_qc"`
	CanIssueUsageRights bool  `json:"can_issue_usage_rights"`
	RevokedAt           int64 `json:"revoked_at"`
}

// CanIssue reports whether the permission carries the capability for the
// given credential type. Approval and revocation are checked separately.
func (p IssuerPermission) CanIssue(t CredentialType) bool {
	switch t {
	case CredentialIdentity:
		return p.CanIssueIdentity
	case CredentialQCMyco:
		return p.CanIssueQC
	case CredentialUsageRights:
		return p.CanIssueUsageRights
	default:
		return false
	}
}

// Identifier prefixes. Material identifiers additionally encode their kind:
// bio:cell_line:<n> and bio:plasmid:<n>.
const (
	MaterialIDPrefix   = "bio"
	CredentialIDPrefix = "cred"
	TransferIDPrefix   = "xfer"
)

// FormatMaterialID builds a material identifier from its type and sequence
// number.
func FormatMaterialID(t MaterialType, n uint64) string {
	return fmt.Sprintf("%s:%s:%d", MaterialIDPrefix, t.IDKind(), n)
}

// FormatCredentialID builds a credential identifier from a sequence number.
func FormatCredentialID(n uint64) string {
	return fmt.Sprintf("%s:%d", CredentialIDPrefix, n)
}

// FormatTransferID builds a transfer identifier from a sequence number.
func FormatTransferID(n uint64) string {
	return fmt.Sprintf("%s:%d", TransferIDPrefix, n)
}

// ParseMaterialID validates a material identifier and returns its type and
// sequence number.
func ParseMaterialID(id string) (MaterialType, uint64, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != MaterialIDPrefix {
		return "", 0, fmt.Errorf("invalid material id %q", id)
	}

	var t MaterialType
	switch parts[1] {
	case "cell_line":
		t = MaterialCellLine
	case "plasmid":
		t = MaterialPlasmid
	default:
		return "", 0, fmt.Errorf("invalid material id kind %q", parts[1])
	}

	n, err := parsePositiveDecimal(parts[2])
	if err != nil {
		return "", 0, fmt.Errorf("invalid material id %q: %w", id, err)
	}
	return t, n, nil
}

// ParseCredentialID validates a credential identifier and returns its
// sequence number.
func ParseCredentialID(id string) (uint64, error) {
	return parsePrefixedID(id, CredentialIDPrefix)
}

// ParseTransferID validates a transfer identifier and returns its sequence
// number.
func ParseTransferID(id string) (uint64, error) {
	return parsePrefixedID(id, TransferIDPrefix)
}

func parsePrefixedID(id, prefix string) (uint64, error) {
	rest, ok := strings.CutPrefix(id, prefix+":")
	if !ok {
		return 0, fmt.Errorf("invalid %s id %q", prefix, id)
	}
	n, err := parsePositiveDecimal(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q: %w", prefix, id, err)
	}
	return n, nil
}

func parsePositiveDecimal(s string) (uint64, error) {
	if s == "" || strings.HasPrefix(s, "0") {
		return 0, errors.New("sequence number must be a positive decimal integer")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("sequence number must be positive")
	}
	return n, nil
}
