package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one log entry emitted by a state-changing registry operation.
type Event struct {
	Tag        string         `json:"tag"`
	MaterialID string         `json:"material_id,omitempty"`
	Actor      common.Address `json:"actor"`
	Subject    string         `json:"subject,omitempty"`
	Time       int64          `json:"time"`
}

// Receipt is returned by every state-changing registry operation. BlockHeight
// is the position of the operation in the serial log; a zero height means the
// operation never reached finality.
type Receipt struct {
	TxID        string  `json:"tx_id"`
	BlockHeight uint64  `json:"block_height"`
	Logs        []Event `json:"logs"`
}

// Final reports whether the receipt carries finality markers.
func (r Receipt) Final() bool {
	return r.TxID != "" && r.BlockHeight > 0
}

// IssueCredentialParams bundles the arguments of IssueCredential.
type IssueCredentialParams struct {
	MaterialID     string
	CredentialType CredentialType
	CommitmentHash common.Hash
	ValidUntil     int64
	ArtifactCID    string
	ArtifactHash   common.Hash
	IssuerOrg      string
}

// MaterialSnapshot is a consistent view of one material and everything the
// verification predicate evaluates: its credentials, transfers, and the
// permission records of every involved issuer, all taken from the same
// committed state.
type MaterialSnapshot struct {
	Material    Material
	Credentials []Credential
	Transfers   []Transfer
	Issuers     map[common.Address]IssuerPermission
}

// RegistryReader is the read-only view of the registry. Reads never mutate
// state and observe the committed snapshot at call time.
type RegistryReader interface {
	// Snapshot returns a consistent view of a material and its related
	// records, suitable for deterministic verification.
	Snapshot(materialID string) (MaterialSnapshot, error)

	// Material returns the material record for the given identifier.
	Material(materialID string) (Material, error)

	// Credentials returns all credentials on a material in insertion order.
	Credentials(materialID string) ([]Credential, error)

	// Transfers returns all transfers on a material in insertion order.
	Transfers(materialID string) ([]Transfer, error)

	// IssuerPermission returns the permission record for an issuer. A
	// never-authorized issuer yields the zero permission, not an error.
	IssuerPermission(issuer common.Address) (IssuerPermission, error)

	// HistoryCount returns the length of a material's history log.
	HistoryCount(materialID string) (int, error)

	// HistoryAt returns the i-th history digest of a material.
	HistoryAt(materialID string, i int) (common.Hash, error)

	// HistorySlice returns up to limit history digests starting at offset.
	HistorySlice(materialID string, offset, limit int) ([]common.Hash, error)

	// GlobalHistoryCount returns the length of the registry-wide serial log.
	// Issuer-level operations appear only here, not in any material history.
	GlobalHistoryCount() int

	// GlobalHistorySlice returns up to limit entries of the registry-wide
	// serial log starting at offset.
	GlobalHistorySlice(offset, limit int) []common.Hash
}

// MaterialRegistry is the authoritative state machine over materials,
// credentials, transfers and issuer permissions. All mutating operations are
// totally ordered through a single writer; each returns a receipt and appends
// exactly one history entry per affected material. Mutations fail atomically:
// on error no state changes and no history is appended.
type MaterialRegistry interface {
	RegistryReader

	// AuthorizeIssuer sets an issuer's capability flags and clears any
	// revocation. Admin only. Idempotent in content.
	AuthorizeIssuer(ctx context.Context, caller, issuer common.Address, canIdentity, canQC, canUsage bool) (Receipt, error)

	// RevokeIssuer marks an issuer revoked as of now. Admin only.
	// Credentials issued strictly before the revocation remain valid.
	RevokeIssuer(ctx context.Context, caller, issuer common.Address) (Receipt, error)

	// RegisterMaterial mints a new material owned by the caller.
	RegisterMaterial(ctx context.Context, caller common.Address, materialType MaterialType, metadataHash common.Hash, ownerOrg string) (string, Receipt, error)

	// IssueCredential admits a new credential after authorization checks.
	IssueCredential(ctx context.Context, caller common.Address, params IssueCredentialParams) (string, Receipt, error)

	// RevokeCredential marks a credential revoked. Only the original issuer
	// or the admin may revoke; a second revocation fails.
	RevokeCredential(ctx context.Context, caller common.Address, credentialID string) (Receipt, error)

	// SetStatusByOwner transitions a material between ACTIVE and QUARANTINED.
	// The caller must own the material; REVOKED is never reachable this way.
	SetStatusByOwner(ctx context.Context, caller common.Address, materialID string, status MaterialStatus, reasonHash common.Hash) (Receipt, error)

	// SetStatusByAuthority sets any status including terminal REVOKED. The
	// caller must be the admin or a currently-approved QC-capable issuer.
	SetStatusByAuthority(ctx context.Context, caller common.Address, materialID string, status MaterialStatus, reasonHash common.Hash) (Receipt, error)

	// InitiateTransfer opens a custody handoff to the recipient. The material
	// must be ACTIVE, owned by the caller, and have no pending transfer.
	InitiateTransfer(ctx context.Context, caller common.Address, materialID string, to common.Address, toOrg string, shipmentHash common.Hash) (string, Receipt, error)

	// AcceptTransfer completes the latest pending transfer on a material and
	// moves ownership to the recipient. Only the recipient may accept.
	AcceptTransfer(ctx context.Context, caller common.Address, materialID string) (Receipt, error)
}
