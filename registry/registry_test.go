package registry

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bioledger/bioregistry/interfaces"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	issuerA = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	issuerB = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	labB    = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

func hashOf(s string) common.Hash {
	return common.Hash(sha256.Sum256([]byte(s)))
}

// testRegistry creates a registry with a controllable clock starting at a
// fixed epoch.
func testRegistry(t *testing.T) (*Registry, *atomic.Int64) {
	t.Helper()
	clock := atomic.NewInt64(1_700_000_000)
	reg := New(Config{
		Admin: admin,
		Clock: clock.Load,
	})
	t.Cleanup(reg.Close)
	return reg, clock
}

func registerTestMaterial(t *testing.T, reg *Registry) string {
	t.Helper()
	id, receipt, err := reg.RegisterMaterial(context.Background(), owner, interfaces.MaterialCellLine, hashOf("HeLa v1"), "lab-a")
	require.NoError(t, err)
	require.True(t, receipt.Final())
	return id
}

func issueParams(materialID string, credType interfaces.CredentialType, validUntil int64) interfaces.IssueCredentialParams {
	return interfaces.IssueCredentialParams{
		MaterialID:     materialID,
		CredentialType: credType,
		CommitmentHash: hashOf("payload-" + string(credType)),
		ValidUntil:     validUntil,
		ArtifactCID:    "artifact-" + string(credType),
		ArtifactHash:   hashOf("artifact-" + string(credType)),
		IssuerOrg:      "issuer-org",
	}
}

func TestRegisterMaterial(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	id, receipt, err := reg.RegisterMaterial(ctx, owner, interfaces.MaterialCellLine, hashOf("HeLa v1"), "lab-a")
	require.NoError(t, err)
	assert.Equal(t, "bio:cell_line:1", id)
	assert.True(t, receipt.Final())
	assert.Len(t, receipt.Logs, 1)
	assert.Equal(t, "material_registered", receipt.Logs[0].Tag)

	mat, err := reg.Material(id)
	require.NoError(t, err)
	assert.Equal(t, owner, mat.OwnerAddress)
	assert.Equal(t, "lab-a", mat.OwnerOrg)
	assert.Equal(t, interfaces.StatusActive, mat.Status)
	assert.Equal(t, mat.CreatedAt, mat.UpdatedAt)

	// Plasmid ids carry their own kind but share nothing with cell lines
	// except the counter.
	id2, _, err := reg.RegisterMaterial(ctx, owner, interfaces.MaterialPlasmid, hashOf("pUC19"), "lab-a")
	require.NoError(t, err)
	assert.Equal(t, "bio:plasmid:2", id2)
}

func TestRegisterMaterial_Validation(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	_, _, err := reg.RegisterMaterial(ctx, owner, "ORGANOID", hashOf("x"), "lab-a")
	assert.ErrorIs(t, err, interfaces.ErrInvalidMaterialType)

	_, _, err = reg.RegisterMaterial(ctx, owner, interfaces.MaterialCellLine, common.Hash{}, "lab-a")
	assert.ErrorIs(t, err, interfaces.ErrInvalidCommitmentHash)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}

func TestAuthorizeIssuer_AdminOnly(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	_, err := reg.AuthorizeIssuer(ctx, owner, issuerA, true, false, false)
	assert.ErrorIs(t, err, interfaces.ErrNotAdmin)
	assert.ErrorIs(t, err, interfaces.ErrAuthorization)

	_, err = reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)

	perm, err := reg.IssuerPermission(issuerA)
	require.NoError(t, err)
	assert.True(t, perm.Approved)
	assert.True(t, perm.CanIssueIdentity)
	assert.False(t, perm.CanIssueQC)
	assert.Zero(t, perm.RevokedAt)
}

func TestAuthorizeIssuer_ClearsRevocation(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, true, false)
	require.NoError(t, err)
	_, err = reg.RevokeIssuer(ctx, admin, issuerA)
	require.NoError(t, err)

	perm, _ := reg.IssuerPermission(issuerA)
	assert.False(t, perm.Approved)
	assert.NotZero(t, perm.RevokedAt)

	_, err = reg.AuthorizeIssuer(ctx, admin, issuerA, true, true, false)
	require.NoError(t, err)
	perm, _ = reg.IssuerPermission(issuerA)
	assert.True(t, perm.Approved)
	assert.Zero(t, perm.RevokedAt)
}

func TestIssueCredential(t *testing.T) {
	reg, clock := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)

	credID, receipt, err := reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialIdentity, clock.Load()+86400))
	require.NoError(t, err)
	assert.Equal(t, "cred:1", credID)
	assert.True(t, receipt.Final())

	creds, err := reg.Credentials(materialID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, issuerA, creds[0].IssuerAddress)
	assert.Equal(t, clock.Load(), creds[0].IssuedAt)
	assert.False(t, creds[0].Revoked)
}

func TestIssueCredential_AuthorizationOrder(t *testing.T) {
	reg, clock := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	// Unknown issuer.
	_, _, err := reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialIdentity, 0))
	assert.ErrorIs(t, err, interfaces.ErrNotApprovedIssuer)

	// Revoked issuer fails with the revocation cause, not the approval one.
	_, err = reg.AuthorizeIssuer(ctx, admin, issuerA, true, true, false)
	require.NoError(t, err)
	_, err = reg.RevokeIssuer(ctx, admin, issuerA)
	require.NoError(t, err)
	_, _, err = reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialIdentity, 0))
	assert.ErrorIs(t, err, interfaces.ErrIssuerRevoked)

	// Missing capability.
	_, err = reg.AuthorizeIssuer(ctx, admin, issuerB, true, false, false)
	require.NoError(t, err)
	_, _, err = reg.IssueCredential(ctx, issuerB, issueParams(materialID, interfaces.CredentialQCMyco, 0))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForCredentialType)

	// Unknown material.
	_, _, err = reg.IssueCredential(ctx, issuerB, issueParams("bio:cell_line:999", interfaces.CredentialIdentity, 0))
	assert.ErrorIs(t, err, interfaces.ErrMaterialNotFound)

	// Zero hashes and stale validity windows.
	params := issueParams(materialID, interfaces.CredentialIdentity, 0)
	params.CommitmentHash = common.Hash{}
	_, _, err = reg.IssueCredential(ctx, issuerB, params)
	assert.ErrorIs(t, err, interfaces.ErrInvalidCommitmentHash)

	params = issueParams(materialID, interfaces.CredentialIdentity, 0)
	params.ArtifactHash = common.Hash{}
	_, _, err = reg.IssueCredential(ctx, issuerB, params)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArtifactHash)

	_, _, err = reg.IssueCredential(ctx, issuerB, issueParams(materialID, interfaces.CredentialIdentity, clock.Load()))
	assert.ErrorIs(t, err, interfaces.ErrInvalidValidUntil)
}

func TestIssueCredential_IssuedAtMonotonePerMaterial(t *testing.T) {
	reg, clock := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, true, false)
	require.NoError(t, err)

	_, _, err = reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialIdentity, 0))
	require.NoError(t, err)

	// A clock that runs backwards must not reorder issuance times.
	clock.Sub(3600)
	_, _, err = reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialQCMyco, 0))
	require.NoError(t, err)

	creds, err := reg.Credentials(materialID)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.LessOrEqual(t, creds[0].IssuedAt, creds[1].IssuedAt)
}

func TestRevokeCredential(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)
	credID, _, err := reg.IssueCredential(ctx, issuerA, issueParams(materialID, interfaces.CredentialIdentity, 0))
	require.NoError(t, err)

	// Not the issuer, not the admin.
	_, err = reg.RevokeCredential(ctx, owner, credID)
	assert.ErrorIs(t, err, interfaces.ErrNotCredentialIssuer)

	_, err = reg.RevokeCredential(ctx, issuerA, credID)
	require.NoError(t, err)

	creds, _ := reg.Credentials(materialID)
	assert.True(t, creds[0].Revoked)

	// Revocation happens exactly once.
	_, err = reg.RevokeCredential(ctx, issuerA, credID)
	assert.ErrorIs(t, err, interfaces.ErrCredentialAlreadyRevoked)
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)

	_, err = reg.RevokeCredential(ctx, admin, "cred:999")
	assert.ErrorIs(t, err, interfaces.ErrCredentialNotFound)
}

func TestSetStatusByOwner(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	_, err := reg.SetStatusByOwner(ctx, labB, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)

	_, err = reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	require.NoError(t, err)
	mat, _ := reg.Material(materialID)
	assert.Equal(t, interfaces.StatusQuarantined, mat.Status)

	_, err = reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusActive, hashOf("release"))
	require.NoError(t, err)
	mat, _ = reg.Material(materialID)
	assert.Equal(t, interfaces.StatusActive, mat.Status)

	// The owner can never reach REVOKED.
	_, err = reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusRevoked, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForStatus)
	mat, _ = reg.Material(materialID)
	assert.Equal(t, interfaces.StatusActive, mat.Status)
}

func TestSetStatusByAuthority(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	// Owner is not an authority.
	_, err := reg.SetStatusByAuthority(ctx, owner, materialID, interfaces.StatusRevoked, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForStatus)

	// A QC-capable issuer is.
	_, err = reg.AuthorizeIssuer(ctx, admin, issuerB, false, true, false)
	require.NoError(t, err)
	_, err = reg.SetStatusByAuthority(ctx, issuerB, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	require.NoError(t, err)

	// An identity-only issuer is not.
	_, err = reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)
	_, err = reg.SetStatusByAuthority(ctx, issuerA, materialID, interfaces.StatusRevoked, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForStatus)

	// Admin revokes; REVOKED is terminal.
	_, err = reg.SetStatusByAuthority(ctx, admin, materialID, interfaces.StatusRevoked, hashOf("reason"))
	require.NoError(t, err)
	_, err = reg.SetStatusByAuthority(ctx, admin, materialID, interfaces.StatusActive, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrMaterialTerminal)

	// A revoked QC issuer loses the authority.
	_, err = reg.RevokeIssuer(ctx, admin, issuerB)
	require.NoError(t, err)
	materialID2 := registerTestMaterial(t, reg)
	_, err = reg.SetStatusByAuthority(ctx, issuerB, materialID2, interfaces.StatusQuarantined, hashOf("reason"))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForStatus)
}

func TestTransferLifecycle(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	transferID, receipt, err := reg.InitiateTransfer(ctx, owner, materialID, labB, "lab-b", hashOf("shipment"))
	require.NoError(t, err)
	assert.Equal(t, "xfer:1", transferID)
	assert.True(t, receipt.Final())

	// At most one pending transfer per material.
	_, _, err = reg.InitiateTransfer(ctx, owner, materialID, labB, "lab-b", hashOf("shipment2"))
	assert.ErrorIs(t, err, interfaces.ErrPendingTransferExists)

	// Only the recipient may accept.
	_, err = reg.AcceptTransfer(ctx, owner, materialID)
	assert.ErrorIs(t, err, interfaces.ErrNotTransferRecipient)

	_, err = reg.AcceptTransfer(ctx, labB, materialID)
	require.NoError(t, err)

	mat, _ := reg.Material(materialID)
	assert.Equal(t, labB, mat.OwnerAddress)
	assert.Equal(t, "lab-b", mat.OwnerOrg)

	transfers, err := reg.Transfers(materialID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.True(t, transfers[0].Accepted)

	// Nothing left to accept.
	_, err = reg.AcceptTransfer(ctx, labB, materialID)
	assert.ErrorIs(t, err, interfaces.ErrNoPendingTransfer)

	// The new owner initiates the next hop.
	_, _, err = reg.InitiateTransfer(ctx, owner, materialID, owner, "lab-a", hashOf("return"))
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)
	_, _, err = reg.InitiateTransfer(ctx, labB, materialID, owner, "lab-a", hashOf("return"))
	require.NoError(t, err)
}

func TestInitiateTransfer_RequiresActive(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	_, err := reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	require.NoError(t, err)

	_, _, err = reg.InitiateTransfer(ctx, owner, materialID, labB, "lab-b", hashOf("shipment"))
	assert.ErrorIs(t, err, interfaces.ErrMaterialNotActive)
}

func TestHistory_AppendOnly(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()
	materialID := registerTestMaterial(t, reg)

	count, err := reg.HistoryCount(materialID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Failed mutations append nothing.
	_, err = reg.SetStatusByOwner(ctx, labB, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	require.Error(t, err)
	count, _ = reg.HistoryCount(materialID)
	assert.Equal(t, 1, count)

	_, err = reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusQuarantined, hashOf("reason"))
	require.NoError(t, err)
	count, _ = reg.HistoryCount(materialID)
	assert.Equal(t, 2, count)

	first, err := reg.HistoryAt(materialID, 0)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, first)

	slice, err := reg.HistorySlice(materialID, 1, 10)
	require.NoError(t, err)
	require.Len(t, slice, 1)
	second, _ := reg.HistoryAt(materialID, 1)
	assert.Equal(t, second, slice[0])
	assert.NotEqual(t, first, second)

	// Out-of-range reads.
	_, err = reg.HistoryAt(materialID, 5)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	empty, err := reg.HistorySlice(materialID, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGlobalHistory_CoversIssuerOperations(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	require.Zero(t, reg.GlobalHistoryCount())
	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.GlobalHistoryCount())

	registerTestMaterial(t, reg)
	assert.Equal(t, 2, reg.GlobalHistoryCount())
	assert.Len(t, reg.GlobalHistorySlice(0, 10), 2)
}

func TestBlockHeight_AdvancesPerCommit(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	require.Zero(t, reg.BlockHeight())
	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reg.BlockHeight())

	// Rejected operations do not advance the log.
	_, err = reg.AuthorizeIssuer(ctx, owner, issuerA, true, false, false)
	require.Error(t, err)
	assert.EqualValues(t, 1, reg.BlockHeight())
}

func TestClose_RejectsLaterWrites(t *testing.T) {
	reg, _ := testRegistry(t)
	reg.Close()

	_, err := reg.AuthorizeIssuer(context.Background(), admin, issuerA, true, false, false)
	assert.ErrorIs(t, err, interfaces.ErrTransport)
}

func TestSubmit_HonorsCancellationBeforeAdmission(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := reg.RegisterMaterial(ctx, owner, interfaces.MaterialCellLine, hashOf("x"), "lab-a")
	assert.ErrorIs(t, err, context.Canceled)
}
