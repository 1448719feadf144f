package verifier

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/registry"
	"github.com/bioledger/bioregistry/storage"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	issuerA = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	issuerB = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	labB    = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

const day = int64(86400)

func hashOf(s string) common.Hash {
	return common.Hash(sha256.Sum256([]byte(s)))
}

// env is the S1 baseline: a registered cell line with a valid identity
// credential from issuer A and a valid QC credential from issuer B, all
// artifacts present in the store.
type env struct {
	t          *testing.T
	reg        *registry.Registry
	store      *storage.MemoryStore
	ver        *Verifier
	clock      *atomic.Int64
	materialID string
	qcCID      string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := atomic.NewInt64(1_700_000_000)
	reg := registry.New(registry.Config{Admin: admin, Clock: clock.Load})
	t.Cleanup(reg.Close)
	store := storage.NewMemoryStore()

	ver := New(reg, nil,
		WithClock(clock.Load),
		WithArtifactStore(store, time.Second),
	)

	e := &env{t: t, reg: reg, store: store, ver: ver, clock: clock}
	ctx := context.Background()

	_, err := reg.AuthorizeIssuer(ctx, admin, issuerA, true, false, false)
	require.NoError(t, err)
	_, err = reg.AuthorizeIssuer(ctx, admin, issuerB, false, true, false)
	require.NoError(t, err)

	e.materialID, _, err = reg.RegisterMaterial(ctx, owner, interfaces.MaterialCellLine, hashOf("HeLa v1"), "lab-a")
	require.NoError(t, err)

	e.issue(issuerA, interfaces.CredentialIdentity, clock.Load()+365*day, []byte("identity: HeLa v1 STR profile"))
	e.qcCID = e.issue(issuerB, interfaces.CredentialQCMyco, clock.Load()+90*day, []byte("myco panel: negative"))
	return e
}

// issue stores artifact bytes and admits a credential referencing them,
// returning the artifact key.
func (e *env) issue(iss common.Address, credType interfaces.CredentialType, validUntil int64, artifact []byte) string {
	e.t.Helper()
	ctx := context.Background()

	cid, artifactHash, err := e.store.Store(ctx, artifact)
	require.NoError(e.t, err)

	_, _, err = e.reg.IssueCredential(ctx, iss, interfaces.IssueCredentialParams{
		MaterialID:     e.materialID,
		CredentialType: credType,
		CommitmentHash: hashOf("commitment:" + string(artifact)),
		ValidUntil:     validUntil,
		ArtifactCID:    cid,
		ArtifactHash:   artifactHash,
		IssuerOrg:      "org-" + iss.Hex()[2:6],
	})
	require.NoError(e.t, err)
	return cid
}

func TestVerify_HappyPath(t *testing.T) {
	e := newEnv(t)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.True(t, res.Pass)
	assert.Empty(t, res.Reasons)

	full, err := e.ver.VerifyMaterialFull(context.Background(), e.materialID)
	require.NoError(t, err)
	assert.True(t, full.Pass)
}

func TestVerify_QCReplayDefeated(t *testing.T) {
	e := newEnv(t)

	// A day later issuer B issues a second QC with a window so short it has
	// expired by verification time. The older QC is still within its 90-day
	// window but must not be honored.
	e.clock.Add(day)
	e.issue(issuerB, interfaces.CredentialQCMyco, e.clock.Load()+3600, []byte("stale myco panel"))
	e.clock.Add(2 * 3600)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonQCExpired}, res.Reasons)
}

func TestVerify_IssuerRevocationPreservesPastCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.clock.Add(day)
	_, err := e.reg.RevokeIssuer(ctx, admin, issuerB)
	require.NoError(t, err)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.True(t, res.Pass, "credentials issued before revocation stay valid")

	// No new credentials from the revoked issuer.
	_, _, err = e.reg.IssueCredential(ctx, issuerB, interfaces.IssueCredentialParams{
		MaterialID:     e.materialID,
		CredentialType: interfaces.CredentialQCMyco,
		CommitmentHash: hashOf("late"),
		ArtifactCID:    "late",
		ArtifactHash:   hashOf("late-artifact"),
	})
	assert.ErrorIs(t, err, interfaces.ErrIssuerRevoked)
}

func TestVerify_QCIssuerRevokedBeforeIssuance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// A newer QC issued at (not before) the revocation timestamp taints the
	// latest-QC slot. Authorize a second QC issuer, issue, then have the
	// admin revoke it at the same instant the credential carries.
	qcIssuer := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	_, err := e.reg.AuthorizeIssuer(ctx, admin, qcIssuer, false, true, false)
	require.NoError(t, err)

	e.clock.Add(day)
	e.issue(qcIssuer, interfaces.CredentialQCMyco, e.clock.Load()+90*day, []byte("suspect panel"))
	_, err = e.reg.RevokeIssuer(ctx, admin, qcIssuer)
	require.NoError(t, err)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonQCIssuerRevoked}, res.Reasons)
}

func TestVerify_PendingTransferBlocksValidity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, _, err := e.reg.InitiateTransfer(ctx, owner, e.materialID, labB, "lab-b", hashOf("shipment"))
	require.NoError(t, err)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonTransferPending}, res.Reasons)

	_, _, err = e.reg.InitiateTransfer(ctx, owner, e.materialID, labB, "lab-b", hashOf("shipment2"))
	assert.ErrorIs(t, err, interfaces.ErrPendingTransferExists)

	// Acceptance clears the reason.
	_, err = e.reg.AcceptTransfer(ctx, labB, e.materialID)
	require.NoError(t, err)
	res, err = e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.True(t, res.Pass)
}

func TestVerify_OwnerCannotRevoke(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.reg.SetStatusByOwner(ctx, owner, e.materialID, interfaces.StatusRevoked, hashOf("contaminated"))
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorizedForStatus)

	_, err = e.reg.SetStatusByAuthority(ctx, admin, e.materialID, interfaces.StatusRevoked, hashOf("contaminated"))
	require.NoError(t, err)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonMaterialRevoked}, res.Reasons)
}

func TestVerify_ArtifactTampered(t *testing.T) {
	e := newEnv(t)

	// The store serves bytes whose hash no longer matches the commitment.
	e.store.Put(e.qcCID, []byte("doctored myco panel"))

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.True(t, res.Pass, "on-chain verification does not see artifacts")

	full, err := e.ver.VerifyMaterialFull(context.Background(), e.materialID)
	require.NoError(t, err)
	assert.False(t, full.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonArtifactTampered}, full.Reasons)
}

func TestVerify_ArtifactUnavailableFailsClosed(t *testing.T) {
	e := newEnv(t)

	e.store.Delete(e.qcCID)
	full, err := e.ver.VerifyMaterialFull(context.Background(), e.materialID)
	require.NoError(t, err)
	assert.False(t, full.Pass)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonArtifactUnavailable}, full.Reasons)

	// A dead store fails every artifact, still a single deduplicated reason.
	e.store.SetAvailable(false)
	full, err = e.ver.VerifyMaterialFull(context.Background(), e.materialID)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonArtifactUnavailable}, full.Reasons)
}

func TestVerify_QuarantineAndMissingChecks(t *testing.T) {
	clock := atomic.NewInt64(1_700_000_000)
	reg := registry.New(registry.Config{Admin: admin, Clock: clock.Load})
	t.Cleanup(reg.Close)
	ver := New(reg, nil, WithClock(clock.Load))
	ctx := context.Background()

	materialID, _, err := reg.RegisterMaterial(ctx, owner, interfaces.MaterialPlasmid, hashOf("pUC19"), "lab-a")
	require.NoError(t, err)

	// Bare material: no identity, no QC.
	res, err := ver.VerifyMaterial(materialID)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []interfaces.ReasonCode{
		interfaces.ReasonMissingIdentity,
		interfaces.ReasonQCMissing,
	}, res.Reasons)

	// Quarantine prepends its reason, preserving evaluation order.
	_, err = reg.SetStatusByOwner(ctx, owner, materialID, interfaces.StatusQuarantined, hashOf("hold"))
	require.NoError(t, err)
	res, err = ver.VerifyMaterial(materialID)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ReasonCode{
		interfaces.ReasonMaterialQuarantined,
		interfaces.ReasonMissingIdentity,
		interfaces.ReasonQCMissing,
	}, res.Reasons)
}

func TestVerify_RevokedIdentityDoesNotCount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	creds, err := e.reg.Credentials(e.materialID)
	require.NoError(t, err)
	var identityID string
	for _, c := range creds {
		if c.CredentialType == interfaces.CredentialIdentity {
			identityID = c.ID
		}
	}
	require.NotEmpty(t, identityID)

	_, err = e.reg.RevokeCredential(ctx, issuerA, identityID)
	require.NoError(t, err)

	res, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonMissingIdentity}, res.Reasons)
}

func TestVerify_PureFunctionOfSnapshot(t *testing.T) {
	e := newEnv(t)

	first, err := e.ver.VerifyMaterial(e.materialID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.ver.VerifyMaterial(e.materialID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVerifyAt_UsesSuppliedTime(t *testing.T) {
	e := newEnv(t)

	// Beyond the QC window the same snapshot fails.
	res, err := e.ver.VerifyMaterialAt(e.materialID, e.clock.Load()+91*day)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ReasonCode{interfaces.ReasonQCExpired}, res.Reasons)

	res, err = e.ver.VerifyMaterialAt(e.materialID, e.clock.Load()+10*day)
	require.NoError(t, err)
	assert.True(t, res.Pass)
}

func TestVerify_UnknownMaterial(t *testing.T) {
	e := newEnv(t)
	_, err := e.ver.VerifyMaterial("bio:cell_line:999")
	assert.ErrorIs(t, err, interfaces.ErrMaterialNotFound)
}
