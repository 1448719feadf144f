package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParseMaterialID(t *testing.T) {
	id := FormatMaterialID(MaterialCellLine, 7)
	assert.Equal(t, "bio:cell_line:7", id)

	typ, n, err := ParseMaterialID(id)
	require.NoError(t, err)
	assert.Equal(t, MaterialCellLine, typ)
	assert.EqualValues(t, 7, n)

	typ, n, err = ParseMaterialID("bio:plasmid:42")
	require.NoError(t, err)
	assert.Equal(t, MaterialPlasmid, typ)
	assert.EqualValues(t, 42, n)
}

func TestParseMaterialID_Invalid(t *testing.T) {
	for _, bad := range []string{
		"",
		"bio:cell_line",
		"bio:organoid:1",
		"cred:1",
		"bio:cell_line:0",
		"bio:cell_line:01",
		"bio:cell_line:-3",
		"bio:cell_line:abc",
	} {
		_, _, err := ParseMaterialID(bad)
		assert.Error(t, err, "id %q", bad)
	}
}

func TestParsePrefixedIDs(t *testing.T) {
	n, err := ParseCredentialID("cred:12")
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	n, err = ParseTransferID("xfer:3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = ParseCredentialID("xfer:3")
	assert.Error(t, err)
	_, err = ParseTransferID("xfer:0")
	assert.Error(t, err)
}

func TestCredentialExpired(t *testing.T) {
	cred := Credential{ValidUntil: 0}
	assert.False(t, cred.Expired(1<<62), "zero valid_until never expires")

	cred.ValidUntil = 100
	assert.False(t, cred.Expired(100))
	assert.True(t, cred.Expired(101))
}

func TestIssuerPermissionCanIssue(t *testing.T) {
	perm := IssuerPermission{CanIssueIdentity: true, CanIssueUsageRights: true}
	assert.True(t, perm.CanIssue(CredentialIdentity))
	assert.False(t, perm.CanIssue(CredentialQCMyco))
	assert.True(t, perm.CanIssue(CredentialUsageRights))
	assert.False(t, perm.CanIssue(CredentialType("OTHER")))
}

func TestReasonAliases(t *testing.T) {
	assert.Equal(t, ReasonQCExpired, CanonicalReason("CREDENTIAL_EXPIRED"))
	assert.Equal(t, ReasonArtifactTampered, CanonicalReason("HASH_MISMATCH"))
	assert.Equal(t, ReasonArtifactTampered, CanonicalReason("INTEGRITY_FAILED"))
	assert.Equal(t, ReasonMaterialRevoked, CanonicalReason("STATUS_REVOKED"))
	assert.Equal(t, ReasonMaterialQuarantined, CanonicalReason("QUARANTINED"))

	// Exact-match fallback for unknown codes.
	assert.Equal(t, ReasonCode("SOMETHING_ELSE"), CanonicalReason("SOMETHING_ELSE"))

	assert.True(t, SameReason("CREDENTIAL_EXPIRED", ReasonQCExpired))
	assert.False(t, SameReason(ReasonQCExpired, ReasonQCMissing))

	reasons := []ReasonCode{ReasonMaterialQuarantined, ReasonQCExpired}
	assert.True(t, ContainsReason(reasons, "CREDENTIAL_EXPIRED"))
	assert.True(t, ContainsReason(reasons, "STATUS_QUARANTINED"))
	assert.False(t, ContainsReason(reasons, ReasonTransferPending))
}

func TestReceiptFinal(t *testing.T) {
	assert.False(t, Receipt{}.Final())
	assert.False(t, Receipt{TxID: "tx"}.Final())
	assert.False(t, Receipt{BlockHeight: 1}.Final())
	assert.True(t, Receipt{TxID: "tx", BlockHeight: 1}.Final())
}
