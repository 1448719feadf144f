package issuer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bioledger/bioregistry/canonical"
	"github.com/bioledger/bioregistry/interfaces"
)

// CredentialPayload is the signed, committed body of a credential. Its
// canonical hash is the commitment recorded on-chain; the artifact digest
// binds the off-chain report bytes into the commitment.
type CredentialPayload struct {
	MaterialID     string                    `json:"material_id"`
	CredentialType interfaces.CredentialType `json:"credential_type"`
	IssuerOrg      string                    `json:"issuer_org"`
	IssuedAt       int64                     `json:"issued_at"`
	ValidUntil     int64                     `json:"valid_until"`
	ArtifactSHA256 string                    `json:"artifact_sha256"`
	Claims         map[string]any            `json:"claims,omitempty"`
}

// CommitmentHash returns the SHA-256 over the canonical form of the payload.
func (p CredentialPayload) CommitmentHash() (common.Hash, error) {
	return canonical.Hash(p)
}

// Signer signs credential payloads with a secp256k1 key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// Address returns the issuer address bound to this signer's public key.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignCredential signs the canonical commitment of a payload. It returns the
// 65-byte recoverable signature and the commitment hash it covers.
func (s *Signer) SignCredential(payload CredentialPayload) ([]byte, common.Hash, error) {
	commitment, err := payload.CommitmentHash()
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to commit payload: %w", err)
	}
	sig, err := crypto.Sign(commitment.Bytes(), s.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to sign commitment: %w", err)
	}
	return sig, commitment, nil
}

// RecoverSigner recovers the issuer address that signed a payload. The
// caller compares it against the on-chain issuer record; a mismatch means
// the payload or the signature does not belong to the recorded issuer.
func RecoverSigner(payload CredentialPayload, sig []byte) (common.Address, error) {
	commitment, err := payload.CommitmentHash()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to commit payload: %w", err)
	}
	pub, err := crypto.SigToPub(commitment.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyCredentialSignature checks that sig over payload was produced by the
// given issuer address.
func VerifyCredentialSignature(payload CredentialPayload, sig []byte, issuer common.Address) error {
	recovered, err := RecoverSigner(payload, sig)
	if err != nil {
		return err
	}
	if recovered != issuer {
		return fmt.Errorf("%w: signature recovered %s, expected %s", interfaces.ErrIntegrity, recovered.Hex(), issuer.Hex())
	}
	return nil
}
