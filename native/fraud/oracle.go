// Package fraud implements the arbitration interface consulted when a
// recipient contests a handoff. The default oracle settles reports by
// checking the revealed private key against the recorded public key and
// attempting to recover the secret; deployments that route reports to an
// off-process arbitrator use the manual oracle and apply decisions later.
package fraud

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

var ErrInvalidPublicKey = errors.New("fraud: invalid public key")

// Oracle is the instant ECIES arbiter. A report is upheld (approved) when the
// revealed private key matches the exchange public key but the encrypted
// secret does not decrypt to content matching the asset metadata, meaning the
// holder delivered a bad secret. A report with a mismatched or malformed
// private key is rejected: the recipient failed to substantiate the claim.
type Oracle struct{}

func NewOracle() *Oracle { return &Oracle{} }

// AlwaysDecides reports that this oracle never defers.
func (*Oracle) AlwaysDecides() bool { return true }

// Decide settles the report in one step.
func (*Oracle) Decide(assetID uint64, metadata [32]byte, publicKey, privateKey, encryptedSecret []byte) (bool, bool, error) {
	priv, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return true, false, nil
	}
	if !keyMatches(priv, publicKey) {
		return true, false, nil
	}
	plain, err := ecies.ImportECDSA(priv).Decrypt(encryptedSecret, nil, nil)
	if err != nil {
		return true, true, nil
	}
	if metadata != ([32]byte{}) {
		digest := ethcrypto.Keccak256Hash(plain)
		if !bytes.Equal(digest[:], metadata[:]) {
			return true, true, nil
		}
	}
	return true, false, nil
}

func keyMatches(priv *ecdsa.PrivateKey, publicKey []byte) bool {
	pub := &priv.PublicKey
	switch len(publicKey) {
	case 33:
		return bytes.Equal(publicKey, ethcrypto.CompressPubkey(pub))
	case 65:
		return bytes.Equal(publicKey, ethcrypto.FromECDSAPub(pub))
	default:
		return false
	}
}

// ManualOracle always defers; deployments pair it with deferred decisions and
// settle via the engine's apply-decision path.
type ManualOracle struct{}

func NewManualOracle() *ManualOracle { return &ManualOracle{} }

func (*ManualOracle) AlwaysDecides() bool { return false }

func (*ManualOracle) Decide(assetID uint64, metadata [32]byte, publicKey, privateKey, encryptedSecret []byte) (bool, bool, error) {
	return false, false, nil
}

// EncryptSecret encrypts a secret under the recipient's exchange public key
// (33-byte compressed or 65-byte uncompressed secp256k1). Holder-side helper;
// the protocol itself treats the ciphertext as opaque.
func EncryptSecret(publicKey, secret []byte) ([]byte, error) {
	var (
		pub *ecdsa.PublicKey
		err error
	)
	switch len(publicKey) {
	case 33:
		pub, err = ethcrypto.DecompressPubkey(publicKey)
	case 65:
		pub, err = ethcrypto.UnmarshalPubkey(publicKey)
	default:
		return nil, ErrInvalidPublicKey
	}
	if err != nil {
		return nil, err
	}
	return ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), secret, nil, nil)
}
