package fraud

import (
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

func TestEncryptSecretRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := []byte("hidden asset content")

	for _, pub := range [][]byte{
		ethcrypto.CompressPubkey(&key.PublicKey),
		ethcrypto.FromECDSAPub(&key.PublicKey),
	} {
		ciphertext, err := EncryptSecret(pub, secret)
		if err != nil {
			t.Fatalf("encrypt (%d-byte key): %v", len(pub), err)
		}
		plain, err := ecies.ImportECDSA(key).Decrypt(ciphertext, nil, nil)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(plain) != string(secret) {
			t.Fatalf("round trip mismatch: %q", plain)
		}
	}
}

func TestEncryptSecretRejectsBadKey(t *testing.T) {
	if _, err := EncryptSecret([]byte{0x01, 0x02}, []byte("x")); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if _, err := EncryptSecret(make([]byte, 33), []byte("x")); err == nil {
		t.Fatalf("expected decompress failure")
	}
}

func TestOracleRejectsUnsubstantiatedReports(t *testing.T) {
	oracle := NewOracle()
	if !oracle.AlwaysDecides() {
		t.Fatalf("instant oracle must always decide")
	}
	key, _ := ethcrypto.GenerateKey()
	other, _ := ethcrypto.GenerateKey()
	pub := ethcrypto.CompressPubkey(&key.PublicKey)

	// Malformed private key.
	decided, approved, err := oracle.Decide(1, [32]byte{}, pub, []byte{0xFF}, nil)
	if err != nil || !decided || approved {
		t.Fatalf("malformed key: decided=%v approved=%v err=%v", decided, approved, err)
	}
	// Revealed key does not match the exchange public key.
	decided, approved, err = oracle.Decide(1, [32]byte{}, pub, ethcrypto.FromECDSA(other), nil)
	if err != nil || !decided || approved {
		t.Fatalf("mismatched key: decided=%v approved=%v err=%v", decided, approved, err)
	}
}

func TestOracleUpholdsBadSecret(t *testing.T) {
	oracle := NewOracle()
	key, _ := ethcrypto.GenerateKey()
	pub := ethcrypto.CompressPubkey(&key.PublicKey)
	reveal := ethcrypto.FromECDSA(key)

	// Undecryptable ciphertext means the holder delivered garbage.
	decided, approved, err := oracle.Decide(1, [32]byte{}, pub, reveal, []byte("not a ciphertext"))
	if err != nil || !decided || !approved {
		t.Fatalf("garbage secret: decided=%v approved=%v err=%v", decided, approved, err)
	}

	// Valid ciphertext whose plaintext digest does not match the recorded
	// metadata is equally fraudulent.
	ciphertext, err := EncryptSecret(pub, []byte("wrong content"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	metadata := ethcrypto.Keccak256Hash([]byte("expected content"))
	decided, approved, err = oracle.Decide(1, metadata, pub, reveal, ciphertext)
	if err != nil || !decided || !approved {
		t.Fatalf("wrong content: decided=%v approved=%v err=%v", decided, approved, err)
	}
}

func TestOracleRejectsWhenSecretChecksOut(t *testing.T) {
	oracle := NewOracle()
	key, _ := ethcrypto.GenerateKey()
	pub := ethcrypto.CompressPubkey(&key.PublicKey)
	reveal := ethcrypto.FromECDSA(key)
	content := []byte("expected content")

	ciphertext, err := EncryptSecret(pub, content)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	metadata := ethcrypto.Keccak256Hash(content)
	decided, approved, err := oracle.Decide(1, metadata, pub, reveal, ciphertext)
	if err != nil || !decided || approved {
		t.Fatalf("valid secret: decided=%v approved=%v err=%v", decided, approved, err)
	}

	// Without recorded metadata the decryption alone clears the holder.
	decided, approved, err = oracle.Decide(1, [32]byte{}, pub, reveal, ciphertext)
	if err != nil || !decided || approved {
		t.Fatalf("no metadata: decided=%v approved=%v err=%v", decided, approved, err)
	}
}

func TestManualOracleAlwaysDefers(t *testing.T) {
	oracle := NewManualOracle()
	if oracle.AlwaysDecides() {
		t.Fatalf("manual oracle must defer")
	}
	decided, approved, err := oracle.Decide(1, [32]byte{}, nil, nil, nil)
	if err != nil || decided || approved {
		t.Fatalf("manual decide: decided=%v approved=%v err=%v", decided, approved, err)
	}
}
