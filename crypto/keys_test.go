package crypto

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := MustNewAddress(raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bytes() != raw {
		t.Fatalf("round trip mismatch: %x", decoded.Bytes())
	}
}

func TestDecodeAddressRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not bech32",
		"cpx1qqqq",
	}
	for _, input := range cases {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("decoded %q", input)
		}
	}

	// A well-formed bech32 string under a foreign prefix is still rejected.
	var raw [20]byte
	raw[19] = 0x01
	conv, err := bech32.ConvertBits(raw[:], 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	foreign, err := bech32.Encode("nhb", conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatalf("accepted foreign prefix %q", foreign)
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatalf("accepted short input")
	}
	if _, err := NewAddress(make([]byte, 20)); err != nil {
		t.Fatalf("rejected 20 bytes: %v", err)
	}
}

func TestKeyRoundTripAndAddressDerivation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if key.PubKey().Address() != restored.PubKey().Address() {
		t.Fatalf("address changed across serialization")
	}
}
