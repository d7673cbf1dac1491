package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5A}, AddressLength)
	addr := NewAddress(VaultPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(VaultPrefix)+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: %x", decoded.Bytes())
	}
	if decoded.Prefix() != VaultPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-bech32", "vlt1qqqq"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestKeyDerivesStableAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if key.PubKey().Address().String() != restored.PubKey().Address().String() {
		t.Fatalf("address must be stable across key serialization")
	}
}
