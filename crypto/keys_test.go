package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, 20)
	addr := NewAddress(DXPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(DXPrefix)+"1") {
		t.Fatalf("encoded address prefix: %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != DXPrefix {
		t.Fatalf("prefix mismatch: %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch: %x", decoded.Bytes())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "dx1", "not-bech32", "dx1bbbb"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("input %q should not decode", input)
		}
	}
}

func TestNewAddressLengthCheck(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("short address must panic")
		}
	}()
	NewAddress(DXPrefix, []byte{0x01})
}

func TestKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("restored key derives a different address")
	}
}
