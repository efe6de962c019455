package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(DGXPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "dgx1") {
		t.Fatalf("expected dgx1 prefix, got %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if decoded.Prefix() != DGXPrefix {
		t.Fatalf("prefix mismatch: %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("byte mismatch: %x != %x", decoded.Bytes(), raw)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"dgx1",
		"notbech32atall",
		"dgx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", // bad checksum
	}
	for _, tc := range cases {
		if _, err := DecodeAddress(tc); err == nil {
			t.Fatalf("expected decode of %q to fail", tc)
		}
	}
}

func TestPrivateKeyAddressDerivation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != DGXPrefix {
		t.Fatalf("expected dgx prefix, got %q", addr.Prefix())
	}
	if len(addr.Bytes()) != 20 {
		t.Fatalf("expected 20 byte address, got %d", len(addr.Bytes()))
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatal("restored key derives a different address")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded := "0x" + hex.EncodeToString(key.Bytes())
	restored, err := PrivateKeyFromHex(encoded)
	if err != nil {
		t.Fatalf("parse hex key: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatal("hex round trip changed the key")
	}

	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Fatal("expected invalid hex to fail")
	}
}
