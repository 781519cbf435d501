package streamcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDeriveKeyKnownValue(t *testing.T) {
	t.Parallel()

	key, err := DeriveKey(85342, "1.5.0", "pov_mask.asvr")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	want, err := hex.DecodeString("08764163" + "2ba37812" + "b5c0d88f" + "7c1ade23" + "c94ae3c4" + "12a2e246" + "1568594d" + "211a2efd")
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	if !bytes.Equal(key[:], want) {
		t.Fatalf("derived key mismatch:\n got  %x\n want %x", key[:], want)
	}
}

func TestDeriveKeyRejectsEmptyParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, version, baseURL string
	}{
		{"empty version", "", "pov_mask.asvr"},
		{"empty base url", "1.5.0", ""},
	}
	for _, c := range cases {
		if _, err := DeriveKey(85342, c.version, c.baseURL); err != ErrInvalidParams {
			t.Errorf("%s: got err=%v, want ErrInvalidParams", c.name, err)
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	k1, err := DeriveKey(1, "1.0.0", "scene.asvr")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey(1, "1.0.0", "scene.asvr")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected identical keys across runs")
	}
}

func TestXORKeystreamIsSymmetric(t *testing.T) {
	t.Parallel()

	key, err := DeriveKey(42, "2.0.0", "a.asvr")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	plain := []byte("the quick brown fox jumps over the lazy dog, twice over")
	buf := append([]byte(nil), plain...)

	if err := XORKeystream(buf, key, 7); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(buf, plain) {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	if err := XORKeystream(buf, key, 7); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(buf, plain) {
		t.Fatalf("round-trip mismatch: got %q want %q", buf, plain)
	}
}

func TestXORKeystreamDiffersByKeyID(t *testing.T) {
	t.Parallel()

	key, err := DeriveKey(42, "2.0.0", "a.asvr")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	plain := bytes.Repeat([]byte{0xAB}, 64)
	a := append([]byte(nil), plain...)
	b := append([]byte(nil), plain...)

	if err := XORKeystream(a, key, 1); err != nil {
		t.Fatalf("XORKeystream: %v", err)
	}
	if err := XORKeystream(b, key, HeaderKeyID); err != nil {
		t.Fatalf("XORKeystream: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("expected different keystreams for different key ids")
	}
}
