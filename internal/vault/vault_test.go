package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	key1 := DeriveKey("secreto", PurposeTokens)
	key2 := DeriveKey("secreto", PurposeTokens)

	if !bytes.Equal(key1, key2) {
		t.Error("same secret+purpose should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, DeriveKey("secreto", PurposeCSRF)) {
		t.Error("different purposes should produce different keys")
	}
	if bytes.Equal(key1, DeriveKey("otro", PurposeTokens)) {
		t.Error("different secrets should produce different keys")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer("secreto")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	token := "eyJhbGciOiJIUzI1NiJ9.payload.signature"
	sealed, err := s.Seal(token)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, token) {
		t.Error("sealed value contains the plaintext")
	}

	again, _ := s.Seal(token)
	if sealed == again {
		t.Error("two seals of the same value should differ")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != token {
		t.Errorf("open = %q, want %q", got, token)
	}
}

func TestOpenWithWrongSecret(t *testing.T) {
	s1, _ := NewSealer("uno")
	s2, _ := NewSealer("dos")

	sealed, _ := s1.Seal("tok")
	if _, err := s2.Open(sealed); err == nil {
		t.Error("expected error opening with a different secret")
	}
}

func TestOpenMalformed(t *testing.T) {
	s, _ := NewSealer("secreto")
	for _, in := range []string{"", "!!!", "c2hvcnQ"} {
		if _, err := s.Open(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("Open(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestNewSealerEmptySecret(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := GenerateSecret()
	if len(a) != 64 || a == b {
		t.Errorf("secrets %q / %q", a, b)
	}
}
