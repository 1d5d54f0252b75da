package sealer

import (
	"errors"
	"testing"
)

const testKey = "lfQVRuulcL2iOhOJ2r8BYTweoSKwVAJnIF9U+AL+M60="

func TestSealer_RoundTrip(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	token, err := s.CreateOpaqueToken("66f0c0ffee", "pi_3Nabc")
	if err != nil {
		t.Fatalf("CreateOpaqueToken() error = %v", err)
	}

	dateID, intentID, err := s.ParseOpaqueToken(token)
	if err != nil {
		t.Fatalf("ParseOpaqueToken() error = %v", err)
	}
	if dateID != "66f0c0ffee" || intentID != "pi_3Nabc" {
		t.Errorf("got (%q, %q)", dateID, intentID)
	}
}

func TestSealer_TokensAreNotDeterministic(t *testing.T) {
	s, _ := New(testKey)
	a, _ := s.CreateOpaqueToken("d", "i")
	b, _ := s.CreateOpaqueToken("d", "i")
	if a == b {
		t.Error("expected distinct tokens for the same input")
	}
}

func TestSealer_RejectsForeignAndTamperedTokens(t *testing.T) {
	s, _ := New(testKey)
	other, _ := NewRandom()

	token, _ := other.CreateOpaqueToken("d", "i")
	if _, _, err := s.ParseOpaqueToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign key, got %v", err)
	}

	for _, bad := range []string{"", "abc", "!!!not-base64!!!"} {
		if _, _, err := s.ParseOpaqueToken(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken for %q, got %v", bad, err)
		}
	}
}

func TestNew_InvalidKey(t *testing.T) {
	if _, err := New("c2hvcnQ="); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := New("%%%"); err == nil {
		t.Error("expected error for non-base64 key")
	}
}

func TestCreateOpaqueToken_RejectsSeparator(t *testing.T) {
	s, _ := New(testKey)
	if _, err := s.CreateOpaqueToken("a:b", "c"); err == nil {
		t.Error("expected error when first part contains ':'")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	s, err := New(key)
	if err != nil {
		t.Fatalf("New(generated) error = %v", err)
	}
	token, err := s.CreateOpaqueToken("d", "i")
	if err != nil {
		t.Fatalf("CreateOpaqueToken() error = %v", err)
	}
	if _, _, err := s.ParseOpaqueToken(token); err != nil {
		t.Errorf("ParseOpaqueToken() error = %v", err)
	}
}
