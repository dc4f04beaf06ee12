package viewtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	s := NewSigner("test-secret")

	token := s.Sign(42, 7)
	if len(token) != 32 {
		t.Errorf("expected 32-char token, got %d", len(token))
	}
	if !s.Verify(42, 7, token) {
		t.Error("expected valid token to verify")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	s := NewSigner("test-secret")
	if s.Sign(42, 7) != s.Sign(42, 7) {
		t.Error("expected identical inputs to produce identical tokens")
	}
}

func TestVerifyRejectsMismatches(t *testing.T) {
	s := NewSigner("test-secret")
	token := s.Sign(42, 7)

	if s.Verify(43, 7, token) {
		t.Error("expected token bound to check-in ID")
	}
	if s.Verify(42, 8, token) {
		t.Error("expected token bound to user ID")
	}
	if s.Verify(42, 7, "") {
		t.Error("expected empty token to fail")
	}
	if s.Verify(42, 7, token[:31]+"x") {
		t.Error("expected altered token to fail")
	}
}

func TestDifferentSecretsDiffer(t *testing.T) {
	a := NewSigner("secret-a")
	b := NewSigner("secret-b")
	if a.Sign(42, 7) == b.Sign(42, 7) {
		t.Error("expected different secrets to produce different tokens")
	}
	if b.Verify(42, 7, a.Sign(42, 7)) {
		t.Error("expected cross-secret verification to fail")
	}
}

// A signer built without a secret must not fall back to a known key. A
// token computed client-side with an empty HMAC key would otherwise
// verify, opening every completion page to forged URLs.
func TestEmptySecretIsNotForgeable(t *testing.T) {
	s := NewSigner("")

	mac := hmac.New(sha256.New, nil)
	fmt.Fprintf(mac, "%d:%d", 42, 7)
	forged := hex.EncodeToString(mac.Sum(nil))[:tokenLength]
	if s.Verify(42, 7, forged) {
		t.Error("expected empty-key token to be rejected")
	}

	// The process's own tokens still round-trip.
	if !s.Verify(42, 7, s.Sign(42, 7)) {
		t.Error("expected own token to verify")
	}

	// And the generated key is per process, not shared.
	if NewSigner("").Verify(42, 7, s.Sign(42, 7)) {
		t.Error("expected distinct signers to use distinct keys")
	}
}

// Adjacent ID pairs must not collide: (1, 23) and (12, 3) concatenate to
// the same digits without a separator.
func TestIDSeparator(t *testing.T) {
	s := NewSigner("test-secret")
	if s.Sign(1, 23) == s.Sign(12, 3) {
		t.Error("expected distinct tokens for ambiguous ID pairs")
	}
}
