package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifySubject(t *testing.T) {
	m, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := m.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", subject)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer, _ := NewTokenManager("secret-a", time.Hour)
	verifier, _ := NewTokenManager("secret-b", time.Hour)
	token, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.VerifySubject(token); err == nil {
		t.Fatalf("token signed with a different secret accepted")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m, _ := NewTokenManager("test-secret", time.Hour)
	token, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := token[:len(token)-2] + "xy"
	if _, err := m.VerifySubject(tampered); err == nil {
		t.Fatalf("tampered token accepted")
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("  ", time.Hour); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
