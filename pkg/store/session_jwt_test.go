package store

import (
	"testing"
	"time"
)

func TestJWTAccessTokenRoundTrip(t *testing.T) {
	tokens, err := NewJWTAccessTokenStore("test-secret", time.Minute, JWTOptions{})
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	token, err := tokens.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	subject, err := tokens.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", subject)
	}
}

func TestJWTAccessTokenRejectsWrongSecret(t *testing.T) {
	signer, err := NewJWTAccessTokenStore("secret-a", time.Minute, JWTOptions{})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewJWTAccessTokenStore("secret-b", time.Minute, JWTOptions{})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := signer.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verifier.VerifySubject(token); err == nil {
		t.Fatalf("expected verification failure across secrets")
	}
}

func TestJWTAccessTokenRejectsExpired(t *testing.T) {
	tokens, err := NewJWTAccessTokenStore("test-secret", time.Minute, JWTOptions{Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	tokens.ttl = -time.Minute
	token, err := tokens.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := tokens.VerifySubject(token); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}

func TestJWTAccessTokenRequiresSecret(t *testing.T) {
	if _, err := NewJWTAccessTokenStore("  ", time.Minute, JWTOptions{}); err == nil {
		t.Fatalf("expected constructor error for empty secret")
	}
}
