package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	const password = "correct horse battery staple"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == password {
		t.Fatalf("hash must not equal the plaintext password")
	}
	if !CheckPassword(password, hash) {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPassword("wrong password", hash) {
		t.Fatalf("expected non-matching password to fail")
	}
}

func TestCheckPasswordRejectsMalformedHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("malformed stored hash must never verify")
	}
	if CheckPassword("anything", "") {
		t.Fatalf("empty stored hash must never verify")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("long enough secret"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
}
