package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-phrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-phrase" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifyPassword(hash, "s3cret-phrase") {
		t.Fatal("expected matching password to verify")
	}
	if VerifyPassword(hash, "wrong-phrase") {
		t.Fatal("expected mismatching password to fail")
	}
}

func TestVerifyPasswordNeverErrors(t *testing.T) {
	if VerifyPassword("", "anything") {
		t.Fatal("empty hash must not verify")
	}
	if VerifyPassword("not-a-bcrypt-hash", "anything") {
		t.Fatal("malformed hash must not verify")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
