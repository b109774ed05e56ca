package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashPassword_Format(t *testing.T) {
	t.Parallel()

	stored, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if strings.Count(stored, ":") != 1 {
		t.Fatalf("want salt:hash, got %q", stored)
	}
	cred, err := ParseCredential(stored)
	if err != nil {
		t.Fatalf("ParseCredential: %v", err)
	}
	if len(cred.Salt) != SaltLen || len(cred.Hash) != HashLen {
		t.Fatalf("salt=%d hash=%d", len(cred.Salt), len(cred.Hash))
	}

	again, _ := HashPassword("p@ssw0rd")
	if again == stored {
		t.Fatalf("fresh salt must make credentials differ")
	}
}

func TestHashPassword_DigestReproducibleUnderFixedSalt(t *testing.T) {
	t.Parallel()

	stored, _ := HashPassword("correct horse")
	cred, _ := ParseCredential(stored)

	h, err := DeriveKey([]byte("correct horse"), cred.Salt, KDFIterations, HashLen)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(h, cred.Hash) {
		t.Fatalf("digest not reproducible with stored salt")
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	stored, _ := HashPassword("correct horse battery staple")

	if !VerifyPassword("correct horse battery staple", stored) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword("wrong", stored) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if VerifyPassword("", stored) {
		t.Fatalf("VerifyPassword: expected false for empty password")
	}
}

func TestVerifyPassword_MalformedIsFalse(t *testing.T) {
	t.Parallel()

	for _, stored := range []string{
		":",
		"abc:",
		":abc",
		"not-base64!:also-not",
		"AAAA:AAAA",   // hash too short
		"AAAA:BB:CC", // three segments
	} {
		if VerifyPassword("pw", stored) {
			t.Fatalf("VerifyPassword(%q) must be false", stored)
		}
	}
}

func TestVerifyPassword_Legacy(t *testing.T) {
	t.Parallel()

	if !IsLegacyCredential("secret123") {
		t.Fatalf("plaintext credential must be legacy")
	}
	if !VerifyPassword("secret123", "secret123") {
		t.Fatalf("legacy credential must verify against the same input")
	}
	for _, in := range []string{"secret124", "Secret123", "", "secret1234"} {
		if VerifyPassword(in, "secret123") {
			t.Fatalf("legacy credential must not verify against %q", in)
		}
	}
	if VerifyPassword("", "") {
		t.Fatalf("empty stored credential must never verify")
	}
}
