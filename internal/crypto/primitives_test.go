package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}

	var ce *CryptoError
	if _, err := RandBytes(-1); !errors.As(err, &ce) {
		t.Fatalf("want CryptoError on negative length, got %v", err)
	}
}

func TestDeriveKey_DeterministicAndInputDependent(t *testing.T) {
	t.Parallel()

	k1, err := DeriveKey([]byte("secret"), []byte("salt-1"), 1000, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey([]byte("secret"), []byte("salt-1"), 1000, 32)
	if !bytes.Equal(k1, k2) || len(k1) != 32 {
		t.Fatalf("DeriveKey not deterministic / wrong length")
	}
	k3, _ := DeriveKey([]byte("secret"), []byte("salt-2"), 1000, 32)
	if bytes.Equal(k1, k3) {
		t.Fatalf("DeriveKey must change with salt")
	}
	k4, _ := DeriveKey([]byte("secret"), []byte("salt-1"), 1001, 32)
	if bytes.Equal(k1, k4) {
		t.Fatalf("DeriveKey must change with iterations")
	}
}

func TestDeriveKey_BadParams(t *testing.T) {
	t.Parallel()

	var ce *CryptoError
	if _, err := DeriveKey([]byte("s"), []byte("salt"), 0, 32); !errors.As(err, &ce) {
		t.Fatalf("want CryptoError on zero iterations, got %v", err)
	}
	if _, err := DeriveKey([]byte("s"), []byte("salt"), 10, 0); !errors.As(err, &ce) {
		t.Fatalf("want CryptoError on zero key length, got %v", err)
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	t.Parallel()

	key, _ := RandBytes(KeyLen)
	iv, _ := RandBytes(IVLen)
	pt := []byte("top secret payload \x00\x01\x02")

	ct, err := Encrypt(key, iv, pt)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ct, pt) {
		t.Fatalf("ciphertext must differ from plaintext")
	}
	got, err := Decrypt(key, iv, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestDecrypt_IntegrityFailures(t *testing.T) {
	t.Parallel()

	key, _ := RandBytes(KeyLen)
	iv, _ := RandBytes(IVLen)
	ct, _ := Encrypt(key, iv, []byte("payload"))

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0xFF
	if _, err := Decrypt(key, iv, tampered); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("want ErrIntegrity on tampered ciphertext, got %v", err)
	}

	other, _ := RandBytes(KeyLen)
	if _, err := Decrypt(other, iv, ct); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("want ErrIntegrity on wrong key, got %v", err)
	}
}

func TestEncrypt_BadKeyMaterial(t *testing.T) {
	t.Parallel()

	var ce *CryptoError
	iv, _ := RandBytes(IVLen)
	if _, err := Encrypt([]byte("short"), iv, []byte("x")); !errors.As(err, &ce) {
		t.Fatalf("want CryptoError on bad key, got %v", err)
	}
	key, _ := RandBytes(KeyLen)
	if _, err := Encrypt(key, []byte{1, 2, 3}, []byte("x")); !errors.As(err, &ce) {
		t.Fatalf("want CryptoError on bad iv, got %v", err)
	}
	if _, err := Decrypt(key, []byte{1}, []byte("x")); errors.Is(err, ErrIntegrity) || !errors.As(err, &ce) {
		t.Fatalf("bad iv must be a CryptoError, not an integrity failure: %v", err)
	}
}

func TestSign_DeterministicAndKeyed(t *testing.T) {
	t.Parallel()

	a := Sign([]byte("k"), []byte("msg"))
	b := Sign([]byte("k"), []byte("msg"))
	if !Equal(a, b) || len(a) != 32 {
		t.Fatalf("Sign not deterministic / wrong length")
	}
	if Equal(a, Sign([]byte("k2"), []byte("msg"))) {
		t.Fatalf("Sign must depend on key")
	}
	if Equal(a, Sign([]byte("k"), []byte("msg2"))) {
		t.Fatalf("Sign must depend on message")
	}
}
