// Package crypto implements the client-side security primitives: key derivation,
// authenticated encryption, keyed hashing, password credentials and PII envelopes.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// KDF and cipher parameters.
const (
	KDFIterations = 100000
	KeyLen        = 32 // AES-256
	IVLen         = 12 // GCM standard nonce
)

// ErrIntegrity reports a ciphertext that failed authentication (tampered data or wrong key).
var ErrIntegrity = errors.New("message authentication failed")

// CryptoError wraps any primitive failure with the operation that produced it.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return "crypto: " + e.Op + ": " + e.Err.Error() }

func (e *CryptoError) Unwrap() error { return e.Err }

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, &CryptoError{Op: "rand", Err: fmt.Errorf("negative length %d", n)}
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, &CryptoError{Op: "rand", Err: err}
	}
	return b, nil
}

// DeriveKey derives keyLen bytes from secret and salt with PBKDF2-HMAC-SHA256.
func DeriveKey(secret, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations <= 0 {
		return nil, &CryptoError{Op: "derive", Err: fmt.Errorf("iterations must be positive, got %d", iterations)}
	}
	if keyLen <= 0 {
		return nil, &CryptoError{Op: "derive", Err: fmt.Errorf("key length must be positive, got %d", keyLen)}
	}
	return pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New), nil
}

func newGCM(op string, key, iv []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: op, Err: err}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: op, Err: err}
	}
	if len(iv) != aead.NonceSize() {
		return nil, &CryptoError{Op: op, Err: fmt.Errorf("iv must be %d bytes, got %d", aead.NonceSize(), len(iv))}
	}
	return aead, nil
}

// Encrypt seals plaintext with AES-GCM under key and iv. The caller owns iv uniqueness.
func Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := newGCM("encrypt", key, iv)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens an AES-GCM ciphertext. Authentication failure yields a CryptoError wrapping ErrIntegrity.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM("decrypt", key, iv)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: ErrIntegrity}
	}
	return pt, nil
}

// Sign returns HMAC-SHA256(key, message).
func Sign(key, message []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(message)
	return m.Sum(nil)
}

// Equal compares a and b without short-circuiting on the first differing byte.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
