// Package clientcrypto seals client-side state at rest (the persisted login session).
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	StoreKeyLen = chacha20poly1305.KeySize
)

// ErrTooShort reports a sealed value shorter than its nonce.
var ErrTooShort = errors.New("sealed value too short")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveStoreKey derives a storage key from the application secret via HKDF-SHA256,
// using purpose as info so different stores never share a key.
func DeriveStoreKey(secret []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	key := make([]byte, StoreKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under key, binding aad.
// Output layout: nonce || ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open reverses Seal. A different key or aad fails authentication.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, ErrTooShort
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}
