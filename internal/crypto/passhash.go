package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Credential parameters.
const (
	SaltLen = 16
	HashLen = 32
)

// ErrMalformedCredential reports a stored credential that is neither "salt:hash" nor legacy plaintext.
var ErrMalformedCredential = errors.New("malformed credential")

// dummySalt keeps the work factor constant when a credential cannot be parsed.
var dummySalt = make([]byte, SaltLen)

// Credential is a salted PBKDF2 password digest.
type Credential struct {
	Salt []byte
	Hash []byte
}

// String serializes the credential as base64(salt):base64(hash).
func (c Credential) String() string {
	return base64.StdEncoding.EncodeToString(c.Salt) + ":" + base64.StdEncoding.EncodeToString(c.Hash)
}

// ParseCredential decodes a "salt:hash" credential.
func ParseCredential(s string) (Credential, error) {
	saltB64, hashB64, ok := strings.Cut(s, ":")
	if !ok || saltB64 == "" || hashB64 == "" || strings.Contains(hashB64, ":") {
		return Credential{}, ErrMalformedCredential
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return Credential{}, ErrMalformedCredential
	}
	hash, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil || len(hash) != HashLen || len(salt) == 0 {
		return Credential{}, ErrMalformedCredential
	}
	return Credential{Salt: salt, Hash: hash}, nil
}

// IsLegacyCredential reports whether stored is a plaintext password from before hashing was introduced.
func IsLegacyCredential(stored string) bool {
	return !strings.Contains(stored, ":")
}

// HashPassword returns a fresh "salt:hash" credential for password.
func HashPassword(password string) (string, error) {
	salt, err := RandBytes(SaltLen)
	if err != nil {
		return "", err
	}
	hash, err := DeriveKey([]byte(password), salt, KDFIterations, HashLen)
	if err != nil {
		return "", err
	}
	return Credential{Salt: salt, Hash: hash}.String(), nil
}

// VerifyPassword checks password against a stored credential. Legacy plaintext credentials are
// compared directly; malformed credentials are rejected after the same derivation work as a real check.
func VerifyPassword(password, stored string) bool {
	if IsLegacyCredential(stored) {
		return stored != "" && Equal([]byte(password), []byte(stored))
	}
	cred, err := ParseCredential(stored)
	if err != nil {
		_, _ = DeriveKey([]byte(password), dummySalt, KDFIterations, HashLen)
		return false
	}
	got, err := DeriveKey([]byte(password), cred.Salt, KDFIterations, HashLen)
	if err != nil {
		return false
	}
	return Equal(got, cred.Hash)
}
