package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
)

// piiSalt is the fixed application-level salt for the PII key.
const piiSalt = "cyberunion-salt"

// ErrMalformedBlob reports a value that is not an "iv:ciphertext" envelope.
var ErrMalformedBlob = errors.New("malformed encrypted blob")

// EncryptedBlob is one encrypted field.
type EncryptedBlob struct {
	IV         []byte
	Ciphertext []byte
}

// String serializes the blob as base64(iv):base64(ciphertext).
func (b EncryptedBlob) String() string {
	return base64.StdEncoding.EncodeToString(b.IV) + ":" + base64.StdEncoding.EncodeToString(b.Ciphertext)
}

// looksSealed reports whether s has the two-segment envelope shape.
func looksSealed(s string) bool {
	iv, ct, ok := strings.Cut(s, ":")
	return ok && iv != "" && ct != "" && !strings.Contains(ct, ":")
}

// ParseEncryptedBlob decodes an "iv:ciphertext" envelope.
func ParseEncryptedBlob(s string) (EncryptedBlob, error) {
	if !looksSealed(s) {
		return EncryptedBlob{}, ErrMalformedBlob
	}
	ivB64, ctB64, _ := strings.Cut(s, ":")
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return EncryptedBlob{}, ErrMalformedBlob
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return EncryptedBlob{}, ErrMalformedBlob
	}
	return EncryptedBlob{IV: iv, Ciphertext: ct}, nil
}

// PIICipher encrypts personal data fields under one key derived from a configured secret.
type PIICipher struct {
	key []byte
}

// NewPIICipher derives the PII key from secret. Derivation runs once per cipher.
func NewPIICipher(secret string) (*PIICipher, error) {
	key, err := DeriveKey([]byte(secret), []byte(piiSalt), KDFIterations, KeyLen)
	if err != nil {
		return nil, err
	}
	return &PIICipher{key: key}, nil
}

// Seal encrypts plaintext with a fresh IV.
func (c *PIICipher) Seal(plaintext string) (string, error) {
	iv, err := RandBytes(IVLen)
	if err != nil {
		return "", err
	}
	ct, err := Encrypt(c.key, iv, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return EncryptedBlob{IV: iv, Ciphertext: ct}.String(), nil
}

// Open decrypts an envelope produced by Seal.
func (c *PIICipher) Open(stored string) (string, error) {
	blob, err := ParseEncryptedBlob(stored)
	if err != nil {
		return "", err
	}
	pt, err := Decrypt(c.key, blob.IV, blob.Ciphertext)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Reveal is the backward-compatible read path: values without the envelope shape are legacy
// plaintext and returned unchanged; envelopes that fail to open degrade to the raw stored value.
func (c *PIICipher) Reveal(stored string) string {
	if !looksSealed(stored) {
		return stored
	}
	pt, err := c.Open(stored)
	if err != nil {
		return stored
	}
	return pt
}
