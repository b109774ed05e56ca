// Package payment implements the purchase flow: request signing and validation, the
// payment state machine, activation polling and local completion of payments.
package payment

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/clubpay/internal/crypto"
	"github.com/and161185/clubpay/internal/errs"
)

// Validation limits.
const (
	MaxAmount      = 10_000_000 // kopecks
	MaxCustomHours = 24
)

// customTariff stands in for an absent tariff id in the signed message.
const customTariff = "custom"

// SignPayload is the signed part of a payment-creation request.
type SignPayload struct {
	UserID    string
	Amount    int64
	TariffID  *string
	Timestamp int64
}

func (p SignPayload) message() string {
	tariff := customTariff
	if p.TariffID != nil && *p.TariffID != "" {
		tariff = *p.TariffID
	}
	return strings.Join([]string{
		p.UserID,
		strconv.FormatInt(p.Amount, 10),
		tariff,
		strconv.FormatInt(p.Timestamp, 10),
	}, ":")
}

// Signer signs and verifies payment requests with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns base64(HMAC-SHA256(secret, canonical message)).
func (s *Signer) Sign(p SignPayload) string {
	return base64.StdEncoding.EncodeToString(crypto.Sign(s.secret, []byte(p.message())))
}

// Verify re-signs p and compares with signature. Any failure is a plain false.
func (s *Signer) Verify(p SignPayload, signature string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return crypto.Equal([]byte(s.Sign(p)), []byte(signature))
}

// ValidateInput is the part of a purchase checked before anything leaves the client.
type ValidateInput struct {
	Amount      int64
	TariffID    *string
	CustomHours *int
}

// Validation is the structured validation result.
type Validation struct {
	Valid bool
	Error string
}

// Validate enforces amount and custom-hours bounds.
func (s *Signer) Validate(in ValidateInput) Validation {
	return Validate(in)
}

// Validate enforces amount and custom-hours bounds.
func Validate(in ValidateInput) Validation {
	if in.Amount <= 0 {
		return Validation{Error: "invalid payment amount"}
	}
	if in.Amount > MaxAmount {
		return Validation{Error: "payment amount too large"}
	}
	if in.CustomHours != nil && (*in.CustomHours <= 0 || *in.CustomHours > MaxCustomHours) {
		return Validation{Error: "invalid number of hours"}
	}
	return Validation{Valid: true}
}

// ValidationError carries a failed Validation as an error.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s", e.Reason) }

func (e *ValidationError) Unwrap() error { return errs.ErrValidation }
