// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// PaymentStatus is the lifecycle status of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition may happen from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentSucceeded, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// TariffType distinguishes fixed packages from hourly rates.
type TariffType string

const (
	TariffHourly  TariffType = "hourly"
	TariffPackage TariffType = "package"
)

// Tariff is a purchasable time package or hourly rate. Prices are in kopecks.
type Tariff struct {
	ID              uuid.UUID
	Name            string
	Description     string
	Type            TariffType
	Price           int64
	DurationMinutes int
	HourlyRate      int64 // 0 when the tariff carries no hourly rate
}

// RawTariff is a tariff row exactly as the store returned it. Numeric columns are
// left untyped and must go through payment.ParseTariffs before use.
type RawTariff struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	Type            string
	Price           any
	DurationMinutes any
	HourlyRate      any
}

// Payment is a payment record owned by the store.
type Payment struct {
	ID                uuid.UUID
	UserID            string
	TariffID          *uuid.UUID // nil for custom hours
	CustomHours       *int
	Amount            int64
	DurationMinutes   int
	Status            PaymentStatus
	ConfirmationURL   string
	ExternalPaymentID string
	CreatedAt         time.Time
}

// ActivationCode is redeemable on a club machine; one per succeeded payment.
type ActivationCode struct {
	ID              uuid.UUID
	Code            string
	PaymentID       uuid.UUID
	DurationMinutes int
	ExpiresAt       time.Time
	UsedAt          *time.Time
}

// User is a club account. Password holds a "salt:hash" credential or, for old rows,
// the plaintext password. Name and Phone hold "iv:ciphertext" envelopes or legacy plaintext.
type User struct {
	ID            uuid.UUID
	Login         string
	Password      string
	Name          string
	Phone         string
	Notifications bool
	CreatedAt     time.Time
}

// Session is the client-side persisted login: the bearer token plus denormalized profile.
type Session struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
	Phone string `json:"phone"`
}

// CreatePaymentRequest is the payment-creation RPC request.
type CreatePaymentRequest struct {
	UserID          string
	TariffID        *string
	CustomHours     *int
	Amount          int64
	DurationMinutes int
	Timestamp       int64 // unix milliseconds
	Signature       string
}

// CreatePaymentResponse is the payment-creation RPC response.
type CreatePaymentResponse struct {
	PaymentID       uuid.UUID
	ConfirmationURL string
}

// Registration is the sign-up form.
type Registration struct {
	Login    string
	Password string
	Name     string
	Phone    string
}
