package repository

import (
	"context"

	"github.com/and161185/clubpay/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PaymentRepository stores payment records.
type PaymentRepository interface {
	// InsertPayment creates a payment record.
	InsertPayment(ctx context.Context, p model.Payment) error
	// UpdatePaymentStatus moves a payment from one status to another and reports
	// whether the row was still in from.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error)
	// PaymentStatus returns the current status of a payment.
	PaymentStatus(ctx context.Context, id uuid.UUID) (model.PaymentStatus, error)
	// GetPayment loads a full payment record.
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
}

// ActivationCodeRepository stores activation codes, at most one per payment.
type ActivationCodeRepository interface {
	// InsertActivationCode stores a code for a succeeded payment.
	InsertActivationCode(ctx context.Context, c model.ActivationCode) error
	// ActivationCodeByPayment returns the code issued for a payment.
	ActivationCodeByPayment(ctx context.Context, paymentID uuid.UUID) (model.ActivationCode, error)
}

// TariffRepository lists purchasable tariffs.
type TariffRepository interface {
	// ActiveTariffs returns active tariffs ordered by type and duration, numeric
	// columns undecoded.
	ActiveTariffs(ctx context.Context) ([]model.RawTariff, error)
}
