package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements PaymentRepository using PostgreSQL.
type PaymentRepo struct{ db *DB }

// NewPaymentRepo constructs a payment repository.
func NewPaymentRepo(db *DB) *PaymentRepo { return &PaymentRepo{db: db} }

// InsertPayment inserts a payment row.
func (r *PaymentRepo) InsertPayment(ctx context.Context, p model.Payment) error {
	const q = `
INSERT INTO payments (id, user_id, tariff_id, custom_hours, amount, duration_minutes, status, confirmation_url, external_payment_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Pool.Exec(ctx, q,
		p.ID, p.UserID, p.TariffID, p.CustomHours, p.Amount, p.DurationMinutes,
		string(p.Status), p.ConfirmationURL, p.ExternalPaymentID)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdatePaymentStatus performs a conditional status transition.
func (r *PaymentRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	if from.IsTerminal() {
		return false, fmt.Errorf("transition from terminal status %q: %w", from, errs.ErrInvalidState)
	}
	const q = `
UPDATE payments
SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PaymentStatus reads the status of a payment.
func (r *PaymentRepo) PaymentStatus(ctx context.Context, id uuid.UUID) (model.PaymentStatus, error) {
	const q = `SELECT status FROM payments WHERE id=$1`
	var s string
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return model.PaymentStatus(s), nil
}

// GetPayment loads a payment by ID.
func (r *PaymentRepo) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	const q = `
SELECT id, user_id, tariff_id, custom_hours, amount, duration_minutes, status, confirmation_url, external_payment_id, created_at
FROM payments WHERE id=$1`
	var (
		p      model.Payment
		status string
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.UserID, &p.TariffID, &p.CustomHours, &p.Amount, &p.DurationMinutes,
		&status, &p.ConfirmationURL, &p.ExternalPaymentID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
