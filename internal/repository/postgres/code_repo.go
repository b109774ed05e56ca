package postgres

import (
	"context"
	"errors"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CodeRepo implements ActivationCodeRepository using PostgreSQL.
type CodeRepo struct{ db *DB }

// NewCodeRepo constructs an activation code repository.
func NewCodeRepo(db *DB) *CodeRepo { return &CodeRepo{db: db} }

// InsertActivationCode inserts a code. The insert only matches a succeeded payment,
// so a code can never exist for a payment in any other status.
func (r *CodeRepo) InsertActivationCode(ctx context.Context, c model.ActivationCode) error {
	const q = `
INSERT INTO activation_codes (id, code, payment_id, duration_minutes, expires_at)
SELECT $1, $2, p.id, $4, $5 FROM payments p
WHERE p.id = $3 AND p.status = 'succeeded'`
	tag, err := r.db.Pool.Exec(ctx, q, c.ID, c.Code, c.PaymentID, c.DurationMinutes, c.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidState
	}
	return nil
}

// ActivationCodeByPayment selects the code of a payment.
func (r *CodeRepo) ActivationCodeByPayment(ctx context.Context, paymentID uuid.UUID) (model.ActivationCode, error) {
	const q = `
SELECT id, code, payment_id, duration_minutes, expires_at, used_at
FROM activation_codes WHERE payment_id=$1`
	var c model.ActivationCode
	err := r.db.Pool.QueryRow(ctx, q, paymentID).Scan(&c.ID, &c.Code, &c.PaymentID, &c.DurationMinutes, &c.ExpiresAt, &c.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ActivationCode{}, errs.ErrNotFound
		}
		return model.ActivationCode{}, err
	}
	return c, nil
}

// CompleteWithCode moves the payment from pending to succeeded and inserts its code
// in one transaction. It reports false, writing nothing, when the payment was not
// pending. A code collision rolls the status back and yields errs.ErrAlreadyExists.
func (r *CodeRepo) CompleteWithCode(ctx context.Context, c model.ActivationCode) (ok bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			ok, err = false, e
		}
	}()

	const upd = `UPDATE payments SET status='succeeded', updated_at=now() WHERE id=$1 AND status='pending'`
	const ins = `
INSERT INTO activation_codes (id, code, payment_id, duration_minutes, expires_at)
VALUES ($1, $2, $3, $4, $5)`

	tag, err := tx.Exec(ctx, upd, c.PaymentID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err = tx.Exec(ctx, ins, c.ID, c.Code, c.PaymentID, c.DurationMinutes, c.ExpiresAt); err != nil {
		if isUniqueViolation(err) {
			return false, errs.ErrAlreadyExists
		}
		return false, err
	}
	return true, nil
}
