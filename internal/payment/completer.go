package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clubpay/internal/crypto"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
)

// CodeTTL is how long an issued activation code stays redeemable.
const CodeTTL = 24 * time.Hour

// codeAlphabet omits characters that are easy to misread on a club screen (0/O, 1/I).
// Its length divides 256, so byte%len is unbiased.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLen      = 8
)

// CompletionStore is the part of the store a Completer writes to.
type CompletionStore interface {
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error)
	InsertActivationCode(ctx context.Context, c model.ActivationCode) error
}

// AtomicCompletionStore is implemented by stores that can flip a pending payment to
// succeeded and insert its code in one transaction. CompleteWithCode reports false
// when the payment was not pending.
type AtomicCompletionStore interface {
	CompleteWithCode(ctx context.Context, c model.ActivationCode) (bool, error)
}

const (
	// codeAttempts bounds regeneration after a collision on the unique code column.
	codeAttempts = 5
	// codeInsertTimeout bounds the detached insert that follows a committed flip.
	codeInsertTimeout = 10 * time.Second
)

// Completer moves a pending payment to succeeded and issues its activation code.
type Completer struct {
	store CompletionStore
	now   func() time.Time
}

// NewCompleter constructs a Completer. now may be nil.
func NewCompleter(store CompletionStore, now func() time.Time) *Completer {
	if now == nil {
		now = time.Now
	}
	return &Completer{store: store, now: now}
}

// Complete transitions paymentID from pending to succeeded and inserts a fresh
// activation code for durationMinutes. errs.ErrInvalidState means the payment had
// already left pending and nothing was written. A succeeded payment always ends up
// with a code: atomic stores do both writes in one transaction, other stores finish
// the insert even if ctx is cancelled after the flip.
func (c *Completer) Complete(ctx context.Context, paymentID uuid.UUID, durationMinutes int) (model.ActivationCode, error) {
	if tx, ok := c.store.(AtomicCompletionStore); ok {
		return c.completeAtomic(ctx, tx, paymentID, durationMinutes)
	}

	ok, err := c.store.UpdatePaymentStatus(ctx, paymentID, model.PaymentPending, model.PaymentSucceeded)
	if err != nil {
		return model.ActivationCode{}, fmt.Errorf("complete payment %s: %w", paymentID, err)
	}
	if !ok {
		return model.ActivationCode{}, errs.ErrInvalidState
	}

	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), codeInsertTimeout)
	defer cancel()
	for attempt := 1; ; attempt++ {
		ac, err := c.newCode(paymentID, durationMinutes)
		if err != nil {
			return model.ActivationCode{}, err
		}
		err = c.store.InsertActivationCode(ictx, ac)
		if err == nil {
			return ac, nil
		}
		if !errors.Is(err, errs.ErrAlreadyExists) || attempt == codeAttempts {
			return model.ActivationCode{}, fmt.Errorf("insert activation code: %w", err)
		}
	}
}

func (c *Completer) completeAtomic(ctx context.Context, tx AtomicCompletionStore, paymentID uuid.UUID, durationMinutes int) (model.ActivationCode, error) {
	for attempt := 1; ; attempt++ {
		ac, err := c.newCode(paymentID, durationMinutes)
		if err != nil {
			return model.ActivationCode{}, err
		}
		ok, err := tx.CompleteWithCode(ctx, ac)
		switch {
		case err == nil && ok:
			return ac, nil
		case err == nil:
			return model.ActivationCode{}, errs.ErrInvalidState
		case errors.Is(err, errs.ErrAlreadyExists) && attempt < codeAttempts:
			continue
		default:
			return model.ActivationCode{}, fmt.Errorf("complete payment %s: %w", paymentID, err)
		}
	}
}

func (c *Completer) newCode(paymentID uuid.UUID, durationMinutes int) (model.ActivationCode, error) {
	code, err := NewActivationCode()
	if err != nil {
		return model.ActivationCode{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.ActivationCode{}, err
	}
	return model.ActivationCode{
		ID:              id,
		Code:            code,
		PaymentID:       paymentID,
		DurationMinutes: durationMinutes,
		ExpiresAt:       c.now().Add(CodeTTL),
	}, nil
}

// NewActivationCode returns a random code drawn from an unambiguous alphabet.
func NewActivationCode() (string, error) {
	b, err := crypto.RandBytes(codeLen)
	if err != nil {
		return "", err
	}
	out := make([]byte, codeLen)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(out), nil
}
