package payment

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
)

// DefaultPollInterval is the spacing between two status checks.
const DefaultPollInterval = 3 * time.Second

// StatusReader is the read side of the store used while waiting for activation.
type StatusReader interface {
	PaymentStatus(ctx context.Context, id uuid.UUID) (model.PaymentStatus, error)
	ActivationCodeByPayment(ctx context.Context, paymentID uuid.UUID) (model.ActivationCode, error)
}

// Observation is the outcome of one status check. Code is set only when the
// payment succeeded and its code is already visible. Err is a failed read.
type Observation struct {
	Status model.PaymentStatus
	Code   *model.ActivationCode
	Err    error
}

// Poller checks a payment's status at a fixed interval.
type Poller struct {
	store    StatusReader
	interval time.Duration
}

// NewPoller constructs a Poller. interval <= 0 selects DefaultPollInterval.
func NewPoller(store StatusReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{store: store, interval: interval}
}

// Checks returns a lazy sequence of status checks for paymentID, one per interval.
// The sequence ends when ctx is done or the consumer stops ranging over it, and may
// be ranged over again to restart polling.
func (p *Poller) Checks(ctx context.Context, paymentID uuid.UUID) iter.Seq[Observation] {
	return func(yield func(Observation) bool) {
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			obs := p.check(ctx, paymentID)
			if ctx.Err() != nil {
				return
			}
			if !yield(obs) {
				return
			}
		}
	}
}

func (p *Poller) check(ctx context.Context, paymentID uuid.UUID) Observation {
	status, err := p.store.PaymentStatus(ctx, paymentID)
	if err != nil {
		return Observation{Err: err}
	}
	obs := Observation{Status: status}
	if status != model.PaymentSucceeded {
		return obs
	}
	code, err := p.store.ActivationCodeByPayment(ctx, paymentID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// status committed before the code; next tick sees it
	case err != nil:
		obs.Err = err
	default:
		obs.Code = &code
	}
	return obs
}

// PollHandle controls a running poll.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs Checks on its own goroutine and hands every observation to fn until fn
// returns false, ctx is done or the handle is cancelled.
func (p *Poller) Start(ctx context.Context, paymentID uuid.UUID, fn func(Observation) bool) *PollHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		for obs := range p.Checks(ctx, paymentID) {
			if !fn(obs) {
				return
			}
		}
	}()
	return h
}

// Cancel stops the poll. It does not wait; use Done for that.
func (h *PollHandle) Cancel() { h.cancel() }

// Done is closed once the polling goroutine has returned.
func (h *PollHandle) Done() <-chan struct{} { return h.done }
