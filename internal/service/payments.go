package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Defaults for server-side payment creation.
const (
	DefaultMaxSkew      = 5 * time.Minute
	DefaultCompleteWait = 5 * time.Second
)

// PaymentService creates payments on behalf of authenticated users.
type PaymentService interface {
	// Create checks the signed request and stores a pending payment.
	Create(ctx context.Context, req model.CreatePaymentRequest) (model.CreatePaymentResponse, error)
}

// PaymentStore is the storage PaymentServiceImpl needs.
type PaymentStore interface {
	repository.PaymentRepository
	repository.ActivationCodeRepository
	repository.TariffRepository
}

// PaymentOptions tunes PaymentServiceImpl. Zero values select defaults.
type PaymentOptions struct {
	MaxSkew      time.Duration
	CompleteWait time.Duration
	Now          func() time.Time
}

type PaymentServiceImpl struct {
	store     PaymentStore
	signer    *payment.Signer
	completer *payment.Completer
	skew      time.Duration
	wait      time.Duration
	now       func() time.Time
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPaymentService constructs a PaymentService. Close stops pending auto-completions.
func NewPaymentService(store PaymentStore, signer *payment.Signer, opts PaymentOptions, log *zap.Logger) *PaymentServiceImpl {
	if opts.MaxSkew <= 0 {
		opts.MaxSkew = DefaultMaxSkew
	}
	if opts.CompleteWait <= 0 {
		opts.CompleteWait = DefaultCompleteWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentServiceImpl{
		store:     store,
		signer:    signer,
		completer: payment.NewCompleter(store, opts.Now),
		skew:      opts.MaxSkew,
		wait:      opts.CompleteWait,
		now:       opts.Now,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Create validates, authenticates and stores a payment, then schedules its demo
// completion.
func (s *PaymentServiceImpl) Create(ctx context.Context, req model.CreatePaymentRequest) (model.CreatePaymentResponse, error) {
	if s.ctx.Err() != nil {
		return model.CreatePaymentResponse{}, errs.ErrInvalidState
	}
	if req.UserID == "" {
		return model.CreatePaymentResponse{}, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	v := s.signer.Validate(payment.ValidateInput{Amount: req.Amount, TariffID: req.TariffID, CustomHours: req.CustomHours})
	if !v.Valid {
		return model.CreatePaymentResponse{}, &payment.ValidationError{Reason: v.Error}
	}
	if (req.TariffID == nil) == (req.CustomHours == nil) {
		return model.CreatePaymentResponse{}, fmt.Errorf("%w: exactly one of tariff or custom hours", errs.ErrValidation)
	}

	sent := time.UnixMilli(req.Timestamp)
	if d := s.now().Sub(sent); d > s.skew || d < -s.skew {
		return model.CreatePaymentResponse{}, fmt.Errorf("%w: request timestamp outside allowed window", errs.ErrUnauthorized)
	}
	payload := payment.SignPayload{UserID: req.UserID, Amount: req.Amount, TariffID: req.TariffID, Timestamp: req.Timestamp}
	if !s.signer.Verify(payload, req.Signature) {
		return model.CreatePaymentResponse{}, fmt.Errorf("%w: bad signature", errs.ErrUnauthorized)
	}

	p := model.Payment{
		UserID:          req.UserID,
		CustomHours:     req.CustomHours,
		Amount:          req.Amount,
		DurationMinutes: req.DurationMinutes,
		Status:          model.PaymentPending,
	}
	if err := s.checkPrice(ctx, req, &p); err != nil {
		return model.CreatePaymentResponse{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.CreatePaymentResponse{}, err
	}
	now := s.now()
	p.ID = id
	p.ConfirmationURL = payment.DemoConfirmationURL(req.Amount)
	p.ExternalPaymentID = fmt.Sprintf("demo_%d", now.UnixMilli())
	p.CreatedAt = now
	if err := s.store.InsertPayment(ctx, p); err != nil {
		return model.CreatePaymentResponse{}, fmt.Errorf("insert payment: %w", err)
	}

	s.scheduleCompletion(p.ID, p.DurationMinutes)
	return model.CreatePaymentResponse{PaymentID: p.ID, ConfirmationURL: p.ConfirmationURL}, nil
}

// checkPrice recomputes amount and duration from the catalogue so a client cannot
// buy a tariff at a price of its choosing.
func (s *PaymentServiceImpl) checkPrice(ctx context.Context, req model.CreatePaymentRequest, p *model.Payment) error {
	raw, err := s.store.ActiveTariffs(ctx)
	if err != nil {
		return fmt.Errorf("load tariffs: %w", err)
	}
	tariffs := payment.ParseTariffs(raw)

	if req.CustomHours != nil {
		h := *req.CustomHours
		rate := payment.HourlyRate(tariffs)
		if req.Amount != int64(h)*rate || req.DurationMinutes != h*60 {
			return fmt.Errorf("%w: custom hours priced incorrectly", errs.ErrValidation)
		}
		return nil
	}

	tid, err := uuid.FromString(*req.TariffID)
	if err != nil {
		return fmt.Errorf("%w: bad tariff id", errs.ErrValidation)
	}
	i := slices.IndexFunc(tariffs, func(t model.Tariff) bool { return t.ID == tid })
	if i < 0 {
		return fmt.Errorf("tariff %s: %w", tid, errs.ErrNotFound)
	}
	if t := tariffs[i]; req.Amount != t.Price || req.DurationMinutes != t.DurationMinutes {
		return fmt.Errorf("%w: tariff priced incorrectly", errs.ErrValidation)
	}
	p.TariffID = &tid
	return nil
}

func (s *PaymentServiceImpl) scheduleCompletion(id uuid.UUID, durationMinutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(s.wait)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		ac, err := s.completer.Complete(s.ctx, id, durationMinutes)
		switch {
		case errors.Is(err, errs.ErrInvalidState):
			s.log.Info("payment settled before completion", zap.Stringer("payment_id", id))
		case err != nil:
			s.log.Error("complete payment", zap.Stringer("payment_id", id), zap.Error(err))
		default:
			s.log.Info("payment completed", zap.Stringer("payment_id", id), zap.Time("code_expires_at", ac.ExpiresAt))
		}
	}()
}

// Close cancels scheduled completions and waits for running ones.
func (s *PaymentServiceImpl) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
