package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
)

// State is a purchase flow state.
type State string

const (
	StateSelecting  State = "selecting"
	StateProcessing State = "processing"
	StatePending    State = "pending"
	StateSuccess    State = "success"
)

// DefaultFallbackDelay is how long a locally synthesized payment stays pending.
const DefaultFallbackDelay = 5 * time.Second

// demoCheckoutURL is the confirmation page used when no real gateway is attached.
const demoCheckoutURL = "https://yookassa.ru/demo/payment"

// DemoConfirmationURL returns the demo checkout link for amount (kopecks).
func DemoConfirmationURL(amount int64) string {
	return fmt.Sprintf("%s?amount=%d", demoCheckoutURL, amount)
}

// Store is the data-store collaborator of the purchase flow.
type Store interface {
	CompletionStore
	StatusReader
	InsertPayment(ctx context.Context, p model.Payment) error
	ActiveTariffs(ctx context.Context) ([]model.RawTariff, error)
}

// Gateway creates payments remotely. Failures that should trigger the local fallback
// wrap errs.ErrUnavailable; application rejections wrap errs.ErrRejected.
type Gateway interface {
	CreatePayment(ctx context.Context, req model.CreatePaymentRequest) (model.CreatePaymentResponse, error)
}

// Feedback is a kind of user-facing signal (haptic or toast on a phone, color in a terminal).
type Feedback int

const (
	FeedbackSelection Feedback = iota
	FeedbackLight
	FeedbackMedium
	FeedbackSuccess
	FeedbackError
)

// Notifier receives feedback on user actions and flow transitions.
type Notifier interface {
	Notify(kind Feedback, message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Feedback, string) {}

// Options tunes an Orchestrator. Zero values select defaults.
type Options struct {
	PollInterval   time.Duration
	FallbackDelay  time.Duration
	PlaceholderURL func(amount int64) string
	Now            func() time.Time
	Logger         *zap.Logger
	Notifier       Notifier
}

// Selection is what the user is about to buy.
type Selection struct {
	Tariff          *model.Tariff
	CustomHours     *int
	Amount          int64
	DurationMinutes int
}

// Snapshot is a consistent copy of the orchestrator state.
type Snapshot struct {
	State           State
	Tariffs         []model.Tariff
	HourlyRate      int64
	Selection       Selection
	PaymentID       uuid.UUID
	ConfirmationURL string
	Amount          int64
	Fallback        bool
	Code            *model.ActivationCode
	Err             error
}

// Orchestrator drives one user's purchase: selecting -> processing -> pending -> success.
// All methods are safe for concurrent use; blocking I/O runs on goroutines owned by the
// instance and stops on Close.
type Orchestrator struct {
	userID    string
	store     Store
	gateway   Gateway
	signer    *Signer
	poller    *Poller
	completer *Completer

	delay       time.Duration
	placeholder func(int64) string
	now         func() time.Time
	log         *zap.Logger
	notifier    Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	changed    chan struct{}
	state      State
	tariffs    []model.Tariff
	hourlyRate int64
	sel        Selection
	paymentID  uuid.UUID
	confirmURL string
	amount     int64
	fallback   bool
	code       *model.ActivationCode
	err        error

	poll          *PollHandle
	pollGen       uint64
	cancelPending context.CancelFunc
}

// NewOrchestrator constructs an Orchestrator for userID in the selecting state.
func NewOrchestrator(userID string, store Store, gw Gateway, signer *Signer, opts Options) *Orchestrator {
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	if opts.PlaceholderURL == nil {
		opts.PlaceholderURL = DemoConfirmationURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		userID:      userID,
		store:       store,
		gateway:     gw,
		signer:      signer,
		poller:      NewPoller(store, opts.PollInterval),
		completer:   NewCompleter(store, opts.Now),
		delay:       opts.FallbackDelay,
		placeholder: opts.PlaceholderURL,
		now:         opts.Now,
		log:         opts.Logger.With(zap.String("user_id", userID)),
		notifier:    opts.Notifier,
		ctx:         ctx,
		cancel:      cancel,
		changed:     make(chan struct{}),
		state:       StateSelecting,
		hourlyRate:  DefaultHourlyRate,
	}
}

// LoadTariffs reads the active tariffs and keeps only well-formed ones.
func (o *Orchestrator) LoadTariffs(ctx context.Context) ([]model.Tariff, error) {
	raw, err := o.store.ActiveTariffs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tariffs: %w", err)
	}
	tariffs := ParseTariffs(raw)
	if dropped := len(raw) - len(tariffs); dropped > 0 {
		o.log.Warn("dropped malformed tariffs", zap.Int("count", dropped))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.tariffs = tariffs
	o.hourlyRate = HourlyRate(tariffs)
	o.touch()
	return slices.Clone(tariffs), nil
}

// SelectTariff picks a loaded tariff for purchase.
func (o *Orchestrator) SelectTariff(id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StateSelecting {
		return errs.ErrInvalidState
	}
	i := slices.IndexFunc(o.tariffs, func(t model.Tariff) bool { return t.ID == id })
	if i < 0 {
		return errs.ErrNotFound
	}
	t := o.tariffs[i]
	o.sel = Selection{Tariff: &t, Amount: t.Price, DurationMinutes: t.DurationMinutes}
	o.err = nil
	o.notifier.Notify(FeedbackSelection, t.Name)
	o.touch()
	return nil
}

// SelectCustomHours prices an arbitrary number of hours at the hourly rate. The range
// is enforced on Confirm.
func (o *Orchestrator) SelectCustomHours(hours int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StateSelecting {
		return errs.ErrInvalidState
	}
	h := hours
	o.sel = Selection{
		CustomHours:     &h,
		Amount:          int64(hours) * o.hourlyRate,
		DurationMinutes: hours * 60,
	}
	o.err = nil
	o.notifier.Notify(FeedbackSelection, fmt.Sprintf("%d h", hours))
	o.touch()
	return nil
}

// Confirm starts payment creation for the current selection. It returns
// errs.ErrInvalidState without side effects unless the flow is selecting, and a
// *ValidationError when the selection is out of bounds.
func (o *Orchestrator) Confirm() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StateSelecting {
		return errs.ErrInvalidState
	}
	sel := o.sel
	if sel.Tariff == nil && sel.CustomHours == nil {
		return o.rejectLocked(&ValidationError{Reason: "nothing selected"})
	}
	var tariffID *string
	if sel.Tariff != nil {
		id := sel.Tariff.ID.String()
		tariffID = &id
	}
	v := Validate(ValidateInput{Amount: sel.Amount, TariffID: tariffID, CustomHours: sel.CustomHours})
	if !v.Valid {
		return o.rejectLocked(&ValidationError{Reason: v.Error})
	}

	ts := o.now().UnixMilli()
	req := model.CreatePaymentRequest{
		UserID:          o.userID,
		TariffID:        tariffID,
		CustomHours:     sel.CustomHours,
		Amount:          sel.Amount,
		DurationMinutes: sel.DurationMinutes,
		Timestamp:       ts,
		Signature: o.signer.Sign(SignPayload{
			UserID:    o.userID,
			Amount:    sel.Amount,
			TariffID:  tariffID,
			Timestamp: ts,
		}),
	}
	o.err = nil
	o.setState(StateProcessing)
	o.notifier.Notify(FeedbackMedium, "")

	o.wg.Add(1)
	go o.create(req)
	return nil
}

func (o *Orchestrator) rejectLocked(err error) error {
	o.err = err
	o.notifier.Notify(FeedbackError, err.Error())
	o.touch()
	return err
}

func (o *Orchestrator) create(req model.CreatePaymentRequest) {
	defer o.wg.Done()

	resp, err := o.gateway.CreatePayment(o.ctx, req)
	fallback := false
	if errors.Is(err, errs.ErrUnavailable) && o.ctx.Err() == nil {
		o.log.Warn("payment endpoint unavailable, creating local payment", zap.Error(err))
		resp, err = o.createLocal(req)
		fallback = err == nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StateProcessing {
		return
	}
	if err != nil {
		o.log.Error("create payment", zap.Error(err))
		o.err = err
		o.setState(StateSelecting)
		o.notifier.Notify(FeedbackError, "payment could not be created")
		return
	}

	o.paymentID = resp.PaymentID
	o.confirmURL = resp.ConfirmationURL
	o.amount = req.Amount
	o.fallback = fallback
	o.setState(StatePending)
	o.notifier.Notify(FeedbackSuccess, "payment created")
	o.log.Info("payment pending", zap.Stringer("payment_id", resp.PaymentID), zap.Bool("fallback", fallback))

	if fallback {
		dctx, cancel := context.WithCancel(o.ctx)
		o.cancelPending = cancel
		o.wg.Add(1)
		go o.completeLater(dctx, resp.PaymentID, req.DurationMinutes)
	}
	o.startPollLocked(resp.PaymentID)
}

// createLocal writes a pending payment straight to the store.
func (o *Orchestrator) createLocal(req model.CreatePaymentRequest) (model.CreatePaymentResponse, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.CreatePaymentResponse{}, err
	}
	now := o.now()
	p := model.Payment{
		ID:                id,
		UserID:            req.UserID,
		CustomHours:       req.CustomHours,
		Amount:            req.Amount,
		DurationMinutes:   req.DurationMinutes,
		Status:            model.PaymentPending,
		ConfirmationURL:   o.placeholder(req.Amount),
		ExternalPaymentID: fmt.Sprintf("local_%d", now.UnixMilli()),
		CreatedAt:         now,
	}
	if req.TariffID != nil {
		tid, err := uuid.FromString(*req.TariffID)
		if err != nil {
			return model.CreatePaymentResponse{}, fmt.Errorf("tariff id: %w", err)
		}
		p.TariffID = &tid
	}
	if err := o.store.InsertPayment(o.ctx, p); err != nil {
		return model.CreatePaymentResponse{}, fmt.Errorf("insert local payment: %w", err)
	}
	return model.CreatePaymentResponse{PaymentID: id, ConfirmationURL: p.ConfirmationURL}, nil
}

func (o *Orchestrator) completeLater(ctx context.Context, id uuid.UUID, durationMinutes int) {
	defer o.wg.Done()
	t := time.NewTimer(o.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	_, err := o.completer.Complete(ctx, id, durationMinutes)
	switch {
	case errors.Is(err, errs.ErrInvalidState):
		o.log.Info("local payment already settled", zap.Stringer("payment_id", id))
	case err != nil:
		o.log.Error("complete local payment", zap.Stringer("payment_id", id), zap.Error(err))
	}
}

func (o *Orchestrator) startPollLocked(id uuid.UUID) {
	o.pollGen++
	gen := o.pollGen
	h := o.poller.Start(o.ctx, id, func(obs Observation) bool {
		return o.observe(gen, obs)
	})
	o.poll = h
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		<-h.Done()
	}()
}

// stopPollLocked cancels polling without waiting; the poll goroutine needs o.mu to exit.
func (o *Orchestrator) stopPollLocked() {
	if o.poll != nil {
		o.poll.Cancel()
		o.poll = nil
	}
	o.pollGen++
}

func (o *Orchestrator) observe(gen uint64, obs Observation) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.pollGen || o.closed || o.state != StatePending {
		return false
	}
	if obs.Err != nil {
		o.log.Debug("poll payment status", zap.Error(obs.Err))
		return true
	}
	switch obs.Status {
	case model.PaymentSucceeded:
		if obs.Code == nil {
			return true
		}
		o.code = obs.Code
		o.poll = nil
		if o.cancelPending != nil {
			o.cancelPending()
			o.cancelPending = nil
		}
		o.setState(StateSuccess)
		o.notifier.Notify(FeedbackSuccess, "payment succeeded")
		return false
	case model.PaymentFailed, model.PaymentCancelled:
		o.poll = nil
		o.clearPaymentLocked()
		o.err = fmt.Errorf("payment %s", obs.Status)
		o.setState(StateSelecting)
		o.notifier.Notify(FeedbackError, "payment "+string(obs.Status))
		return false
	}
	return true
}

// Cancel abandons a pending payment. A locally synthesized payment is also marked
// cancelled unless its completion already ran.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StatePending {
		return errs.ErrInvalidState
	}
	o.stopPollLocked()
	if o.fallback {
		if o.cancelPending != nil {
			o.cancelPending()
		}
		id := o.paymentID
		o.wg.Add(1)
		go o.markCancelled(id)
	}
	o.clearPaymentLocked()
	o.setState(StateSelecting)
	o.notifier.Notify(FeedbackLight, "payment cancelled")
	return nil
}

func (o *Orchestrator) markCancelled(id uuid.UUID) {
	defer o.wg.Done()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), 5*time.Second)
	defer cancel()
	ok, err := o.store.UpdatePaymentStatus(ctx, id, model.PaymentPending, model.PaymentCancelled)
	switch {
	case err != nil:
		o.log.Error("cancel local payment", zap.Stringer("payment_id", id), zap.Error(err))
	case !ok:
		o.log.Info("local payment settled before cancel", zap.Stringer("payment_id", id))
	}
}

// NewPurchase resets a finished purchase back to selecting.
func (o *Orchestrator) NewPurchase() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state != StateSuccess {
		return errs.ErrInvalidState
	}
	o.sel = Selection{}
	o.clearPaymentLocked()
	o.err = nil
	o.setState(StateSelecting)
	o.notifier.Notify(FeedbackLight, "")
	return nil
}

func (o *Orchestrator) clearPaymentLocked() {
	o.paymentID = uuid.Nil
	o.confirmURL = ""
	o.amount = 0
	o.fallback = false
	o.code = nil
	o.cancelPending = nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:           o.state,
		Tariffs:         slices.Clone(o.tariffs),
		HourlyRate:      o.hourlyRate,
		Selection:       o.sel,
		PaymentID:       o.paymentID,
		ConfirmationURL: o.confirmURL,
		Amount:          o.amount,
		Fallback:        o.fallback,
		Err:             o.err,
	}
	if o.code != nil {
		c := *o.code
		s.Code = &c
	}
	return s
}

// Wait blocks until the state is one of states or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, states ...State) (Snapshot, error) {
	for {
		o.mu.Lock()
		if slices.Contains(states, o.state) {
			s := o.snapshotLocked()
			o.mu.Unlock()
			return s, nil
		}
		ch := o.changed
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return o.Snapshot(), ctx.Err()
		case <-ch:
		}
	}
}

// Close stops polling and pending timers and waits for background work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopPollLocked()
	o.cancel()
	o.touch()
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) setState(s State) {
	if o.state == StatePending && s != StatePending {
		o.stopPollLocked()
	}
	o.state = s
	o.touch()
}

// touch wakes Wait callers.
func (o *Orchestrator) touch() {
	close(o.changed)
	o.changed = make(chan struct{})
}
