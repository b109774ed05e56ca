package payment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
)

type memStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]model.Payment
	codes    map[uuid.UUID]model.ActivationCode
	tariffs  []model.RawTariff

	insertErr error
	readErr   error
	hideCodes atomic.Bool
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		payments: map[uuid.UUID]model.Payment{},
		codes:    map[uuid.UUID]model.ActivationCode{},
	}
}

func (m *memStore) InsertPayment(_ context.Context, p model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.payments[p.ID] = p
	return nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, errs.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	m.payments[id] = p
	return true, nil
}

func (m *memStore) InsertActivationCode(_ context.Context, c model.ActivationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.codes[c.PaymentID]; dup {
		return errs.ErrAlreadyExists
	}
	m.codes[c.PaymentID] = c
	return nil
}

func (m *memStore) PaymentStatus(_ context.Context, id uuid.UUID) (model.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	p, ok := m.payments[id]
	if !ok {
		return "", errs.ErrNotFound
	}
	return p.Status, nil
}

func (m *memStore) ActivationCodeByPayment(_ context.Context, id uuid.UUID) (model.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok || m.hideCodes.Load() {
		return model.ActivationCode{}, errs.ErrNotFound
	}
	return c, nil
}

func (m *memStore) ActiveTariffs(context.Context) ([]model.RawTariff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tariffs, nil
}

func (m *memStore) payment(id uuid.UUID) (model.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	return p, ok
}

func (m *memStore) setStatus(id uuid.UUID, s model.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[id]
	p.Status = s
	m.payments[id] = p
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}
