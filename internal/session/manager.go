package session

import (
	"context"
	"errors"
	"sync"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/token"
)

// Verifier checks a session token. A nil result means the token is unusable.
type Verifier interface {
	Verify(tok string) *token.Claims
}

// Manager owns the process-wide session: hydrated once at startup, replaced on
// login, dropped on logout or when the token stops verifying.
type Manager struct {
	store    Store
	verifier Verifier

	mu      sync.RWMutex
	current *model.Session
}

// NewManager constructs a Manager. Call Hydrate before use.
func NewManager(store Store, verifier Verifier) *Manager {
	return &Manager{store: store, verifier: verifier}
}

// Hydrate loads the persisted session. A missing, forged or expired session is
// cleared and Hydrate reports no session without an error.
func (m *Manager) Hydrate(ctx context.Context) (*model.Session, error) {
	sess, err := m.store.Load(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		m.set(nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c := m.verifier.Verify(sess.Token); c == nil || c.Expired || c.UserID != sess.ID {
		m.set(nil)
		return nil, m.store.Clear(ctx)
	}
	m.set(&sess)
	return &sess, nil
}

// Login persists sess and makes it current.
func (m *Manager) Login(ctx context.Context, sess model.Session) error {
	if err := m.store.Save(ctx, sess); err != nil {
		return err
	}
	m.set(&sess)
	return nil
}

// Logout forgets the session everywhere.
func (m *Manager) Logout(ctx context.Context) error {
	m.set(nil)
	return m.store.Clear(ctx)
}

// Current returns the active session, or nil.
func (m *Manager) Current() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Token returns the active bearer token, or "". It fits gateway.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

func (m *Manager) set(s *model.Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}
