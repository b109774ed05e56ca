package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/clubpay/internal/crypto"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/limiter"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/repository"
	"github.com/and161185/clubpay/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
)

type fakeUsers struct {
	mu      sync.Mutex
	byLogin map[string]*model.User

	createErr  error
	getErr     error
	replaceErr error
	replaced   int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byLogin == nil {
		f.byLogin = map[string]*model.User{}
	}
	if _, exists := f.byLogin[u.Login]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byLogin[u.Login] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byLogin {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByLogin(_ context.Context, login string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byLogin[login]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) ReplaceCredential(_ context.Context, id uuid.UUID, old, updated string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return false, f.replaceErr
	}
	for _, u := range f.byLogin {
		if u.ID == id && u.Password == old {
			u.Password = updated
			f.replaced++
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) password(login string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byLogin[login].Password
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newAuth(t *testing.T, users *fakeUsers, lim *fakeLimiter) (*AuthServiceImpl, *token.Service, *pkgcrypto.PIICipher) {
	t.Helper()
	pii, err := pkgcrypto.NewPIICipher("test-encryption-key")
	if err != nil {
		t.Fatalf("NewPIICipher: %v", err)
	}
	tokens := token.New([]byte("token-secret"))
	return NewAuthService(users, tokens, pii, lim, 0, zaptest.NewLogger(t)), tokens, pii
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	good := []string{"Abc123", "aB3456789", "PassWord1"}
	bad := []string{"", "Ab1", "abc123", "ABC123", "Абв123Ab", "Abc 123", "Abc-123"}
	for _, pw := range good {
		if err := ValidatePassword(pw); err != nil {
			t.Fatalf("ValidatePassword(%q): %v", pw, err)
		}
	}
	for _, pw := range bad {
		if err := ValidatePassword(pw); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("ValidatePassword(%q) = %v, want ErrValidation", pw, err)
		}
	}
}

func TestAuth_Register_HashesAndSeals(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{}
	s, _, pii := newAuth(t, users, &fakeLimiter{})
	ctx := context.Background()

	id, err := s.Register(ctx, model.Registration{Login: " neo ", Password: "Matrix1", Name: "Thomas", Phone: "+79000000000"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("empty user id")
	}

	u, _ := users.GetByLogin(ctx, "neo")
	if u == nil {
		t.Fatalf("login must be trimmed before storing")
	}
	if u.Password == "Matrix1" || !pkgcrypto.VerifyPassword("Matrix1", u.Password) {
		t.Fatalf("password must be stored hashed")
	}
	if u.Name == "Thomas" || strings.Contains(u.Phone, "7900") {
		t.Fatalf("PII stored in clear: %+v", u)
	}
	if got, err := pii.Open(u.Name); err != nil || got != "Thomas" {
		t.Fatalf("name does not decrypt: %q %v", got, err)
	}

	if _, err := s.Register(ctx, model.Registration{Login: "neo", Password: "Matrix2"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if _, err := s.Register(ctx, model.Registration{Login: "trinity", Password: "weak"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if _, err := s.Register(ctx, model.Registration{Login: "", Password: "Matrix1"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on empty login, got %v", err)
	}

	id2, err := s.Register(ctx, model.Registration{Login: "morpheus", Password: "Matrix1"})
	if err != nil || id2 == id {
		t.Fatalf("Register without PII: %v", err)
	}
	if u, _ := users.GetByLogin(ctx, "morpheus"); u.Name != "" || u.Phone != "" {
		t.Fatalf("empty PII must stay empty: %+v", u)
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(ctx, model.Registration{Login: "smith", Password: "Matrix1"}); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Login_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: true}
	s, tokens, _ := newAuth(t, users, lim)
	ctx := context.Background()
	if _, err := s.Register(ctx, model.Registration{Login: "alice", Password: "Correct1", Name: "Alice"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, err := s.Login(ctx, "alice", "Correct1", "1.2.3.4:5"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, err := s.Login(ctx, "alice", "Correct1", "1.2.3.4:5"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, err := s.Login(ctx, "nobody", "Correct1", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on unknown user, got %v", err)
	}

	users.getErr = errors.New("db down")
	if _, err := s.Login(ctx, "alice", "Correct1", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("infrastructure error must not look like bad credentials: %v", err)
	}
	users.getErr = nil

	lim.failBlocked = true
	if _, err := s.Login(ctx, "alice", "Wrong1", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited after blocking failure, got %v", err)
	}
	lim.failBlocked = false
	if _, err := s.Login(ctx, "alice", "Wrong1", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	sess, err := s.Login(ctx, "alice", "Correct1", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Login != "alice" || sess.Name != "Alice" || sess.ID == "" {
		t.Fatalf("bad session: %+v", sess)
	}
	c := tokens.Verify(sess.Token)
	if c == nil || c.Expired || c.UserID != sess.ID || c.Login != "alice" {
		t.Fatalf("bad token claims: %+v", c)
	}
	if lim.successCalls != 1 {
		t.Fatalf("Success calls=%d", lim.successCalls)
	}
}

func TestAuth_Login_UpgradesLegacyCredentialOnce(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	users := &fakeUsers{byLogin: map[string]*model.User{
		"old": {ID: id, Login: "old", Password: "secret123", Name: "Plain Name"},
	}}
	s, _, _ := newAuth(t, users, &fakeLimiter{allowOK: true})
	ctx := context.Background()

	sess, err := s.Login(ctx, "old", "secret123", "")
	if err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	if sess.Name != "Plain Name" {
		t.Fatalf("legacy plaintext PII must pass through, got %q", sess.Name)
	}
	s.Drain()

	stored := users.password("old")
	if pkgcrypto.IsLegacyCredential(stored) || !pkgcrypto.VerifyPassword("secret123", stored) {
		t.Fatalf("credential not upgraded: %q", stored)
	}

	if _, err := s.Login(ctx, "old", "secret123", ""); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
	s.Drain()
	if users.replaced != 1 {
		t.Fatalf("upgrade ran %d times", users.replaced)
	}
	if _, err := s.Login(ctx, "old", "secret1234", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestAuth_Login_UpgradeFailureDoesNotFailLogin(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{
		byLogin:    map[string]*model.User{"old": {ID: uuid.Must(uuid.NewV4()), Login: "old", Password: "secret123"}},
		replaceErr: errors.New("read-only replica"),
	}
	s, _, _ := newAuth(t, users, &fakeLimiter{allowOK: true})

	if _, err := s.Login(context.Background(), "old", "secret123", ""); err != nil {
		t.Fatalf("login must succeed even if the upgrade fails: %v", err)
	}
	s.Drain()
	if users.password("old") != "secret123" {
		t.Fatalf("credential unexpectedly changed")
	}
}
