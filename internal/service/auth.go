// Package service contains application services for accounts and payments.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	pkgcrypto "github.com/and161185/clubpay/internal/crypto"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/limiter"
	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

// unknownUserCredential fails to parse, so verifying against it costs one full derivation.
const unknownUserCredential = "-:-"

// AuthService defines account operations.
type AuthService interface {
	// Register creates an account with a hashed password and encrypted personal data.
	Register(ctx context.Context, r model.Registration) (uuid.UUID, error)
	// Login applies rate limiting, checks the password and issues a session.
	Login(ctx context.Context, login, password, addr string) (model.Session, error)
}

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	Issue(userID, login string, ttl time.Duration) (string, error)
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	tokens TokenIssuer
	pii    *pkgcrypto.PIICipher
	lim    limiter.Limiter
	ttl    time.Duration
	log    *zap.Logger

	upgrades sync.WaitGroup
}

// NewAuthService constructs AuthService with required dependencies. ttl <= 0 uses the token default.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, pii *pkgcrypto.PIICipher, lim limiter.Limiter, ttl time.Duration, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, tokens: tokens, pii: pii, lim: lim, ttl: ttl, log: log}
}

// ValidatePassword enforces the password policy: at least MinPasswordLen latin letters
// and digits with at least one lowercase and one uppercase letter.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, MinPasswordLen)
	}
	var lower, upper bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
		default:
			return fmt.Errorf("%w: password may contain only latin letters and digits", errs.ErrValidation)
		}
	}
	if !lower || !upper {
		return fmt.Errorf("%w: password needs a lowercase and an uppercase letter", errs.ErrValidation)
	}
	return nil
}

func validateLogin(login string) error {
	if login == "" || len(login) > 64 {
		return fmt.Errorf("%w: login must be 1 to 64 characters", errs.ErrValidation)
	}
	if strings.IndexFunc(login, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: login must not contain spaces", errs.ErrValidation)
	}
	return nil
}

// Register creates a new account.
func (s *AuthServiceImpl) Register(ctx context.Context, r model.Registration) (uuid.UUID, error) {
	r.Login = strings.TrimSpace(r.Login)
	if err := validateLogin(r.Login); err != nil {
		return uuid.Nil, err
	}
	if err := ValidatePassword(r.Password); err != nil {
		return uuid.Nil, err
	}

	_, err := s.users.GetByLogin(ctx, r.Login)
	switch {
	case err == nil:
		return uuid.Nil, errs.ErrAlreadyExists
	case !errors.Is(err, errs.ErrNotFound):
		return uuid.Nil, err
	}

	cred, err := pkgcrypto.HashPassword(r.Password)
	if err != nil {
		return uuid.Nil, err
	}
	name, err := s.sealOptional(r.Name)
	if err != nil {
		return uuid.Nil, err
	}
	phone, err := s.sealOptional(r.Phone)
	if err != nil {
		return uuid.Nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	u := &model.User{
		ID:            uid,
		Login:         r.Login,
		Password:      cred,
		Name:          name,
		Phone:         phone,
		Notifications: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return uuid.Nil, err
	}
	return uid, nil
}

func (s *AuthServiceImpl) sealOptional(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	return s.pii.Seal(v)
}

// Login authenticates with rate limiting by (login, client address).
func (s *AuthServiceImpl) Login(ctx context.Context, login, password, addr string) (model.Session, error) {
	login = strings.TrimSpace(login)
	addrHash := limiter.HashAddr(addr)

	allowed, _, err := s.lim.Allow(ctx, login, addrHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Session{}, err
	}
	stored := unknownUserCredential
	if u != nil {
		stored = u.Password
	}
	if !pkgcrypto.VerifyPassword(password, stored) || u == nil {
		if blocked, _, ferr := s.lim.Failure(ctx, login, addrHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		return model.Session{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, login, addrHash); err != nil {
		s.log.Warn("reset login attempts", zap.String("login", login), zap.Error(err))
	}
	if pkgcrypto.IsLegacyCredential(u.Password) {
		s.upgradeCredential(u.ID, u.Password, password)
	}

	tok, err := s.tokens.Issue(u.ID.String(), u.Login, s.ttl)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{
		Token: tok,
		ID:    u.ID.String(),
		Name:  s.pii.Reveal(u.Name),
		Login: u.Login,
		Phone: s.pii.Reveal(u.Phone),
	}, nil
}

// upgradeCredential replaces a plaintext credential with a hash in the background.
// Failure is logged and never affects the login that triggered it.
func (s *AuthServiceImpl) upgradeCredential(id uuid.UUID, old, password string) {
	s.upgrades.Add(1)
	go func() {
		defer s.upgrades.Done()
		cred, err := pkgcrypto.HashPassword(password)
		if err != nil {
			s.log.Error("hash legacy credential", zap.Stringer("user_id", id), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ok, err := s.users.ReplaceCredential(ctx, id, old, cred)
		switch {
		case err != nil:
			s.log.Error("upgrade legacy credential", zap.Stringer("user_id", id), zap.Error(err))
		case ok:
			s.log.Info("legacy credential upgraded", zap.Stringer("user_id", id))
		}
	}()
}

// Drain waits for background credential upgrades.
func (s *AuthServiceImpl) Drain() { s.upgrades.Wait() }
