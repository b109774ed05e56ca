package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps login attempt counters in the login_attempts table.
type PG struct {
	q      querier
	policy Policy
	now    func() time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. q is typically a *pgxpool.Pool.
func NewPG(q querier, p Policy) *PG {
	if p.MaxFails <= 0 {
		p = DefaultPolicy
	}
	return &PG{q: q, policy: p, now: time.Now}
}

// HashAddr hashes a client address so raw addresses are never stored. The port is
// dropped so reconnects from one host share a counter.
func HashAddr(addr string) []byte {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// Allow reports whether a login attempt may proceed.
func (l *PG) Allow(ctx context.Context, login string, addrHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE login=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, login, addrHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success resets the counter for (login, address).
func (l *PG) Success(ctx context.Context, login string, addrHash []byte) error {
	const q = `
INSERT INTO login_attempts (login, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (login, ip_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	_, err := l.q.Exec(ctx, q, login, addrHash)
	return err
}

// Failure counts a failed attempt; the counter restarts once Window has passed since
// the previous failure.
func (l *PG) Failure(ctx context.Context, login string, addrHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (login, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (login, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - login_attempts.updated_at > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, login, addrHash, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE login_attempts SET blocked_until=$3 WHERE login=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, login, addrHash, l.now().Add(l.policy.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
