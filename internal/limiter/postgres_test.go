package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeQuerier struct {
	rowErr       error
	blockedUntil time.Time
	fails        int

	execs   []string
	execErr error
}

var _ querier = (*fakeQuerier)(nil)

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if f.rowErr != nil {
			return f.rowErr
		}
		switch {
		case strings.Contains(sql, "SELECT blocked_until"):
			*(dest[0].(*time.Time)) = f.blockedUntil
		case strings.Contains(sql, "RETURNING fail_count"):
			*(dest[0].(*int)) = f.fails
		default:
			return errors.New("unexpected query")
		}
		return nil
	}}
}

func newTestPG(f *fakeQuerier, now time.Time) *PG {
	l := NewPG(f, Policy{Window: 5 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute})
	l.now = func() time.Time { return now }
	return l
}

func TestAllow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		f       *fakeQuerier
		ok      bool
		wait    time.Duration
		wantErr bool
	}{
		{"no row", &fakeQuerier{rowErr: pgx.ErrNoRows}, true, 0, false},
		{"epoch", &fakeQuerier{blockedUntil: time.Unix(0, 0)}, true, 0, false},
		{"blocked", &fakeQuerier{blockedUntil: now.Add(7 * time.Minute)}, false, 7 * time.Minute, false},
		{"db error", &fakeQuerier{rowErr: errors.New("boom")}, false, 0, true},
	}
	for _, tc := range cases {
		ok, wait, err := newTestPG(tc.f, now).Allow(context.Background(), "neo", []byte("h"))
		if (err != nil) != tc.wantErr || ok != tc.ok || wait != tc.wait {
			t.Fatalf("%s: ok=%v wait=%v err=%v", tc.name, ok, wait, err)
		}
	}
}

func TestSuccess(t *testing.T) {
	f := &fakeQuerier{}
	if err := newTestPG(f, time.Now()).Success(context.Background(), "neo", []byte("h")); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if len(f.execs) != 1 || !strings.Contains(f.execs[0], "INSERT INTO login_attempts") {
		t.Fatalf("unexpected execs: %v", f.execs)
	}

	f = &fakeQuerier{execErr: errors.New("exec fail")}
	if err := newTestPG(f, time.Now()).Success(context.Background(), "neo", []byte("h")); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	f := &fakeQuerier{fails: 2}
	blocked, d, err := newTestPG(f, time.Now()).Failure(context.Background(), "neo", []byte("h"))
	if err != nil || blocked || d != 0 || len(f.execs) != 0 {
		t.Fatalf("below threshold: blocked=%v d=%v err=%v execs=%d", blocked, d, err, len(f.execs))
	}

	f = &fakeQuerier{fails: 3}
	blocked, d, err = newTestPG(f, time.Now()).Failure(context.Background(), "neo", []byte("h"))
	if err != nil || !blocked || d != 10*time.Minute {
		t.Fatalf("at threshold: blocked=%v d=%v err=%v", blocked, d, err)
	}
	if len(f.execs) != 1 || !strings.Contains(f.execs[0], "UPDATE login_attempts SET blocked_until") {
		t.Fatalf("must set blocked_until, execs=%v", f.execs)
	}

	f = &fakeQuerier{rowErr: errors.New("query error")}
	if _, _, err := newTestPG(f, time.Now()).Failure(context.Background(), "neo", []byte("h")); err == nil {
		t.Fatalf("want error from RETURNING")
	}
}

func TestNewPG_DefaultPolicy(t *testing.T) {
	if l := NewPG(&fakeQuerier{}, Policy{}); l.policy != DefaultPolicy {
		t.Fatalf("policy=%+v", l.policy)
	}
}

func TestHashAddr(t *testing.T) {
	a := HashAddr("1.2.3.4:123")
	b := HashAddr("1.2.3.4:456")
	c := HashAddr("5.6.7.8:123")
	if string(a) != string(b) {
		t.Fatalf("port must not change the hash")
	}
	if string(a) == string(c) || len(a) != 32 {
		t.Fatalf("distinct hosts must differ, len=%d", len(a))
	}
	if string(HashAddr("bufconn")) == string(a) {
		t.Fatalf("unexpected collision")
	}
}
