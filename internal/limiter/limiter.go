// Package limiter throttles login attempts per (login, client address).
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, if not, for how long it is blocked.
	Allow(ctx context.Context, login string, addrHash []byte) (bool, time.Duration, error)
	// Success clears the failure counter.
	Success(ctx context.Context, login string, addrHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a lockout.
	Failure(ctx context.Context, login string, addrHash []byte) (bool, time.Duration, error)
}

// Policy is the lockout policy: MaxFails failures inside Window block for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per 15 minutes, then blocks for 15 minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
