// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist (or is not visible yet).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., login taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates input rejected before any network or store effect.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates an operation that is not allowed in the current state
	// (payment already terminal, purchase flow busy).
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable indicates the remote payment-creation endpoint could not be reached.
	ErrUnavailable = errors.New("payment endpoint unavailable")

	// ErrRejected indicates the remote payment-creation call ran and returned an application error.
	ErrRejected = errors.New("payment rejected")
)
