// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/clubpay/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to club accounts.
type UserRepository interface {
	// Create inserts a new user. A taken login yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByLogin loads a user by login.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	// ReplaceCredential swaps the stored credential only if it still equals old.
	ReplaceCredential(ctx context.Context, id uuid.UUID, old, updated string) (bool, error)
}
