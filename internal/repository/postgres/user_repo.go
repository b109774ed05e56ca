package postgres

import (
	"context"
	"errors"

	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO user_data (id, login, password, name, phone, notifications)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Login, u.Password, u.Name, u.Phone, u.Notifications)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, login, password, name, phone, notifications, created_at
FROM user_data WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByLogin selects a user by login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const q = `
SELECT id, login, password, name, phone, notifications, created_at
FROM user_data WHERE login=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, login))
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Login, &u.Password, &u.Name, &u.Phone, &u.Notifications, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ReplaceCredential updates the password column only while it still holds old.
func (r *UserRepo) ReplaceCredential(ctx context.Context, id uuid.UUID, old, updated string) (bool, error) {
	const q = `
UPDATE user_data
SET password = $3
WHERE id = $1 AND password = $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, old, updated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
