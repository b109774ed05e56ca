// Package session persists the client's login between runs.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/and161185/clubpay/internal/crypto/clientcrypto"
	"github.com/and161185/clubpay/internal/errs"
	"github.com/and161185/clubpay/internal/model"
)

// Key is the single well-known key the session lives under.
const Key = "user_session"

// Store loads, saves and clears the persisted session.
type Store interface {
	Load(ctx context.Context) (model.Session, error)
	Save(ctx context.Context, s model.Session) error
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the session sealed in a local SQLite key-value table.
type SQLiteStore struct {
	db  *sql.DB
	key []byte
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. secret is stretched
// into the sealing key.
func OpenSQLite(ctx context.Context, path string, secret []byte) (*SQLiteStore, error) {
	key, err := clientcrypto.DeriveStoreKey(secret, "clubpay session store")
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session db: %w", err)
	}
	return &SQLiteStore{db: db, key: key}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load returns the stored session or errs.ErrNotFound. A value that no longer opens
// under the current key is dropped and reported as not found.
func (s *SQLiteStore) Load(ctx context.Context) (model.Session, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, Key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("read session: %w", err)
	}

	var out model.Session
	plain, err := clientcrypto.Open(s.key, sealed, []byte(Key))
	if err == nil {
		err = json.Unmarshal(plain, &out)
	}
	if err != nil {
		if cerr := s.Clear(ctx); cerr != nil {
			return model.Session{}, cerr
		}
		return model.Session{}, errs.ErrNotFound
	}
	return out, nil
}

// Save replaces the stored session.
func (s *SQLiteStore) Save(ctx context.Context, sess model.Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	sealed, err := clientcrypto.Seal(s.key, plain, []byte(Key))
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Key, sealed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, Key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
