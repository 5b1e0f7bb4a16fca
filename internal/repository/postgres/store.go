package postgres

import (
	"context"
	"database/sql"
	"time"

	"assignly/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
// It uses database/sql with parameterized queries. Ledger mutations run in a
// transaction that holds the account row lock (SELECT ... FOR UPDATE), so
// concurrent orders on one account serialize.
type Store struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ repository.Store = (*Store)(nil)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction. The transaction is rolled back when fn
// fails; errors returned by fn are passed through unchanged.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Unavailable(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return repository.Unavailable(op, err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
