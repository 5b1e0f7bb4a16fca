package postgres

import (
	"context"
	"database/sql"
	"errors"

	"assignly/internal/model"
	"assignly/internal/repository"
)

const accountColumns = `id, email, name, role, page_quota, total_orders_placed, total_pages_used, is_active, created_at, quota_last_replenished`

func scanAccount(row scanner) (*model.Account, error) {
	var (
		a           model.Account
		role        string
		replenished sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&role,
		&a.PageQuota,
		&a.TotalOrdersPlaced,
		&a.TotalPagesUsed,
		&a.IsActive,
		&a.CreatedAt,
		&replenished,
	); err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	a.QuotaLastReplenished = timePtr(replenished)
	return &a, nil
}

// GetAccount fetches a single account by its ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, repository.Unavailable("get account", err)
	}
	return a, nil
}

// EnsureAccount inserts the account unless a row with the same ID exists.
// Existing rows are never overwritten, so the call is safe to repeat.
func (s *Store) EnsureAccount(ctx context.Context, acct *model.Account) (*model.Account, bool, error) {
	const q = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, q,
		acct.ID,
		acct.Email,
		acct.Name,
		string(acct.Role),
		acct.PageQuota,
		acct.TotalOrdersPlaced,
		acct.TotalPagesUsed,
		acct.IsActive,
		acct.CreatedAt,
		acct.QuotaLastReplenished,
	)
	if err != nil {
		return nil, false, repository.Unavailable("ensure account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, repository.Unavailable("ensure account", err)
	}
	stored, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

// ListAccounts returns accounts using LIMIT/OFFSET pagination and a total count.
func (s *Store) ListAccounts(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Account], error) {
	const qCount = `SELECT COUNT(*) FROM accounts`
	var total int
	if err := s.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, repository.Unavailable("list accounts", err)
	}

	const qList = `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, repository.Unavailable("list accounts", err)
	}
	defer rows.Close()

	items := make([]model.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, repository.Unavailable("list accounts", err)
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable("list accounts", err)
	}

	return &repository.PageResult[model.Account]{Items: items, Total: total}, nil
}

// lockAccount reads the account row and holds its lock until tx ends.
func lockAccount(ctx context.Context, tx *sql.Tx, id string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	a, err := scanAccount(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

func writeBalance(ctx context.Context, tx *sql.Tx, a *model.Account) error {
	const q = `
		UPDATE accounts
		SET page_quota = $2, total_orders_placed = $3, total_pages_used = $4
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, q, a.ID, a.PageQuota, a.TotalOrdersPlaced, a.TotalPagesUsed)
	return err
}
