package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/repository"
)

const orderColumns = `id, account_id, account_email, title, order_type, files, page_count, status, container_id, notes, completed_file_url, created_at, updated_at, started_at, completed_at, turnaround_hours`

func scanOrder(row scanner) (*model.Order, error) {
	var (
		o                           model.Order
		orderType, status           string
		files                       []byte
		updated, started, completed sql.NullTime
		turnaround                  sql.NullFloat64
	)
	if err := row.Scan(
		&o.ID,
		&o.AccountID,
		&o.AccountEmail,
		&o.Title,
		&orderType,
		&files,
		&o.PageCount,
		&status,
		&o.ContainerID,
		&o.Notes,
		&o.CompletedFileURL,
		&o.CreatedAt,
		&updated,
		&started,
		&completed,
		&turnaround,
	); err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o.Status = st
	o.OrderType = model.OrderType(orderType)
	if len(files) > 0 {
		if err := json.Unmarshal(files, &o.Files); err != nil {
			return nil, fmt.Errorf("decode files of order %s: %w", o.ID, err)
		}
	}
	o.UpdatedAt = timePtr(updated)
	o.StartedAt = timePtr(started)
	o.CompletedAt = timePtr(completed)
	if turnaround.Valid {
		h := turnaround.Float64
		o.TurnaroundHours = &h
	}
	return &o, nil
}

// CreateOrder inserts the order and debits its page count inside one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) (*model.Account, error) {
	const op = "create order"
	files, err := json.Marshal(o.Files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}

	var acct *model.Account
	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		a, err := lockAccount(ctx, tx, o.AccountID)
		if err != nil {
			return repository.Unavailable(op, err)
		}
		next, err := ledger.DebitAccount(*a, o.PageCount)
		if err != nil {
			return err
		}

		const q = `
			INSERT INTO orders (` + orderColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		if _, err := tx.ExecContext(ctx, q,
			o.ID,
			o.AccountID,
			o.AccountEmail,
			o.Title,
			string(o.OrderType),
			files,
			o.PageCount,
			string(o.Status),
			o.ContainerID,
			o.Notes,
			o.CompletedFileURL,
			o.CreatedAt,
			o.UpdatedAt,
			o.StartedAt,
			o.CompletedAt,
			o.TurnaroundHours,
		); err != nil {
			return repository.Unavailable(op, err)
		}

		next.Apply(a)
		if err := writeBalance(ctx, tx, a); err != nil {
			return repository.Unavailable(op, err)
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// GetOrder fetches a single order under its account.
func (s *Store) GetOrder(ctx context.Context, key model.OrderKey) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 AND id = $2`
	o, err := scanOrder(s.db.QueryRowContext(ctx, q, key.AccountID, key.OrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrOrderNotFound
		}
		return nil, repository.Unavailable("get order", err)
	}
	return o, nil
}

// ListOrders returns orders newest first, filtered by f, with a total count.
func (s *Store) ListOrders(ctx context.Context, f repository.OrderFilter, pq repository.PageQuery) (*repository.PageResult[model.Order], error) {
	const op = "list orders"
	var (
		conds []string
		args  []any
	)
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, repository.Unavailable(op, err)
	}

	qList := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, qList, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}
	defer rows.Close()

	items := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, repository.Unavailable(op, err)
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable(op, err)
	}

	return &repository.PageResult[model.Order]{Items: items, Total: total}, nil
}

// ListPendingBefore returns pending orders created strictly before cutoff, oldest first.
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.OrderKey, error) {
	const op = "list pending orders"
	const q = `
		SELECT account_id, id
		FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, q, string(model.StatusPending), cutoff)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}
	defer rows.Close()

	keys := make([]model.OrderKey, 0)
	for rows.Next() {
		var k model.OrderKey
		if err := rows.Scan(&k.AccountID, &k.OrderID); err != nil {
			return nil, repository.Unavailable(op, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable(op, err)
	}
	return keys, nil
}

// AdvanceStatus is a single conditional UPDATE; the status predicate makes
// overlapping runs harmless.
func (s *Store) AdvanceStatus(ctx context.Context, key model.OrderKey, from, to model.Status, at time.Time) (bool, error) {
	if !model.CanTransition(from, to) || from == to {
		return false, model.ErrInvalidTransition
	}
	q := `
		UPDATE orders
		SET status = $4, updated_at = $5, started_at = COALESCE(started_at, $5)
		WHERE account_id = $1 AND id = $2 AND status = $3
	`
	if to == model.StatusCompleted {
		q = `
		UPDATE orders
		SET status = $4, updated_at = $5, started_at = COALESCE(started_at, $5),
			completed_at = $5, turnaround_hours = EXTRACT(EPOCH FROM ($5 - created_at)) / 3600
		WHERE account_id = $1 AND id = $2 AND status = $3
	`
	}
	res, err := s.db.ExecContext(ctx, q, key.AccountID, key.OrderID, string(from), string(to), at)
	if err != nil {
		return false, repository.Unavailable("advance order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, repository.Unavailable("advance order", err)
	}
	return n == 1, nil
}

// UpdateOrder locks the order row, applies mutate and writes the mutable columns back.
func (s *Store) UpdateOrder(ctx context.Context, key model.OrderKey, mutate func(*model.Order) error) (*model.Order, error) {
	const op = "update order"
	var out *model.Order
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		const qSel = `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 AND id = $2 FOR UPDATE`
		o, err := scanOrder(tx.QueryRowContext(ctx, qSel, key.AccountID, key.OrderID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrOrderNotFound
			}
			return repository.Unavailable(op, err)
		}
		if err := mutate(o); err != nil {
			return err
		}

		const qUpd = `
			UPDATE orders
			SET status = $3, notes = $4, completed_file_url = $5, updated_at = $6,
				started_at = $7, completed_at = $8, turnaround_hours = $9
			WHERE account_id = $1 AND id = $2
		`
		if _, err := tx.ExecContext(ctx, qUpd,
			key.AccountID,
			key.OrderID,
			string(o.Status),
			o.Notes,
			o.CompletedFileURL,
			o.UpdatedAt,
			o.StartedAt,
			o.CompletedAt,
			o.TurnaroundHours,
		); err != nil {
			return repository.Unavailable(op, err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOrder deletes the order and credits the page count stored on it.
func (s *Store) DeleteOrder(ctx context.Context, key model.OrderKey) (*repository.DeleteOutcome, error) {
	const op = "delete order"
	var out *repository.DeleteOutcome
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		a, err := lockAccount(ctx, tx, key.AccountID)
		if err != nil {
			return repository.Unavailable(op, err)
		}

		const qSel = `SELECT page_count FROM orders WHERE account_id = $1 AND id = $2 FOR UPDATE`
		var pages int
		if err := tx.QueryRowContext(ctx, qSel, key.AccountID, key.OrderID).Scan(&pages); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				out = &repository.DeleteOutcome{Account: a}
				return nil
			}
			return repository.Unavailable(op, err)
		}

		const qDel = `DELETE FROM orders WHERE account_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, qDel, key.AccountID, key.OrderID); err != nil {
			return repository.Unavailable(op, err)
		}

		res, err := ledger.Credit(ledger.BalanceOf(*a), pages)
		if err != nil {
			return err
		}
		res.Balance.Apply(a)
		if err := writeBalance(ctx, tx, a); err != nil {
			return repository.Unavailable(op, err)
		}
		out = &repository.DeleteOutcome{
			Deleted:       true,
			PagesCredited: pages,
			Clamped:       res.Clamped,
			Account:       a,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
