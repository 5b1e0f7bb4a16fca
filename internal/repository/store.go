package repository

// Package repository contains the persistence contract for accounts and orders.
// Implementations live in subpackages (postgres, firestore) inside this directory.

import (
	"context"
	"time"

	"assignly/internal/model"
)

// AccountStore defines data access for accounts.
type AccountStore interface {
	// GetAccount returns ErrAccountNotFound when no account has the given id.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// EnsureAccount inserts acct when no account with its ID exists and returns
	// the stored record. created reports whether this call inserted it.
	EnsureAccount(ctx context.Context, acct *model.Account) (stored *model.Account, created bool, err error)

	ListAccounts(ctx context.Context, pq PageQuery) (*PageResult[model.Account], error)
}

// OrderStore defines data access for orders. Every method that changes the
// ledger does so in the same transaction as the order write.
type OrderStore interface {
	// CreateOrder writes o and debits o.PageCount from its account atomically.
	// The quota check is repeated inside the transaction; on failure nothing is written.
	CreateOrder(ctx context.Context, o *model.Order) (*model.Account, error)

	// GetOrder returns ErrOrderNotFound when the order does not exist.
	GetOrder(ctx context.Context, key model.OrderKey) (*model.Order, error)

	ListOrders(ctx context.Context, f OrderFilter, pq PageQuery) (*PageResult[model.Order], error)

	// ListPendingBefore returns the keys of pending orders created strictly before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.OrderKey, error)

	// AdvanceStatus moves an order from one status to another only if it is
	// still in from. It reports false, without error, when the order is
	// missing or has already moved.
	AdvanceStatus(ctx context.Context, key model.OrderKey, from, to model.Status, at time.Time) (bool, error)

	// UpdateOrder reads the order, applies mutate and writes the result in one
	// transaction. An error from mutate aborts the write and is returned as is.
	UpdateOrder(ctx context.Context, key model.OrderKey, mutate func(*model.Order) error) (*model.Order, error)

	// DeleteOrder removes the order and credits its stored page count back to
	// the account atomically. A missing order is not an error.
	DeleteOrder(ctx context.Context, key model.OrderKey) (*DeleteOutcome, error)
}

// Store is the full persistence contract used by the services.
type Store interface {
	AccountStore
	OrderStore
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	AccountID string
	Status    model.Status
}

// DeleteOutcome describes what DeleteOrder committed.
type DeleteOutcome struct {
	// Deleted is false when the order was already gone inside the transaction.
	Deleted       bool
	PagesCredited int
	// Clamped is set when a usage counter was floored at zero.
	Clamped bool
	Account *model.Account
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
