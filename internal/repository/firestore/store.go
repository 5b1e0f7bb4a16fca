// Package firestore implements repository.Store on Cloud Firestore.
// Accounts live at {accounts}/{id} and orders in the {orders} subcollection of
// their account. Ledger mutations run in Firestore transactions, which retry
// on contention, so concurrent orders on one account serialize.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"assignly/internal/config"
	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/repository"
)

// Store is a Firestore implementation of repository.Store.
type Store struct {
	client   *firestore.Client
	accounts string
	orders   string
}

var _ repository.Store = (*Store)(nil)

// NewClient creates a Firestore client for the configured project.
// FIRESTORE_EMULATOR_HOST is honoured by the SDK.
func NewClient(ctx context.Context, c config.FirestoreConfig) (*firestore.Client, error) {
	if c.ProjectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, c.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewStore wraps client using the configured collection names.
func NewStore(client *firestore.Client, c config.FirestoreConfig) *Store {
	accounts, orders := c.AccountsCollection, c.OrdersCollection
	if accounts == "" {
		accounts = "users"
	}
	if orders == "" {
		orders = "orders"
	}
	return &Store{client: client, accounts: accounts, orders: orders}
}

func (s *Store) accountRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.accounts).Doc(id)
}

func (s *Store) orderRef(key model.OrderKey) *firestore.DocumentRef {
	return s.accountRef(key.AccountID).Collection(s.orders).Doc(key.OrderID)
}

// PingContext reads one account document to prove the database answers.
func (s *Store) PingContext(ctx context.Context) error {
	iter := s.client.Collection(s.accounts).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return repository.Unavailable("ping", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// GetAccount fetches a single account by its ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	snap, err := s.accountRef(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, repository.Unavailable("get account", err)
	}
	return decodeAccount(snap)
}

// EnsureAccount creates the account document unless it already exists.
func (s *Store) EnsureAccount(ctx context.Context, acct *model.Account) (*model.Account, bool, error) {
	created := true
	if _, err := s.accountRef(acct.ID).Create(ctx, toAccountDoc(acct)); err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return nil, false, repository.Unavailable("ensure account", err)
		}
		created = false
	}
	stored, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// ListAccounts returns accounts newest first with a total count.
func (s *Store) ListAccounts(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Account], error) {
	const op = "list accounts"
	base := s.client.Collection(s.accounts).Query
	total, err := count(ctx, base)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}

	items := make([]model.Account, 0)
	iter := paginate(base.OrderBy("createdAt", firestore.Desc), pq).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, repository.Unavailable(op, err)
		}
		a, err := decodeAccount(snap)
		if err != nil {
			return nil, repository.Unavailable(op, err)
		}
		items = append(items, *a)
	}
	return &repository.PageResult[model.Account]{Items: items, Total: total}, nil
}

// CreateOrder writes the order and debits its page count in one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) (*model.Account, error) {
	acctRef := s.accountRef(o.AccountID)
	orderRef := s.orderRef(o.Key())

	var acct *model.Account
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(acctRef)
		if err != nil {
			if isNotFound(err) {
				return repository.ErrAccountNotFound
			}
			return err
		}
		a, err := decodeAccount(snap)
		if err != nil {
			return err
		}
		next, err := ledger.DebitAccount(*a, o.PageCount)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, toOrderDoc(o)); err != nil {
			return err
		}
		next.Apply(a)
		if err := tx.Update(acctRef, balanceUpdates(a)); err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, repository.Unavailable("create order", err)
	}
	return acct, nil
}

// GetOrder fetches a single order under its account.
func (s *Store) GetOrder(ctx context.Context, key model.OrderKey) (*model.Order, error) {
	snap, err := s.orderRef(key).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, repository.ErrOrderNotFound
		}
		return nil, repository.Unavailable("get order", err)
	}
	return decodeOrder(snap)
}

// ListOrders reads one account's subcollection, or every account's through a
// collection group query when no account is given.
func (s *Store) ListOrders(ctx context.Context, f repository.OrderFilter, pq repository.PageQuery) (*repository.PageResult[model.Order], error) {
	const op = "list orders"
	var base firestore.Query
	if f.AccountID != "" {
		base = s.accountRef(f.AccountID).Collection(s.orders).Query
	} else {
		base = s.client.CollectionGroup(s.orders).Query
	}
	if f.Status != "" {
		base = base.Where("status", "==", string(f.Status))
	}

	total, err := count(ctx, base)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}

	items := make([]model.Order, 0)
	iter := paginate(base.OrderBy("createdAt", firestore.Desc), pq).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, repository.Unavailable(op, err)
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return nil, repository.Unavailable(op, err)
		}
		items = append(items, *o)
	}
	return &repository.PageResult[model.Order]{Items: items, Total: total}, nil
}

// ListPendingBefore scans the orders collection group. It needs a composite
// index on (status, createdAt).
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.OrderKey, error) {
	iter := s.client.CollectionGroup(s.orders).
		Where("status", "==", string(model.StatusPending)).
		Where("createdAt", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	keys := make([]model.OrderKey, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, repository.Unavailable("list pending orders", err)
		}
		parent := snap.Ref.Parent.Parent
		if parent == nil {
			continue
		}
		keys = append(keys, model.OrderKey{AccountID: parent.ID, OrderID: snap.Ref.ID})
	}
	return keys, nil
}

// AdvanceStatus re-reads the order inside a transaction and writes only if it
// is still in from.
func (s *Store) AdvanceStatus(ctx context.Context, key model.OrderKey, from, to model.Status, at time.Time) (bool, error) {
	if !model.CanTransition(from, to) || from == to {
		return false, model.ErrInvalidTransition
	}
	ref := s.orderRef(key)

	var advanced bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		advanced = false
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if o.Status != from {
			return nil
		}
		if err := o.ApplyStatus(to, at); err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "status", Value: string(o.Status)},
			{Path: "updatedAt", Value: at},
			{Path: "startedAt", Value: o.StartedAt},
		}
		if o.CompletedAt != nil {
			updates = append(updates,
				firestore.Update{Path: "completedAt", Value: o.CompletedAt},
				firestore.Update{Path: "turnaroundTimeHours", Value: o.TurnaroundHours},
			)
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		return false, repository.Unavailable("advance order", err)
	}
	return advanced, nil
}

// UpdateOrder applies mutate to the order inside a transaction.
func (s *Store) UpdateOrder(ctx context.Context, key model.OrderKey, mutate func(*model.Order) error) (*model.Order, error) {
	ref := s.orderRef(key)

	var out *model.Order
	var mutateErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repository.ErrOrderNotFound
			}
			return err
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if err := mutate(o); err != nil {
			mutateErr = err
			return err
		}
		if err := tx.Set(ref, toOrderDoc(o)); err != nil {
			return err
		}
		out = o
		return nil
	})
	if mutateErr != nil {
		return nil, mutateErr
	}
	if err != nil {
		return nil, repository.Unavailable("update order", err)
	}
	return out, nil
}

// DeleteOrder removes the order and credits its stored page count in one transaction.
func (s *Store) DeleteOrder(ctx context.Context, key model.OrderKey) (*repository.DeleteOutcome, error) {
	acctRef := s.accountRef(key.AccountID)
	orderRef := s.orderRef(key)

	var out *repository.DeleteOutcome
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		acctSnap, err := tx.Get(acctRef)
		if err != nil {
			if isNotFound(err) {
				return repository.ErrAccountNotFound
			}
			return err
		}
		a, err := decodeAccount(acctSnap)
		if err != nil {
			return err
		}

		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if isNotFound(err) {
				out = &repository.DeleteOutcome{Account: a}
				return nil
			}
			return err
		}
		o, err := decodeOrder(orderSnap)
		if err != nil {
			return err
		}

		res, err := ledger.Credit(ledger.BalanceOf(*a), o.PageCount)
		if err != nil {
			return err
		}
		if err := tx.Delete(orderRef); err != nil {
			return err
		}
		res.Balance.Apply(a)
		if err := tx.Update(acctRef, balanceUpdates(a)); err != nil {
			return err
		}
		out = &repository.DeleteOutcome{
			Deleted:       true,
			PagesCredited: o.PageCount,
			Clamped:       res.Clamped,
			Account:       a,
		}
		return nil
	})
	if err != nil {
		return nil, repository.Unavailable("delete order", err)
	}
	return out, nil
}

func paginate(q firestore.Query, pq repository.PageQuery) firestore.Query {
	if pq.Offset > 0 {
		q = q.Offset(pq.Offset)
	}
	if pq.Limit > 0 {
		q = q.Limit(pq.Limit)
	}
	return q
}

func count(ctx context.Context, q firestore.Query) (int, error) {
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res["all"])
	}
	return int(v.GetIntegerValue()), nil
}
