package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/repository"
)

// memStore is an in-memory repository.Store with the same atomicity as the
// real backends: every method runs under one lock.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	orders   map[model.OrderKey]model.Order
	// failCreate makes CreateOrder fail after the quota check.
	failCreate error
}

var _ repository.Store = (*memStore)(nil)

func newMemStore(accts ...model.Account) *memStore {
	s := &memStore{
		accounts: make(map[string]model.Account),
		orders:   make(map[model.OrderKey]model.Order),
	}
	for _, a := range accts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) account(id string) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) order(key model.OrderKey) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	return o, ok
}

func (s *memStore) putAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *memStore) put(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.Key()] = o
}

func (s *memStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &a, nil
}

func (s *memStore) EnsureAccount(_ context.Context, acct *model.Account) (*model.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[acct.ID]; ok {
		return &a, false, nil
	}
	s.accounts[acct.ID] = *acct
	a := *acct
	return &a, true, nil
}

func (s *memStore) ListAccounts(_ context.Context, pq repository.PageQuery) (*repository.PageResult[model.Account], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &repository.PageResult[model.Account]{Items: page(items, pq), Total: len(items)}, nil
}

func (s *memStore) CreateOrder(_ context.Context, o *model.Order) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[o.AccountID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	b, err := ledger.DebitAccount(a, o.PageCount)
	if err != nil {
		return nil, err
	}
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	b.Apply(&a)
	s.accounts[a.ID] = a
	s.orders[o.Key()] = *o
	return &a, nil
}

func (s *memStore) GetOrder(_ context.Context, key model.OrderKey) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (s *memStore) ListOrders(_ context.Context, f repository.OrderFilter, pq repository.PageQuery) (*repository.PageResult[model.Order], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []model.Order
	for _, o := range s.orders {
		if f.AccountID != "" && o.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		items = append(items, o)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return &repository.PageResult[model.Order]{Items: page(items, pq), Total: len(items)}, nil
}

func (s *memStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]model.OrderKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []model.OrderKey
	for k, o := range s.orders {
		if o.Status == model.StatusPending && o.CreatedAt.Before(cutoff) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memStore) AdvanceStatus(_ context.Context, key model.OrderKey, from, to model.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	if !ok || o.Status != from {
		return false, nil
	}
	if err := o.ApplyStatus(to, at); err != nil {
		return false, err
	}
	s.orders[key] = o
	return true, nil
}

func (s *memStore) UpdateOrder(_ context.Context, key model.OrderKey, mutate func(*model.Order) error) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := mutate(&o); err != nil {
		return nil, err
	}
	s.orders[key] = o
	return &o, nil
}

func (s *memStore) DeleteOrder(_ context.Context, key model.OrderKey) (*repository.DeleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[key.AccountID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	o, ok := s.orders[key]
	if !ok {
		return &repository.DeleteOutcome{Account: &a}, nil
	}
	res, err := ledger.Credit(ledger.BalanceOf(a), o.PageCount)
	if err != nil {
		return nil, err
	}
	delete(s.orders, key)
	res.Balance.Apply(&a)
	s.accounts[a.ID] = a
	return &repository.DeleteOutcome{
		Deleted:       true,
		PagesCredited: o.PageCount,
		Clamped:       res.Clamped,
		Account:       &a,
	}, nil
}

func page[T any](items []T, pq repository.PageQuery) []T {
	if pq.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if pq.Limit > 0 && pq.Offset+pq.Limit < end {
		end = pq.Offset + pq.Limit
	}
	return items[pq.Offset:end]
}
