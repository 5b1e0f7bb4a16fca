package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"assignly/internal/model"
	"assignly/internal/repository"
)

type MockStore struct {
	mock.Mock
}

var _ repository.Store = (*MockStore)(nil)

func (m *MockStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockStore) EnsureAccount(ctx context.Context, acct *model.Account) (*model.Account, bool, error) {
	args := m.Called(ctx, acct)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Account), args.Bool(1), args.Error(2)
}

func (m *MockStore) ListAccounts(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Account], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Account]), args.Error(1)
}

func (m *MockStore) CreateOrder(ctx context.Context, o *model.Order) (*model.Account, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockStore) GetOrder(ctx context.Context, key model.OrderKey) (*model.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockStore) ListOrders(ctx context.Context, f repository.OrderFilter, pq repository.PageQuery) (*repository.PageResult[model.Order], error) {
	args := m.Called(ctx, f, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Order]), args.Error(1)
}

func (m *MockStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.OrderKey, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderKey), args.Error(1)
}

func (m *MockStore) AdvanceStatus(ctx context.Context, key model.OrderKey, from, to model.Status, at time.Time) (bool, error) {
	args := m.Called(ctx, key, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) UpdateOrder(ctx context.Context, key model.OrderKey, mutate func(*model.Order) error) (*model.Order, error) {
	args := m.Called(ctx, key, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockStore) DeleteOrder(ctx context.Context, key model.OrderKey) (*repository.DeleteOutcome, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.DeleteOutcome), args.Error(1)
}
