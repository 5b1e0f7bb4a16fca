package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/service"
)

type MockOrderService struct {
	mock.Mock
}

var _ service.OrderService = (*MockOrderService)(nil)

func (m *MockOrderService) Place(ctx context.Context, in service.PlaceOrderInput) (*service.PlacedOrder, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PlacedOrder), args.Error(1)
}

func (m *MockOrderService) Submit(ctx context.Context, p auth.Principal, in service.SubmitOrderInput) (*service.PlacedOrder, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PlacedOrder), args.Error(1)
}

func (m *MockOrderService) Get(ctx context.Context, p auth.Principal, key model.OrderKey) (*model.Order, error) {
	args := m.Called(ctx, p, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) List(ctx context.Context, p auth.Principal, q service.ListOrdersQuery) (*service.OrderListResult, error) {
	args := m.Called(ctx, p, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OrderListResult), args.Error(1)
}

func (m *MockOrderService) Delete(ctx context.Context, p auth.Principal, key model.OrderKey) (*service.DeletionResult, error) {
	args := m.Called(ctx, p, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DeletionResult), args.Error(1)
}

func (m *MockOrderService) Update(ctx context.Context, p auth.Principal, key model.OrderKey, upd service.OrderUpdate) (*model.Order, error) {
	args := m.Called(ctx, p, key, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) FileLinks(ctx context.Context, p auth.Principal, key model.OrderKey, expiry time.Duration) ([]service.FileLink, error) {
	args := m.Called(ctx, p, key, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.FileLink), args.Error(1)
}
