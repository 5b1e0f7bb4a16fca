package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/service"
)

type MockAccountService struct {
	mock.Mock
}

var _ service.AccountService = (*MockAccountService)(nil)

func (m *MockAccountService) Ensure(ctx context.Context, p auth.Principal) (*model.Account, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountService) Provision(ctx context.Context, caller auth.Principal, in service.ProvisionInput) (*model.Account, bool, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Account), args.Bool(1), args.Error(2)
}

func (m *MockAccountService) Get(ctx context.Context, p auth.Principal, id string) (*model.Account, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountService) List(ctx context.Context, p auth.Principal, limit, offset int) (*service.AccountListResult, error) {
	args := m.Called(ctx, p, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccountListResult), args.Error(1)
}
