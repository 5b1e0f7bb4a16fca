package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/repository"
	repomocks "assignly/internal/repository/mocks"
)

func TestAccountService_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with default quota once", func(t *testing.T) {
		store := newMemStore()
		svc := NewAccountService(store, 40, WithClock(fixedClock))
		p := auth.Principal{AccountID: "u1", Email: "u1@example.com", Name: "Ada"}

		acct, err := svc.Ensure(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 40, acct.PageQuota)
		assert.Equal(t, model.RoleStudent, acct.Role)
		assert.True(t, acct.IsActive)
		assert.Equal(t, testNow, acct.CreatedAt)

		_, err = NewOrderService(store, nil, testOrdersConfig()).Place(ctx, placeInput("u1", 1))
		require.NoError(t, err)

		again, err := svc.Ensure(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 39, again.PageQuota)
	})

	t.Run("never grants admin", func(t *testing.T) {
		store := newMemStore()
		acct, err := NewAccountService(store, 40).Ensure(ctx, auth.Principal{AccountID: "u7", Email: "u7@example.com"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleStudent, acct.Role)

		_, err = NewAccountService(store, 40).List(ctx, auth.Principal{AccountID: "u7"}, 10, 0)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("keeps a provisioned role", func(t *testing.T) {
		store := newMemStore(adminAccount("boss"))
		acct, err := NewAccountService(store, 40).Ensure(ctx, auth.Principal{AccountID: "boss"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, acct.Role)
	})

	t.Run("blank subject", func(t *testing.T) {
		svc := NewAccountService(newMemStore(), 40)
		_, err := svc.Ensure(ctx, auth.Principal{})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		store := new(repomocks.MockStore)
		unavailable := repository.Unavailable("ensure account", errors.New("unavailable"))
		store.On("EnsureAccount", mock.Anything, mock.Anything).Return(nil, false, unavailable).Once()
		store.On("EnsureAccount", mock.Anything, mock.Anything).Return(&model.Account{ID: "u1", PageQuota: 40}, true, nil).Once()

		acct, err := NewAccountService(store, 40).Ensure(ctx, auth.Principal{AccountID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "u1", acct.ID)
		store.AssertNumberOfCalls(t, "EnsureAccount", 2)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		store := new(repomocks.MockStore)
		store.On("EnsureAccount", mock.Anything, mock.Anything).
			Return(nil, false, repository.Unavailable("ensure account", errors.New("unavailable")))

		_, err := NewAccountService(store, 40).Ensure(ctx, auth.Principal{AccountID: "u1"})
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
		store.AssertNumberOfCalls(t, "EnsureAccount", 3)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		store := new(repomocks.MockStore)
		boom := errors.New("constraint violated")
		store.On("EnsureAccount", mock.Anything, mock.Anything).Return(nil, false, boom)

		_, err := NewAccountService(store, 40).Ensure(ctx, auth.Principal{AccountID: "u1"})
		assert.ErrorIs(t, err, boom)
		store.AssertNumberOfCalls(t, "EnsureAccount", 1)
	})
}

func TestAccountService_Provision(t *testing.T) {
	ctx := context.Background()
	admin := auth.Principal{AccountID: "root"}
	quota := 100

	t.Run("admin sets quota and role", func(t *testing.T) {
		store := newMemStore(adminAccount("root"))
		svc := NewAccountService(store, 40)

		acct, created, err := svc.Provision(ctx, admin, ProvisionInput{
			ID: "u9", Email: "u9@example.com", Role: model.RoleAdmin, PageQuota: &quota,
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 100, acct.PageQuota)
		assert.Equal(t, model.RoleAdmin, acct.Role)

		_, created, err = svc.Provision(ctx, admin, ProvisionInput{ID: "u9", Email: "u9@example.com"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 100, store.account("u9").PageQuota)
	})

	t.Run("students may not provision", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		_, _, err := NewAccountService(store, 40).Provision(ctx, owner, ProvisionInput{ID: "x", Email: "x@example.com"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("invalid email", func(t *testing.T) {
		_, _, err := NewAccountService(newMemStore(adminAccount("root")), 40).Provision(ctx, admin, ProvisionInput{ID: "x", Email: "nope"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "email", verr.Fields[0].Field)
	})
}

func TestAccountService_GetList(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(student("u1", 40), student("u2", 12), adminAccount("root"))
	svc := NewAccountService(store, 40)

	acct, err := svc.Get(ctx, owner, "u1")
	require.NoError(t, err)
	assert.Equal(t, 40, acct.PageQuota)

	_, err = svc.Get(ctx, owner, "u2")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.List(ctx, owner, 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := svc.List(ctx, auth.Principal{AccountID: "root"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "u1", res.Items[0].ID)

	acct, err = svc.Get(ctx, auth.Principal{AccountID: "root"}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 12, acct.PageQuota)
}
