package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/repository"
	storagemocks "assignly/internal/storage/mocks"
)

var owner = auth.Principal{AccountID: "u1"}

func storeWithOrder(quota int, o model.Order) *memStore {
	acct := student("u1", quota)
	acct.TotalOrdersPlaced = 1
	acct.TotalPagesUsed = o.PageCount
	s := newMemStore(acct)
	s.put(o)
	return s
}

func sampleOrder() model.Order {
	return model.Order{
		ID:          "o1",
		AccountID:   "u1",
		Title:       "Essay",
		Status:      model.StatusPending,
		PageCount:   5,
		ContainerID: "orders/o1",
		CreatedAt:   testNow,
		Files: []model.FileRef{
			{Name: "a.pdf", FileID: "orders/o1/a.pdf"},
			{Name: "b.pdf", FileID: "orders/o1/b.pdf"},
		},
	}
}

func TestOrderService_Delete_CleanupFailureStillCredits(t *testing.T) {
	store := storeWithOrder(35, sampleOrder())
	files := new(storagemocks.MockFileStore)
	files.On("DeleteContainer", mock.Anything, "orders/o1").Return(0, errors.New("permission denied"))
	files.On("ListContainer", mock.Anything, "orders/o1").Return([]string{"orders/o1/a.pdf", "orders/o1/c.pdf"}, nil)
	files.On("DeleteFile", mock.Anything, mock.Anything).Return(errors.New("permission denied"))

	svc := NewOrderService(store, files, testOrdersConfig())
	res, err := svc.Delete(context.Background(), owner, model.OrderKey{AccountID: "u1", OrderID: "o1"})
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.False(t, res.AlreadyAbsent)
	assert.Equal(t, 5, res.PagesCredited)
	assert.False(t, res.CleanupComplete)
	assert.Len(t, res.CleanupFailures, 3)
	assert.Equal(t, 40, res.Account.PageQuota)

	acct := store.account("u1")
	assert.Equal(t, 40, acct.PageQuota)
	assert.Equal(t, 0, acct.TotalOrdersPlaced)
	assert.Equal(t, 0, acct.TotalPagesUsed)
	_, ok := store.order(model.OrderKey{AccountID: "u1", OrderID: "o1"})
	assert.False(t, ok)
	files.AssertNumberOfCalls(t, "DeleteFile", 3)
}

func TestOrderService_Delete_NeverCreated(t *testing.T) {
	acct := student("u1", 35)
	acct.TotalOrdersPlaced = 1
	acct.TotalPagesUsed = 5
	store := newMemStore(acct)
	files := new(storagemocks.MockFileStore)

	svc := NewOrderService(store, files, testOrdersConfig())
	res, err := svc.Delete(context.Background(), owner, model.OrderKey{AccountID: "u1", OrderID: "missing"})
	require.NoError(t, err)

	assert.True(t, res.AlreadyAbsent)
	assert.False(t, res.Deleted)
	assert.Zero(t, res.PagesCredited)
	assert.Equal(t, acct, store.account("u1"))
	files.AssertNotCalled(t, "DeleteContainer", mock.Anything, mock.Anything)
}

func TestOrderService_Delete_ContainerRemoval(t *testing.T) {
	store := storeWithOrder(35, sampleOrder())
	files := new(storagemocks.MockFileStore)
	files.On("DeleteContainer", mock.Anything, "orders/o1").Return(2, nil)

	svc := NewOrderService(store, files, testOrdersConfig())
	res, err := svc.Delete(context.Background(), owner, model.OrderKey{AccountID: "u1", OrderID: "o1"})
	require.NoError(t, err)

	assert.True(t, res.CleanupComplete)
	assert.Empty(t, res.CleanupFailures)
	assert.Equal(t, 40, store.account("u1").PageQuota)
	files.AssertNotCalled(t, "ListContainer", mock.Anything, mock.Anything)
	files.AssertNotCalled(t, "DeleteFile", mock.Anything, mock.Anything)
}

func TestOrderService_Delete_FallsBackToReferences(t *testing.T) {
	store := storeWithOrder(35, sampleOrder())
	files := new(storagemocks.MockFileStore)
	files.On("DeleteContainer", mock.Anything, "orders/o1").Return(0, nil)
	files.On("ListContainer", mock.Anything, "orders/o1").Return([]string{}, nil)
	files.On("DeleteFile", mock.Anything, "orders/o1/a.pdf").Return(nil)
	files.On("DeleteFile", mock.Anything, "orders/o1/b.pdf").Return(nil)

	svc := NewOrderService(store, files, testOrdersConfig())
	res, err := svc.Delete(context.Background(), owner, model.OrderKey{AccountID: "u1", OrderID: "o1"})
	require.NoError(t, err)

	assert.True(t, res.CleanupComplete)
	files.AssertExpectations(t)
}

func TestOrderService_Delete_ClampIsLogged(t *testing.T) {
	o := sampleOrder()
	o.ContainerID = ""
	o.Files = nil
	store := newMemStore(student("u1", 35))
	store.put(o)

	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewOrderService(store, new(storagemocks.MockFileStore), testOrdersConfig(), WithLogger(zap.New(core)))

	res, err := svc.Delete(context.Background(), owner, o.Key())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Account.PageQuota)
	assert.Zero(t, res.Account.TotalOrdersPlaced)
	assert.Zero(t, res.Account.TotalPagesUsed)

	entries := logs.FilterMessage("ledger_counter_clamped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "o1", entries[0].ContextMap()["order_id"])
}

func TestOrderService_Delete_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("other student", func(t *testing.T) {
		store := storeWithOrder(35, sampleOrder())
		svc := NewOrderService(store, new(storagemocks.MockFileStore), testOrdersConfig())

		_, err := svc.Delete(ctx, auth.Principal{AccountID: "u2"}, model.OrderKey{AccountID: "u1", OrderID: "o1"})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 35, store.account("u1").PageQuota)
	})

	t.Run("admin may delete any order", func(t *testing.T) {
		store := storeWithOrder(35, sampleOrder())
		store.putAccount(adminAccount("root"))
		files := new(storagemocks.MockFileStore)
		files.On("DeleteContainer", mock.Anything, "orders/o1").Return(2, nil)
		svc := NewOrderService(store, files, testOrdersConfig())

		res, err := svc.Delete(ctx, auth.Principal{AccountID: "root"}, model.OrderKey{AccountID: "u1", OrderID: "o1"})
		require.NoError(t, err)
		assert.True(t, res.Deleted)
	})

	t.Run("missing account", func(t *testing.T) {
		store := newMemStore()
		svc := NewOrderService(store, new(storagemocks.MockFileStore), testOrdersConfig())

		_, err := svc.Delete(ctx, owner, model.OrderKey{AccountID: "u1", OrderID: "o1"})
		assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	})

	t.Run("empty key", func(t *testing.T) {
		svc := NewOrderService(newMemStore(), nil, testOrdersConfig())

		_, err := svc.Delete(ctx, owner, model.OrderKey{AccountID: "u1"})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
