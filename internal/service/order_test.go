package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"assignly/internal/auth"
	"assignly/internal/config"
	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/repository"
	"assignly/internal/storage"
	storagemocks "assignly/internal/storage/mocks"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testOrdersConfig() config.OrdersConfig {
	return config.OrdersConfig{
		AdvanceThreshold:   150 * time.Minute,
		FileOpTimeout:      time.Second,
		CleanupConcurrency: 3,
		DefaultQuota:       40,
	}
}

func student(id string, quota int) model.Account {
	return model.Account{ID: id, Email: id + "@example.com", Role: model.RoleStudent, PageQuota: quota, IsActive: true}
}

func adminAccount(id string) model.Account {
	a := student(id, 0)
	a.Role = model.RoleAdmin
	return a
}

func placeInput(accountID string, pages int) PlaceOrderInput {
	return PlaceOrderInput{
		AccountID: accountID,
		Title:     "Essay",
		Files:     []model.FileRef{{Name: "essay.pdf", FileID: "c/essay.pdf"}},
		PageCount: pages,
	}
}

func TestOrderService_Place(t *testing.T) {
	ctx := context.Background()

	t.Run("debits quota and creates pending order", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		svc := NewOrderService(store, nil, testOrdersConfig(), WithClock(fixedClock))

		out, err := svc.Place(ctx, placeInput("u1", 5))
		require.NoError(t, err)

		assert.Equal(t, model.StatusPending, out.Order.Status)
		assert.Equal(t, 5, out.Order.PageCount)
		assert.Equal(t, testNow, out.Order.CreatedAt)
		assert.Equal(t, model.OrderTypeAssignment, out.Order.OrderType)
		assert.Equal(t, 35, out.Account.PageQuota)

		acct := store.account("u1")
		assert.Equal(t, 35, acct.PageQuota)
		assert.Equal(t, 1, acct.TotalOrdersPlaced)
		assert.Equal(t, 5, acct.TotalPagesUsed)

		stored, ok := store.order(out.Order.Key())
		require.True(t, ok)
		assert.Equal(t, 5, stored.PageCount)
		assert.Equal(t, "u1@example.com", stored.AccountEmail)
	})

	t.Run("insufficient quota leaves everything unchanged", func(t *testing.T) {
		store := newMemStore(student("u1", 10))
		svc := NewOrderService(store, nil, testOrdersConfig())

		out, err := svc.Place(ctx, placeInput("u1", 15))
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ledger.ErrInsufficientQuota)
		assert.Equal(t, 10, store.account("u1").PageQuota)
		assert.Empty(t, store.orders)
	})

	t.Run("unknown account", func(t *testing.T) {
		store := newMemStore()
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Place(ctx, placeInput("ghost", 1))
		assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	})

	t.Run("inactive account is refused", func(t *testing.T) {
		acct := student("u1", 40)
		acct.IsActive = false
		store := newMemStore(acct)
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Place(ctx, placeInput("u1", 5))
		assert.ErrorIs(t, err, ledger.ErrAccountInactive)
		assert.Equal(t, 40, store.account("u1").PageQuota)
		assert.Empty(t, store.orders)
	})

	t.Run("store failure leaves everything unchanged", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		store.failCreate = repository.Unavailable("create order", errors.New("deadline exceeded"))
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Place(ctx, placeInput("u1", 5))
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
		assert.Equal(t, 40, store.account("u1").PageQuota)
		assert.Empty(t, store.orders)
	})

	validation := []struct {
		name  string
		in    PlaceOrderInput
		field string
	}{
		{
			name:  "blank title",
			in:    PlaceOrderInput{AccountID: "u1", Title: "  ", Files: placeInput("u1", 1).Files, PageCount: 1},
			field: "title",
		},
		{
			name:  "no files",
			in:    PlaceOrderInput{AccountID: "u1", Title: "Essay", PageCount: 1},
			field: "files",
		},
		{
			name:  "empty file reference",
			in:    PlaceOrderInput{AccountID: "u1", Title: "Essay", Files: []model.FileRef{{Name: "a.pdf"}}, PageCount: 1},
			field: "files[0].file_id",
		},
		{
			name:  "zero pages",
			in:    PlaceOrderInput{AccountID: "u1", Title: "Essay", Files: placeInput("u1", 1).Files},
			field: "page_count",
		},
		{
			name: "fewer pages than files",
			in: PlaceOrderInput{AccountID: "u1", Title: "Essay", PageCount: 1, Files: []model.FileRef{
				{Name: "a.pdf", FileID: "c/a"}, {Name: "b.pdf", FileID: "c/b"},
			}},
			field: "page_count",
		},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(student("u1", 40))
			svc := NewOrderService(store, nil, testOrdersConfig())

			_, err := svc.Place(ctx, tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
			assert.Equal(t, 40, store.account("u1").PageQuota)
			assert.Empty(t, store.orders)
		})
	}
}

func TestOrderService_Place_ConcurrentNeverNegative(t *testing.T) {
	store := newMemStore(student("u1", 40))
	svc := NewOrderService(store, nil, testOrdersConfig())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Place(context.Background(), placeInput("u1", 3)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	acct := store.account("u1")
	assert.GreaterOrEqual(t, acct.PageQuota, 0)
	assert.Equal(t, 13, accepted)
	assert.Equal(t, 40-3*accepted, acct.PageQuota)
	assert.Len(t, store.orders, accepted)
}

func textUpload(name, body string) Upload {
	return Upload{Name: name, ContentType: "text/plain", Size: int64(len(body)), Content: bytes.NewReader([]byte(body))}
}

func uploadedRef(_ context.Context, container, name string, _ io.Reader, _ storage.PutObjectOptions) model.FileRef {
	return model.FileRef{Name: name, FileID: container + "/" + name}
}

func TestOrderService_Submit(t *testing.T) {
	ctx := context.Background()
	p := auth.Principal{AccountID: "u1", Email: "u1@example.com"}

	t.Run("uploads files and places order", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		files := new(storagemocks.MockFileStore)
		files.On("CreateContainer", mock.Anything, mock.AnythingOfType("string")).Return("orders/x", nil)
		files.On("Upload", mock.Anything, "orders/x", mock.Anything, mock.Anything, mock.Anything).Return(uploadedRef, nil)

		svc := NewOrderService(store, files, testOrdersConfig(), WithClock(fixedClock))
		out, err := svc.Submit(ctx, p, SubmitOrderInput{
			Title: "Lab report",
			Files: []Upload{textUpload("a.txt", "one"), textUpload("b.txt", "two")},
		})
		require.NoError(t, err)

		assert.Equal(t, 2, out.Order.PageCount)
		assert.Equal(t, "orders/x", out.Order.ContainerID)
		assert.Equal(t, []model.FileRef{
			{Name: "a.txt", FileID: "orders/x/a.txt"},
			{Name: "b.txt", FileID: "orders/x/b.txt"},
		}, out.Order.Files)
		assert.Equal(t, 38, store.account("u1").PageQuota)
		files.AssertExpectations(t)
	})

	t.Run("quota precheck rejects before any upload", func(t *testing.T) {
		store := newMemStore(student("u1", 1))
		files := new(storagemocks.MockFileStore)
		svc := NewOrderService(store, files, testOrdersConfig())

		_, err := svc.Submit(ctx, p, SubmitOrderInput{
			Title: "Lab report",
			Files: []Upload{textUpload("a.txt", "one"), textUpload("b.txt", "two")},
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientQuota)
		files.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
	})

	t.Run("inactive account uploads nothing", func(t *testing.T) {
		acct := student("u1", 40)
		acct.IsActive = false
		store := newMemStore(acct)
		files := new(storagemocks.MockFileStore)
		svc := NewOrderService(store, files, testOrdersConfig())

		_, err := svc.Submit(ctx, p, SubmitOrderInput{Title: "Lab", Files: []Upload{textUpload("a.txt", "one")}})
		assert.ErrorIs(t, err, ledger.ErrAccountInactive)
		files.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
	})

	t.Run("retries a failed upload once", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		files := new(storagemocks.MockFileStore)
		files.On("CreateContainer", mock.Anything, mock.Anything).Return("orders/x", nil)
		files.On("Upload", mock.Anything, "orders/x", "a.txt", mock.Anything, mock.Anything).
			Return(model.FileRef{}, errors.New("connection reset")).Once()
		files.On("Upload", mock.Anything, "orders/x", "a.txt", mock.Anything, mock.Anything).
			Return(uploadedRef, nil).Once()

		svc := NewOrderService(store, files, testOrdersConfig())
		out, err := svc.Submit(ctx, p, SubmitOrderInput{Title: "Lab", Files: []Upload{textUpload("a.txt", "one")}})
		require.NoError(t, err)
		assert.Len(t, out.Order.Files, 1)
		files.AssertNumberOfCalls(t, "Upload", 2)
	})

	t.Run("upload failure discards the container", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		files := new(storagemocks.MockFileStore)
		files.On("CreateContainer", mock.Anything, mock.Anything).Return("orders/x", nil)
		files.On("Upload", mock.Anything, "orders/x", "a.txt", mock.Anything, mock.Anything).
			Return(model.FileRef{}, errors.New("bucket gone"))
		files.On("DeleteContainer", mock.Anything, "orders/x").Return(0, nil)

		svc := NewOrderService(store, files, testOrdersConfig())
		_, err := svc.Submit(ctx, p, SubmitOrderInput{Title: "Lab", Files: []Upload{textUpload("a.txt", "one")}})
		assert.ErrorIs(t, err, ErrUploadFailed)
		assert.Equal(t, 40, store.account("u1").PageQuota)
		files.AssertCalled(t, "DeleteContainer", mock.Anything, "orders/x")
	})

	t.Run("rejected placement discards the container", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		store.failCreate = fmt.Errorf("%w: raced", ledger.ErrInsufficientQuota)
		files := new(storagemocks.MockFileStore)
		files.On("CreateContainer", mock.Anything, mock.Anything).Return("orders/x", nil)
		files.On("Upload", mock.Anything, "orders/x", mock.Anything, mock.Anything, mock.Anything).Return(uploadedRef, nil)
		files.On("DeleteContainer", mock.Anything, "orders/x").Return(1, nil)

		svc := NewOrderService(store, files, testOrdersConfig())
		_, err := svc.Submit(ctx, p, SubmitOrderInput{Title: "Lab", Files: []Upload{textUpload("a.txt", "one")}})
		assert.ErrorIs(t, err, ledger.ErrInsufficientQuota)
		files.AssertCalled(t, "DeleteContainer", mock.Anything, "orders/x")
	})

	t.Run("unknown store outcome keeps the files", func(t *testing.T) {
		store := newMemStore(student("u1", 40))
		store.failCreate = repository.Unavailable("create order", context.DeadlineExceeded)
		files := new(storagemocks.MockFileStore)
		files.On("CreateContainer", mock.Anything, mock.Anything).Return("orders/x", nil)
		files.On("Upload", mock.Anything, "orders/x", mock.Anything, mock.Anything, mock.Anything).Return(uploadedRef, nil)

		svc := NewOrderService(store, files, testOrdersConfig())
		_, err := svc.Submit(ctx, p, SubmitOrderInput{Title: "Lab", Files: []Upload{textUpload("a.txt", "one")}})
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
		files.AssertNotCalled(t, "DeleteContainer", mock.Anything, mock.Anything)
	})
}

func TestOrderService_List(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(student("u1", 40), student("u2", 40), adminAccount("admin"))
	store.put(model.Order{ID: "o1", AccountID: "u1", Status: model.StatusPending, PageCount: 1, CreatedAt: testNow})
	store.put(model.Order{ID: "o2", AccountID: "u2", Status: model.StatusCompleted, PageCount: 1, CreatedAt: testNow})
	svc := NewOrderService(store, nil, testOrdersConfig())

	t.Run("student sees own orders only", func(t *testing.T) {
		res, err := svc.List(ctx, auth.Principal{AccountID: "u1"}, ListOrdersQuery{})
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "o1", res.Items[0].ID)
	})

	t.Run("student cannot list another account", func(t *testing.T) {
		_, err := svc.List(ctx, auth.Principal{AccountID: "u1"}, ListOrdersQuery{AccountID: "u2"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("admin filters by legacy status label", func(t *testing.T) {
		store.put(model.Order{ID: "o3", AccountID: "u2", Status: model.StatusInProgress, PageCount: 1, CreatedAt: testNow})
		res, err := svc.List(ctx, auth.Principal{AccountID: "admin"}, ListOrdersQuery{Status: "writing"})
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "o3", res.Items[0].ID)
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		_, err := svc.List(ctx, auth.Principal{AccountID: "admin"}, ListOrdersQuery{Status: "lost"})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestOrderService_Update(t *testing.T) {
	ctx := context.Background()
	admin := auth.Principal{AccountID: "admin"}
	key := model.OrderKey{AccountID: "u1", OrderID: "o1"}
	created := testNow.Add(-24 * time.Hour)

	newStore := func(st model.Status) *memStore {
		s := newMemStore(student("u1", 35), adminAccount("admin"))
		s.put(model.Order{ID: "o1", AccountID: "u1", Status: st, PageCount: 5, CreatedAt: created})
		return s
	}
	ptr := func(s string) *string { return &s }

	t.Run("complete stamps turnaround and keeps ledger", func(t *testing.T) {
		store := newStore(model.StatusInProgress)
		svc := NewOrderService(store, nil, testOrdersConfig(), WithClock(fixedClock))

		o, err := svc.Update(ctx, admin, key, OrderUpdate{
			Status:           ptr("completed"),
			CompletedFileURL: ptr("https://files.example.com/done.pdf"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, o.Status)
		require.NotNil(t, o.CompletedAt)
		assert.InDelta(t, 24.0, *o.TurnaroundHours, 0.001)
		assert.Equal(t, "https://files.example.com/done.pdf", o.CompletedFileURL)
		assert.Equal(t, 35, store.account("u1").PageQuota)
	})

	t.Run("backwards transition is rejected", func(t *testing.T) {
		store := newStore(model.StatusCompleted)
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, admin, key, OrderUpdate{Status: ptr("pending")})
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
		o, _ := store.order(key)
		assert.Equal(t, model.StatusCompleted, o.Status)
	})

	t.Run("students may not update", func(t *testing.T) {
		store := newStore(model.StatusPending)
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, auth.Principal{AccountID: "u1"}, key, OrderUpdate{Notes: ptr("hi")})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("missing order", func(t *testing.T) {
		store := newMemStore(adminAccount("admin"))
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, admin, key, OrderUpdate{Notes: ptr("hi")})
		assert.ErrorIs(t, err, repository.ErrOrderNotFound)
	})

	t.Run("role comes from the stored account", func(t *testing.T) {
		store := newStore(model.StatusPending)
		store.putAccount(student("u2", 40))
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, auth.Principal{AccountID: "u2"}, key, OrderUpdate{Notes: ptr("hi")})
		assert.ErrorIs(t, err, ErrForbidden)

		_, _, err = NewAccountService(store, 40).Provision(ctx, admin, ProvisionInput{
			ID: "boss", Email: "boss@example.com", Role: model.RoleAdmin,
		})
		require.NoError(t, err)
		o, err := svc.Update(ctx, auth.Principal{AccountID: "boss"}, key, OrderUpdate{Notes: ptr("checked")})
		require.NoError(t, err)
		assert.Equal(t, "checked", o.Notes)
	})

	t.Run("inactive admin is refused", func(t *testing.T) {
		store := newStore(model.StatusPending)
		retired := adminAccount("retired")
		retired.IsActive = false
		store.putAccount(retired)
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, auth.Principal{AccountID: "retired"}, key, OrderUpdate{Notes: ptr("hi")})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown caller is refused", func(t *testing.T) {
		store := newStore(model.StatusPending)
		svc := NewOrderService(store, nil, testOrdersConfig())

		_, err := svc.Update(ctx, auth.Principal{AccountID: "ghost"}, key, OrderUpdate{Notes: ptr("hi")})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestOrderService_FileLinks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(student("u1", 35))
	store.put(model.Order{
		ID: "o1", AccountID: "u1", Status: model.StatusPending, PageCount: 1, CreatedAt: testNow,
		Files: []model.FileRef{{Name: "a.pdf", FileID: "orders/o1/a.pdf"}},
	})
	files := new(storagemocks.MockFileStore)
	files.On("PresignGet", mock.Anything, "orders/o1/a.pdf", 15*time.Minute).Return("https://signed/a", nil)
	svc := NewOrderService(store, files, testOrdersConfig(), WithClock(fixedClock))

	key := model.OrderKey{AccountID: "u1", OrderID: "o1"}
	links, err := svc.FileLinks(ctx, auth.Principal{AccountID: "u1"}, key, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://signed/a", links[0].URL)
	assert.Equal(t, testNow.Add(15*time.Minute), links[0].ExpiresAt)

	_, err = svc.FileLinks(ctx, auth.Principal{AccountID: "u2"}, key, time.Minute)
	assert.ErrorIs(t, err, ErrForbidden)
}
