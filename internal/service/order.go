package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"assignly/internal/auth"
	"assignly/internal/config"
	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/pages"
	"assignly/internal/repository"
	"assignly/internal/storage"
)

// PlaceOrderInput is the validated request to create an order whose files are
// already stored.
type PlaceOrderInput struct {
	// OrderID is generated when empty.
	OrderID      string          `json:"order_id" validate:"omitempty,max=128,excludesall=/"`
	AccountID    string          `json:"account_id" validate:"required"`
	AccountEmail string          `json:"account_email" validate:"omitempty,email"`
	Title        string          `json:"title" validate:"notblank,max=200"`
	OrderType    model.OrderType `json:"order_type" validate:"omitempty,oneof=assignment practical"`
	Files        []model.FileRef `json:"files" validate:"required,min=1,dive"`
	PageCount    int             `json:"page_count" validate:"gt=0"`
	ContainerID  string          `json:"container_id"`
	Notes        string          `json:"notes" validate:"max=2000"`
}

// Upload is one raw file of a submission.
type Upload struct {
	Name        string        `json:"name" validate:"notblank"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Content     io.ReadSeeker `json:"-" validate:"required"`
}

// SubmitOrderInput is a submission with raw files.
type SubmitOrderInput struct {
	Title     string          `json:"title" validate:"notblank,max=200"`
	OrderType model.OrderType `json:"order_type" validate:"omitempty,oneof=assignment practical"`
	Notes     string          `json:"notes" validate:"max=2000"`
	Files     []Upload        `json:"files" validate:"required,min=1,dive"`
}

// PlacedOrder is the committed order and the account balance after the debit.
type PlacedOrder struct {
	Order   *model.Order   `json:"order"`
	Account *model.Account `json:"account"`
}

// ListOrdersQuery filters order listings.
type ListOrdersQuery struct {
	AccountID string
	Status    string
	Limit     int
	Offset    int
}

// OrderListResult is the service-level DTO for paginated orders.
type OrderListResult struct {
	Items []model.Order `json:"data"`
	Total int           `json:"total"`
}

// OrderUpdate is an admin change to an order. Nil fields are left unchanged.
type OrderUpdate struct {
	Status           *string `json:"status"`
	Notes            *string `json:"notes" validate:"omitempty,max=2000"`
	CompletedFileURL *string `json:"completed_file_url" validate:"omitempty,url"`
}

// FileLink is a time-limited download link for one order file.
type FileLink struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderService defines the order lifecycle use cases.
type OrderService interface {
	// Place validates the input and atomically creates a pending order while
	// debiting its page count from the owning account.
	Place(ctx context.Context, in PlaceOrderInput) (*PlacedOrder, error)

	// Submit estimates pages, uploads the files to a new container and places the order.
	Submit(ctx context.Context, p auth.Principal, in SubmitOrderInput) (*PlacedOrder, error)

	Get(ctx context.Context, p auth.Principal, key model.OrderKey) (*model.Order, error)

	List(ctx context.Context, p auth.Principal, q ListOrdersQuery) (*OrderListResult, error)

	// Delete removes an order, restores its pages and cleans up its files best-effort.
	Delete(ctx context.Context, p auth.Principal, key model.OrderKey) (*DeletionResult, error)

	// Update applies an admin change. Status moves only forward.
	Update(ctx context.Context, p auth.Principal, key model.OrderKey, upd OrderUpdate) (*model.Order, error)

	FileLinks(ctx context.Context, p auth.Principal, key model.OrderKey, expiry time.Duration) ([]FileLink, error)
}

type orderService struct {
	store repository.Store
	files storage.FileStore
	cfg   config.OrdersConfig
	options
}

// NewOrderService constructs a new OrderService.
func NewOrderService(store repository.Store, files storage.FileStore, cfg config.OrdersConfig, opts ...Option) OrderService {
	if cfg.FileOpTimeout <= 0 {
		cfg.FileOpTimeout = 10 * time.Second
	}
	if cfg.CleanupConcurrency <= 0 {
		cfg.CleanupConcurrency = 5
	}
	return &orderService{store: store, files: files, cfg: cfg, options: buildOptions(opts)}
}

func (s *orderService) Place(ctx context.Context, in PlaceOrderInput) (*PlacedOrder, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Place", trace.WithAttributes(
		attribute.String("account.id", in.AccountID),
		attribute.Int("order.page_count", in.PageCount),
	))
	defer span.End()

	out, err := s.place(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (s *orderService) place(ctx context.Context, in PlaceOrderInput) (*PlacedOrder, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.PageCount < len(in.Files) {
		return nil, NewValidationError(nil, FieldError{
			Field: "page_count",
			Error: fmt.Sprintf("page_count must be at least the number of files (%d)", len(in.Files)),
		})
	}

	acct, err := s.store.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, ledger.ErrAccountInactive
	}
	if acct.PageQuota < in.PageCount {
		return nil, fmt.Errorf("%w: %d pages requested, %d available", ledger.ErrInsufficientQuota, in.PageCount, acct.PageQuota)
	}

	orderType := in.OrderType
	if orderType == "" {
		orderType = model.OrderTypeAssignment
	}
	id := in.OrderID
	if id == "" {
		id = uuid.NewString()
	}
	email := in.AccountEmail
	if email == "" {
		email = acct.Email
	}
	order := &model.Order{
		ID:           id,
		AccountID:    in.AccountID,
		AccountEmail: email,
		Title:        strings.TrimSpace(in.Title),
		OrderType:    orderType,
		Files:        in.Files,
		PageCount:    in.PageCount,
		Status:       model.StatusPending,
		ContainerID:  in.ContainerID,
		Notes:        in.Notes,
		CreatedAt:    s.now().UTC(),
	}

	after, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	s.metrics.OrderPlaced(order.PageCount)
	s.log.Info("order_placed",
		zap.String("account_id", order.AccountID),
		zap.String("order_id", order.ID),
		zap.Int("page_count", order.PageCount),
		zap.Int("page_quota", after.PageQuota),
	)
	return &PlacedOrder{Order: order, Account: after}, nil
}

func (s *orderService) Submit(ctx context.Context, p auth.Principal, in SubmitOrderInput) (*PlacedOrder, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Submit", trace.WithAttributes(
		attribute.String("account.id", p.AccountID),
		attribute.Int("order.files", len(in.Files)),
	))
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("account_id", p.AccountID))

	counts := make([]int, len(in.Files))
	for i, f := range in.Files {
		n, err := pages.Estimate(f.Content, f.Name, f.ContentType)
		if err != nil {
			log.Warn("page_estimate_failed", zap.String("file", f.Name), zap.Error(err))
		}
		counts[i] = n
	}
	total := pages.Total(counts)

	acct, err := s.store.GetAccount(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, ledger.ErrAccountInactive
	}
	if acct.PageQuota < total {
		return nil, fmt.Errorf("%w: %d pages requested, %d available", ledger.ErrInsufficientQuota, total, acct.PageQuota)
	}

	orderID := uuid.NewString()
	container, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (string, error) {
		return s.files.CreateContainer(ctx, orderID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", ErrUploadFailed, err)
	}

	refs := make([]model.FileRef, 0, len(in.Files))
	for _, f := range in.Files {
		ref, err := s.upload(ctx, container, f)
		if err != nil {
			log.Error("file_upload_failed", zap.String("file", f.Name), zap.Error(err))
			s.discardContainer(ctx, container, refs)
			return nil, fmt.Errorf("%w: %s: %v", ErrUploadFailed, f.Name, err)
		}
		refs = append(refs, ref)
	}

	placed, err := s.Place(ctx, PlaceOrderInput{
		OrderID:      orderID,
		AccountID:    p.AccountID,
		AccountEmail: p.Email,
		Title:        in.Title,
		OrderType:    in.OrderType,
		Files:        refs,
		PageCount:    total,
		ContainerID:  container,
		Notes:        in.Notes,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStorageUnavailable) {
			// The write may still have committed; keep the files.
			log.Warn("order_outcome_unknown_files_kept",
				zap.String("order_id", orderID),
				zap.String("container_id", container),
				zap.Error(err),
			)
		} else {
			s.discardContainer(ctx, container, refs)
		}
		return nil, err
	}
	return placed, nil
}

// upload sends one file with a per-attempt timeout and a single retry.
func (s *orderService) upload(ctx context.Context, container string, f Upload) (model.FileRef, error) {
	op := func() (model.FileRef, error) {
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			return model.FileRef{}, backoff.Permanent(err)
		}
		return withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (model.FileRef, error) {
			return s.files.Upload(ctx, container, f.Name, f.Content, storage.PutObjectOptions{
				Size:        f.Size,
				ContentType: f.ContentType,
				Metadata:    map[string]string{"original-filename": f.Name},
			})
		})
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(2))
}

// discardContainer removes files of a submission that did not become an order.
func (s *orderService) discardContainer(ctx context.Context, container string, refs []model.FileRef) {
	n, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (int, error) {
		return s.files.DeleteContainer(ctx, container)
	})
	if err != nil {
		s.log.Warn("discard_container_failed",
			zap.String("container_id", container),
			zap.Int("files", len(refs)),
			zap.Error(err),
		)
		return
	}
	s.log.Info("container_discarded", zap.String("container_id", container), zap.Int("removed", n))
}

// withTimeout runs one file operation under its own deadline.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (s *orderService) Get(ctx context.Context, p auth.Principal, key model.OrderKey) (*model.Order, error) {
	if err := authorizeOwner(ctx, s.store, p, key.AccountID); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, key)
}

// List returns paginated orders. Students only ever see their own.
func (s *orderService) List(ctx context.Context, p auth.Principal, q ListOrdersQuery) (*OrderListResult, error) {
	if q.AccountID != p.AccountID {
		admin, err := isAdmin(ctx, s.store, p)
		if err != nil {
			return nil, err
		}
		if !admin {
			if q.AccountID != "" {
				return nil, ErrForbidden
			}
			q.AccountID = p.AccountID
		}
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	f := repository.OrderFilter{AccountID: q.AccountID}
	if q.Status != "" {
		st, err := model.ParseStatus(q.Status)
		if err != nil {
			return nil, NewValidationError(err, FieldError{Field: "status", Error: err.Error()})
		}
		f.Status = st
	}

	res, err := s.store.ListOrders(ctx, f, repository.PageQuery{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *orderService) Update(ctx context.Context, p auth.Principal, key model.OrderKey, upd OrderUpdate) (*model.Order, error) {
	if err := requireAdmin(ctx, s.store, p); err != nil {
		return nil, err
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	var target model.Status
	if upd.Status != nil {
		st, err := model.ParseStatus(*upd.Status)
		if err != nil {
			return nil, NewValidationError(err, FieldError{Field: "status", Error: err.Error()})
		}
		target = st
	}

	now := s.now().UTC()
	o, err := s.store.UpdateOrder(ctx, key, func(o *model.Order) error {
		if target != "" {
			if err := o.ApplyStatus(target, now); err != nil {
				return fmt.Errorf("%w: %s to %s", err, o.Status, target)
			}
		}
		if upd.Notes != nil {
			o.Notes = *upd.Notes
		}
		if upd.CompletedFileURL != nil {
			o.CompletedFileURL = *upd.CompletedFileURL
		}
		o.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order_updated",
		zap.String("account_id", key.AccountID),
		zap.String("order_id", key.OrderID),
		zap.String("status", string(o.Status)),
		zap.String("by", p.AccountID),
	)
	return o, nil
}

func (s *orderService) FileLinks(ctx context.Context, p auth.Principal, key model.OrderKey, expiry time.Duration) ([]FileLink, error) {
	o, err := s.Get(ctx, p, key)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(expiry).UTC()
	links := make([]FileLink, 0, len(o.Files))
	for _, f := range o.Files {
		u, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (string, error) {
			return s.files.PresignGet(ctx, f.FileID, expiry)
		})
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", f.FileID, err)
		}
		links = append(links, FileLink{Name: f.Name, URL: u, ExpiresAt: expires})
	}
	return links, nil
}

// isAdmin reports whether the caller's stored account is an active admin.
// The token only identifies the caller; it never grants a role.
func isAdmin(ctx context.Context, accounts repository.AccountStore, p auth.Principal) (bool, error) {
	if p.AccountID == "" {
		return false, nil
	}
	acct, err := accounts.GetAccount(ctx, p.AccountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.IsActive && acct.IsAdmin(), nil
}

func requireAdmin(ctx context.Context, accounts repository.AccountStore, p auth.Principal) error {
	ok, err := isAdmin(ctx, accounts, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// authorizeOwner lets the owner through without a lookup; anyone else must be an admin.
func authorizeOwner(ctx context.Context, accounts repository.AccountStore, p auth.Principal, accountID string) error {
	if p.AccountID != "" && p.AccountID == accountID {
		return nil
	}
	return requireAdmin(ctx, accounts, p)
}
