package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/repository"
)

// ProvisionInput is an admin request to create an account.
type ProvisionInput struct {
	ID        string     `json:"id" validate:"notblank,max=128"`
	Email     string     `json:"email" validate:"required,email"`
	Name      string     `json:"name" validate:"max=200"`
	Role      model.Role `json:"role" validate:"omitempty,oneof=student admin"`
	PageQuota *int       `json:"page_quota" validate:"omitempty,gte=0"`
}

// AccountListResult is the service-level DTO for paginated accounts.
type AccountListResult struct {
	Items []model.Account `json:"data"`
	Total int             `json:"total"`
}

// AccountService defines account use cases.
type AccountService interface {
	// Ensure returns the caller's account, creating it as an active student
	// with the default quota on first sight. Safe to call on every sign-in.
	Ensure(ctx context.Context, p auth.Principal) (*model.Account, error)

	// Provision creates an account for someone else. It is the only way to
	// create an admin. created is false when it already existed.
	Provision(ctx context.Context, caller auth.Principal, in ProvisionInput) (acct *model.Account, created bool, err error)

	Get(ctx context.Context, p auth.Principal, id string) (*model.Account, error)

	List(ctx context.Context, p auth.Principal, limit, offset int) (*AccountListResult, error)
}

type accountService struct {
	store        repository.AccountStore
	defaultQuota int
	maxTries     uint
	options
}

// NewAccountService constructs a new AccountService.
func NewAccountService(store repository.AccountStore, defaultQuota int, opts ...Option) AccountService {
	return &accountService{store: store, defaultQuota: defaultQuota, maxTries: 3, options: buildOptions(opts)}
}

func (s *accountService) Ensure(ctx context.Context, p auth.Principal) (*model.Account, error) {
	if strings.TrimSpace(p.AccountID) == "" {
		return nil, NewValidationError(nil, FieldError{Field: "sub", Error: "token subject is required"})
	}
	acct, created, err := s.ensure(ctx, &model.Account{
		ID:        p.AccountID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      model.RoleStudent,
		PageQuota: s.defaultQuota,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("account_created", zap.String("account_id", acct.ID), zap.Int("page_quota", acct.PageQuota))
	}
	return acct, nil
}

func (s *accountService) Provision(ctx context.Context, caller auth.Principal, in ProvisionInput) (*model.Account, bool, error) {
	if err := requireAdmin(ctx, s.store, caller); err != nil {
		return nil, false, err
	}
	if err := validateStruct(in); err != nil {
		return nil, false, err
	}
	quota := s.defaultQuota
	if in.PageQuota != nil {
		quota = *in.PageQuota
	}
	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	acct, created, err := s.ensure(ctx, &model.Account{
		ID:        strings.TrimSpace(in.ID),
		Email:     in.Email,
		Name:      in.Name,
		Role:      role,
		PageQuota: quota,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}
	s.log.Info("account_provisioned",
		zap.String("account_id", acct.ID),
		zap.Bool("created", created),
		zap.String("by", caller.AccountID),
	)
	return acct, created, nil
}

// ensure retries transient store failures with exponential backoff.
func (s *accountService) ensure(ctx context.Context, acct *model.Account) (*model.Account, bool, error) {
	type result struct {
		acct    *model.Account
		created bool
	}
	op := func() (result, error) {
		a, created, err := s.store.EnsureAccount(ctx, acct)
		if err != nil {
			if errors.Is(err, repository.ErrStorageUnavailable) {
				s.log.Warn("ensure_account_retry", zap.String("account_id", acct.ID), zap.Error(err))
				return result{}, err
			}
			return result{}, backoff.Permanent(err)
		}
		return result{acct: a, created: created}, nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	r, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(s.maxTries))
	if err != nil {
		return nil, false, err
	}
	return r.acct, r.created, nil
}

func (s *accountService) Get(ctx context.Context, p auth.Principal, id string) (*model.Account, error) {
	if err := authorizeOwner(ctx, s.store, p, id); err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, id)
}

func (s *accountService) List(ctx context.Context, p auth.Principal, limit, offset int) (*AccountListResult, error) {
	if err := requireAdmin(ctx, s.store, p); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.store.ListAccounts(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &AccountListResult{Items: res.Items, Total: res.Total}, nil
}
