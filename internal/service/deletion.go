package service

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/repository"
)

// CleanupFailure is one external file that could not be removed.
type CleanupFailure struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// DeletionResult reports what a delete did. The ledger outcome is
// authoritative; cleanup is best-effort and only reported.
type DeletionResult struct {
	OrderID string `json:"order_id"`
	Deleted bool   `json:"deleted"`
	// AlreadyAbsent is set when there was no order to delete; nothing was credited.
	AlreadyAbsent   bool             `json:"already_absent"`
	PagesCredited   int              `json:"pages_credited"`
	CleanupComplete bool             `json:"cleanup_complete"`
	CleanupFailures []CleanupFailure `json:"cleanup_failures,omitempty"`
	Account         *model.Account   `json:"account,omitempty"`
}

func (s *orderService) Delete(ctx context.Context, p auth.Principal, key model.OrderKey) (*DeletionResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(
		attribute.String("account.id", key.AccountID),
		attribute.String("order.id", key.OrderID),
	))
	defer span.End()

	res, err := s.delete(ctx, p, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("order.pages_credited", res.PagesCredited),
		attribute.Bool("order.cleanup_complete", res.CleanupComplete),
	)
	return res, nil
}

func (s *orderService) delete(ctx context.Context, p auth.Principal, key model.OrderKey) (*DeletionResult, error) {
	if key.AccountID == "" || key.OrderID == "" {
		return nil, NewValidationError(nil,
			FieldError{Field: "account_id", Error: "account_id and order_id are required"},
		)
	}
	if err := authorizeOwner(ctx, s.store, p, key.AccountID); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("account_id", key.AccountID), zap.String("order_id", key.OrderID))

	acct, err := s.store.GetAccount(ctx, key.AccountID)
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrder(ctx, key)
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.metrics.OrderDeleted(true, 0)
		log.Info("order_delete_already_absent")
		return &DeletionResult{
			OrderID:         key.OrderID,
			AlreadyAbsent:   true,
			CleanupComplete: true,
			Account:         acct,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	failures := s.cleanup(ctx, log, order)

	out, err := s.store.DeleteOrder(ctx, key)
	if err != nil {
		log.Error("order_delete_failed", zap.Int("cleanup_failures", len(failures)), zap.Error(err))
		return nil, err
	}

	if out.Clamped {
		s.metrics.LedgerClamped()
		log.Warn("ledger_counter_clamped",
			zap.Int("pages_credited", out.PagesCredited),
			zap.Int("total_orders_placed", out.Account.TotalOrdersPlaced),
			zap.Int("total_pages_used", out.Account.TotalPagesUsed),
		)
	}
	s.metrics.OrderDeleted(!out.Deleted, out.PagesCredited)
	s.metrics.CleanupFailed(len(failures))

	res := &DeletionResult{
		OrderID:         key.OrderID,
		Deleted:         out.Deleted,
		AlreadyAbsent:   !out.Deleted,
		PagesCredited:   out.PagesCredited,
		CleanupComplete: len(failures) == 0,
		CleanupFailures: failures,
		Account:         out.Account,
	}
	log.Info("order_deleted",
		zap.Bool("deleted", res.Deleted),
		zap.Int("pages_credited", res.PagesCredited),
		zap.Int("page_quota", out.Account.PageQuota),
		zap.Bool("cleanup_complete", res.CleanupComplete),
		zap.String("by", p.AccountID),
	)
	return res, nil
}

// cleanup removes the order's external files. It first tries the container
// as a whole; if that removed nothing it deletes every known reference one by
// one. It never fails, it only returns what could not be removed.
func (s *orderService) cleanup(ctx context.Context, log *zap.Logger, o *model.Order) []CleanupFailure {
	var failures []CleanupFailure

	refs := make([]string, 0, len(o.Files))
	seen := make(map[string]bool, len(o.Files))
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	for _, f := range o.Files {
		add(f.FileID)
	}

	if o.ContainerID != "" {
		removed, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (int, error) {
			return s.files.DeleteContainer(ctx, o.ContainerID)
		})
		if err == nil && removed > 0 {
			log.Info("cleanup_container_removed", zap.String("container_id", o.ContainerID), zap.Int("removed", removed))
			return nil
		}
		if err != nil {
			log.Warn("cleanup_container_failed", zap.String("container_id", o.ContainerID), zap.Error(err))
		}

		listed, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) ([]string, error) {
			return s.files.ListContainer(ctx, o.ContainerID)
		})
		if err != nil {
			log.Warn("cleanup_list_failed", zap.String("container_id", o.ContainerID), zap.Error(err))
			failures = append(failures, CleanupFailure{FileID: o.ContainerID, Error: err.Error()})
		}
		for _, id := range listed {
			add(id)
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.CleanupConcurrency)
	for _, id := range refs {
		g.Go(func() error {
			_, err := withTimeout(ctx, s.cfg.FileOpTimeout, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.files.DeleteFile(ctx, id)
			})
			if err != nil {
				log.Warn("cleanup_file_failed", zap.String("file_id", id), zap.Error(err))
				mu.Lock()
				failures = append(failures, CleanupFailure{FileID: id, Error: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
