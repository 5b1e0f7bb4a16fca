package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"assignly/internal/model"
	"assignly/internal/repository"
)

// AdvanceReport summarises one advancer run.
type AdvanceReport struct {
	Scanned  int `json:"scanned"`
	Advanced int `json:"advanced"`
	// Skipped counts orders that left pending between the scan and the update.
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
	Cutoff  time.Time `json:"cutoff"`
}

// Advancer moves pending orders older than a threshold to in_progress.
// It never touches quotas. Overlapping runs are safe because every update
// is conditional on the order still being pending.
type Advancer struct {
	store     repository.OrderStore
	threshold time.Duration
	options
}

// NewAdvancer returns an Advancer; a non-positive threshold defaults to 150 minutes.
func NewAdvancer(store repository.OrderStore, threshold time.Duration, opts ...Option) *Advancer {
	if threshold <= 0 {
		threshold = 150 * time.Minute
	}
	return &Advancer{store: store, threshold: threshold, options: buildOptions(opts)}
}

// Run performs one pass. Only a failure to list candidates fails the run;
// per-order failures are logged, counted and skipped.
func (a *Advancer) Run(ctx context.Context) (AdvanceReport, error) {
	ctx, span := tracer.Start(ctx, "Advancer.Run")
	defer span.End()

	now := a.now().UTC()
	report := AdvanceReport{Cutoff: now.Add(-a.threshold)}

	keys, err := a.store.ListPendingBefore(ctx, report.Cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.Error("advance_scan_failed", zap.Error(err))
		return report, fmt.Errorf("list pending orders: %w", err)
	}
	report.Scanned = len(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			a.log.Warn("advance_interrupted", zap.Int("remaining", report.Scanned-report.Advanced-report.Skipped-report.Failed))
			break
		}
		ok, err := a.store.AdvanceStatus(ctx, key, model.StatusPending, model.StatusInProgress, now)
		switch {
		case err != nil:
			report.Failed++
			a.metrics.Advance("failed")
			a.log.Error("advance_order_failed",
				zap.String("account_id", key.AccountID),
				zap.String("order_id", key.OrderID),
				zap.Error(err),
			)
		case ok:
			report.Advanced++
			a.metrics.Advance("advanced")
			a.log.Info("order_advanced",
				zap.String("account_id", key.AccountID),
				zap.String("order_id", key.OrderID),
				zap.String("status", string(model.StatusInProgress)),
			)
		default:
			report.Skipped++
			a.metrics.Advance("skipped")
		}
	}

	span.SetAttributes(
		attribute.Int("advance.scanned", report.Scanned),
		attribute.Int("advance.advanced", report.Advanced),
		attribute.Int("advance.failed", report.Failed),
	)
	a.log.Info("advance_run_finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("advanced", report.Advanced),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Time("cutoff", report.Cutoff),
	)
	return report, nil
}
