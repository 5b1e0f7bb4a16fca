// Command status-advancer is the Cloud Function that promotes stale pending
// orders. AdvanceOrderStatus is triggered by Cloud Scheduler through Pub/Sub;
// ManualAdvanceOrderStatus is the admin-only HTTP trigger.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"assignly/internal/app"
	"assignly/internal/auth"
	"assignly/internal/config"
	"assignly/internal/logger"
	"assignly/internal/metrics"
	"assignly/internal/model"
	"assignly/internal/repository"
	"assignly/internal/service"
)

const pushJob = "status_advancer"

type advancer interface {
	Run(ctx context.Context) (service.AdvanceReport, error)
}

type verifier interface {
	Verify(raw string) (auth.Principal, error)
}

type accountReader interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

type deps struct {
	log      *zap.Logger
	advancer advancer
	tokens   verifier
	accounts accountReader
	// pusher sends the run's counters to a Pushgateway; nil when none is configured.
	pusher *push.Pusher
}

var (
	once    sync.Once
	shared  *deps
	initErr error
)

func init() {
	functions.CloudEvent("AdvanceOrderStatus", advanceOrderStatus)
	functions.HTTP("ManualAdvanceOrderStatus", manualAdvanceOrderStatus)
}

// main starts a local functions server when PORT is set; the Cloud Functions
// runtime only uses the registrations made in init.
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		return
	}
	if err := funcframework.Start(port); err != nil {
		panic(err)
	}
}

// setup builds the shared clients once per instance. The store connection is
// kept for the lifetime of the instance.
func setup() (*deps, error) {
	once.Do(func() {
		cfg := config.Load()
		log, err := logger.New(cfg.Log)
		if err != nil {
			initErr = err
			return
		}
		store, _, _, err := app.OpenStore(context.Background(), cfg, log)
		if err != nil {
			log.Error("function_init_failed", zap.Error(err))
			initErr = err
			return
		}
		tokens, err := auth.NewTokens(cfg.Auth)
		if err != nil {
			log.Error("function_init_failed", zap.Error(err))
			initErr = err
			return
		}
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			log.Error("function_init_failed", zap.Error(err))
			initErr = err
			return
		}
		shared = &deps{
			log:      log,
			advancer: service.NewAdvancer(store, cfg.Orders.AdvanceThreshold, service.WithLogger(log), service.WithMetrics(m)),
			tokens:   tokens,
			accounts: store,
			pusher:   newPusher(cfg.PushgatewayURL, reg),
		}
	})
	return shared, initErr
}

func advanceOrderStatus(ctx context.Context, e cloudevents.Event) error {
	d, err := setup()
	if err != nil {
		return err
	}
	return d.scheduled(ctx, e)
}

func manualAdvanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	d, err := setup()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "function not initialised"))
		return
	}
	d.manual(w, r)
}

// scheduled runs one pass. Returning the error marks the invocation failed
// so the platform records it; the next tick retries anyway.
func (d *deps) scheduled(ctx context.Context, e cloudevents.Event) error {
	log := d.log.With(zap.String("trigger", "schedule"), zap.String("event_id", e.ID()))
	report, err := d.advancer.Run(ctx)
	d.pushMetrics(ctx)
	if err != nil {
		log.Error("scheduled_advance_failed", zap.Error(err))
		return err
	}
	log.Info("scheduled_advance_done", zap.Int("advanced", report.Advanced), zap.Int("failed", report.Failed))
	return nil
}

func (d *deps) manual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", "method not allowed"))
		return
	}
	p, err := d.tokens.Verify(auth.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		code := "UNAUTHORIZED"
		if errors.Is(err, auth.ErrMissingToken) {
			code = "MISSING_TOKEN"
		}
		writeJSON(w, http.StatusUnauthorized, errorBody(code, "authentication required"))
		return
	}
	acct, err := d.accounts.GetAccount(r.Context(), p.AccountID)
	switch {
	case errors.Is(err, repository.ErrStorageUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("STORE_UNAVAILABLE", "could not load account"))
		return
	case err != nil && !errors.Is(err, repository.ErrAccountNotFound):
		d.log.Error("manual_advance_account_lookup_failed", zap.String("by", p.AccountID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "internal server error"))
		return
	case err != nil || !acct.IsActive || !acct.IsAdmin():
		writeJSON(w, http.StatusForbidden, errorBody("FORBIDDEN", "admin role required"))
		return
	}

	report, err := d.advancer.Run(r.Context())
	d.pushMetrics(r.Context())
	if err != nil {
		d.log.Error("manual_advance_failed", zap.String("by", p.AccountID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("STORE_UNAVAILABLE", "could not list pending orders"))
		return
	}
	d.log.Info("manual_advance_done", zap.String("by", p.AccountID), zap.Int("advanced", report.Advanced))
	writeJSON(w, http.StatusOK, report)
}

func newPusher(url string, g prometheus.Gatherer) *push.Pusher {
	if url == "" {
		return nil
	}
	return push.New(url, pushJob).Gatherer(g)
}

// pushMetrics is best-effort; a failed push never fails the run.
func (d *deps) pushMetrics(ctx context.Context) {
	if d.pusher == nil {
		return
	}
	if err := d.pusher.PushContext(ctx); err != nil {
		d.log.Warn("metrics_push_failed", zap.Error(err))
	}
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": message}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
