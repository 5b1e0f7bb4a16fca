// Package app wires configuration into the concrete stores and services
// shared by the API server and the status-advancer function.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"assignly/internal/auth"
	"assignly/internal/config"
	"assignly/internal/database"
	"assignly/internal/database/migration"
	"assignly/internal/metrics"
	"assignly/internal/repository"
	"assignly/internal/repository/firestore"
	"assignly/internal/repository/postgres"
	"assignly/internal/service"
	"assignly/internal/storage"
)

// Pinger reports whether the document store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// App holds the process-wide collaborators.
type App struct {
	Config   *config.AppConfig
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    repository.Store
	Health   Pinger
	Files    storage.FileStore
	Tokens   *auth.Tokens
	Orders   service.OrderService
	Accounts service.AccountService
	Advancer *service.Advancer

	closers []func() error
}

// New connects every backend selected by cfg. On error everything opened so
// far is closed again.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.Registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.Metrics = m

	store, health, closeStore, err := OpenStore(ctx, a.Config, a.Log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeStore)
	a.Store, a.Health = store, health

	files, closeFiles, err := OpenFiles(ctx, a.Config)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeFiles)
	a.Files = files

	tokens, err := auth.NewTokens(a.Config.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	a.Tokens = tokens

	opts := []service.Option{service.WithLogger(a.Log), service.WithMetrics(a.Metrics)}
	a.Orders = service.NewOrderService(a.Store, a.Files, a.Config.Orders, opts...)
	a.Accounts = service.NewAccountService(a.Store, a.Config.Orders.DefaultQuota, opts...)
	a.Advancer = service.NewAdvancer(a.Store, a.Config.Orders.AdvanceThreshold, opts...)
	return nil
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the document store selected by STORE_BACKEND. The Postgres
// schema is migrated before the store is returned.
func OpenStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (repository.Store, Pinger, func() error, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return postgres.NewStore(db), db, db.Close, nil

	case config.StoreBackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore)
		if err != nil {
			return nil, nil, nil, err
		}
		store := firestore.NewStore(client, cfg.Firestore)
		return store, store, client.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// OpenFiles opens the file storage selected by FILE_BACKEND.
func OpenFiles(ctx context.Context, cfg *config.AppConfig) (storage.FileStore, func() error, error) {
	switch cfg.FileBackend {
	case config.FileBackendMinIO:
		m, err := storage.NewMinIO(ctx, cfg.MinIO, cfg.Orders.ContainerPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize object storage: %w", err)
		}
		return m, func() error { return nil }, nil

	case config.FileBackendGCS:
		g, err := storage.NewGCS(ctx, cfg.GCS, cfg.Orders.ContainerPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize object storage: %w", err)
		}
		return g, g.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown FILE_BACKEND %q", cfg.FileBackend)
	}
}
