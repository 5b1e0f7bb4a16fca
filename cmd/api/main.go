package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"assignly/internal/app"
	"assignly/internal/config"
	handlers "assignly/internal/http/handler"
	"assignly/internal/http/middleware"
	"assignly/internal/logger"
	"assignly/internal/otel"
)

const (
	serviceName     = "assignly"
	shutdownTimeout = 15 * time.Second
	// Submissions carry several documents.
	bodyLimit = 64 << 20
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, serviceName, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close_failed", zap.Error(err))
		}
	}()

	promMiddleware, err := middleware.NewPrometheusMiddleware(a.Registry)
	if err != nil {
		return err
	}

	server := fiber.New(fiber.Config{
		AppName:      serviceName,
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    bodyLimit,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	server.Use(otelfiber.Middleware(otelfiber.WithServerName(serviceName)))
	server.Use(middleware.RequestID())
	server.Use(middleware.Logger(log))
	server.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(server, handlers.Deps{
		DB:       a.Health,
		Orders:   a.Orders,
		Accounts: a.Accounts,
		Advancer: a.Advancer,
		Tokens:   a.Tokens,
		Metrics:  promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store_backend", cfg.StoreBackend),
			zap.String("file_backend", cfg.FileBackend),
		)
		errCh <- server.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
