package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_accounts",
		SQL: `CREATE TABLE IF NOT EXISTS accounts (
  id                     TEXT        PRIMARY KEY,
  email                  TEXT        NOT NULL,
  name                   TEXT        NOT NULL DEFAULT '',
  role                   TEXT        NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'admin')),
  page_quota             INTEGER     NOT NULL DEFAULT 0 CHECK (page_quota >= 0),
  total_orders_placed    INTEGER     NOT NULL DEFAULT 0 CHECK (total_orders_placed >= 0),
  total_pages_used       INTEGER     NOT NULL DEFAULT 0 CHECK (total_pages_used >= 0),
  is_active              BOOLEAN     NOT NULL DEFAULT TRUE,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
  quota_last_replenished TIMESTAMPTZ
);`,
	},
	{
		Name: "create_table_orders",
		SQL: `CREATE TABLE IF NOT EXISTS orders (
  id                 TEXT             NOT NULL,
  account_id         TEXT             NOT NULL REFERENCES accounts (id),
  account_email      TEXT             NOT NULL DEFAULT '',
  title              TEXT             NOT NULL,
  order_type         TEXT             NOT NULL DEFAULT 'assignment',
  files              JSONB            NOT NULL DEFAULT '[]'::jsonb,
  page_count         INTEGER          NOT NULL CHECK (page_count > 0),
  status             TEXT             NOT NULL DEFAULT 'pending',
  container_id       TEXT             NOT NULL DEFAULT '',
  notes              TEXT             NOT NULL DEFAULT '',
  completed_file_url TEXT             NOT NULL DEFAULT '',
  created_at         TIMESTAMPTZ      NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ,
  started_at         TIMESTAMPTZ,
  completed_at       TIMESTAMPTZ,
  turnaround_hours   DOUBLE PRECISION,
  PRIMARY KEY (account_id, id)
);`,
	},
	{
		Name: "create_index_orders_status_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_status_created_at ON orders (status, created_at);`,
	},
	{
		Name: "create_index_orders_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);`,
	},
}

// EnsureMigrated checks if the 'orders' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.orders') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("reason", "schema already exists"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
