package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"assignly/internal/config"
)

// applicationName tags assignly sessions in pg_stat_activity.
const applicationName = "assignly"

const pingTimeout = 5 * time.Second

// ErrIncompleteConfig reports a DatabaseConfig that cannot address a server.
var ErrIncompleteConfig = errors.New("database config incomplete")

var (
	sqlOpen = sql.Open

	registerOnce   sync.Once
	tracedDriver   string
	registerDriver = func() (string, error) {
		return otelsql.Register("pgx",
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSQLCommenter(true),
		)
	}
)

// BuildPostgresDSN renders c as a postgres:// URL for the pgx driver.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	if missing := missingFields(c); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrIncompleteConfig, strings.Join(missing, ", "))
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}
	params := url.Values{"application_name": {applicationName}}
	if c.SSLMode != "" {
		params.Set("sslmode", c.SSLMode)
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: params.Encode(),
	}
	return dsn.String(), nil
}

func missingFields(c config.DatabaseConfig) []string {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"DB_HOST", c.Host},
		{"DB_PORT", c.Port},
		{"DB_USER", c.User},
		{"DB_NAME", c.Name},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// NewPostgres returns a pool that reports every query as an otel span. The
// pool is pinged before it is handed out; a failed ping closes it again.
func NewPostgres(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driver, err := otelDriver()
	if err != nil {
		return nil, err
	}

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	sizePool(db, c)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// otelDriver registers the traced pgx wrapper once per process; database/sql
// panics on a second registration under the same name.
func otelDriver() (string, error) {
	var err error
	registerOnce.Do(func() { tracedDriver, err = registerDriver() })
	if err != nil {
		return "", fmt.Errorf("failed to register otelsql: %w", err)
	}
	if tracedDriver == "" {
		return "pgx", nil
	}
	return tracedDriver, nil
}

// sizePool applies the configured limits. Zero keeps the database/sql default.
func sizePool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}
