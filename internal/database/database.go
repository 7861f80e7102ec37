package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/config"
)

// ErrNotConfigured is returned by every operation on a handle without a url.
var ErrNotConfigured = errors.New("database not configured: set [database] url in tempo.conf")

// DB wraps a sqlx handle. The zero value is an unconfigured handle.
type DB struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open creates a handle for settings.URL. An empty url yields an unconfigured
// handle and no error. Connections are established lazily on first use.
func Open(settings config.DatabaseSettings, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.URL == "" {
		logger.Debug("no database url configured")
		return &DB{logger: logger}, nil
	}

	driver, err := driverFor(settings.URL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, settings.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	logger.Info("database handle created", zap.String("driver", driver), zap.String("url", redact(settings.URL)))
	return &DB{db: db, driver: driver, logger: logger}, nil
}

// NewWithDB wraps an existing handle (used with sqlmock in tests).
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{db: db, driver: db.DriverName(), logger: logger}
}

func driverFor(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}

// redact hides the password of a database url for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}

// IsConfigured reports whether a url was configured.
func (d *DB) IsConfigured() bool {
	return d != nil && d.db != nil
}

// Driver returns the sql driver name, or "" when unconfigured.
func (d *DB) Driver() string {
	if !d.IsConfigured() {
		return ""
	}
	return d.driver
}

// SQLX returns the underlying handle.
func (d *DB) SQLX() (*sqlx.DB, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	return d.db, nil
}

// Conn checks out a dedicated connection. Callers must Close it.
func (d *DB) Conn(ctx context.Context) (*sqlx.Conn, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	return d.db.Connx(ctx)
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if !d.IsConfigured() {
		return ErrNotConfigured
	}
	return d.db.PingContext(ctx)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	return d.db.ExecContext(ctx, query, args...)
}

// QueryMaps runs query and returns every row as a column -> value map.
func (d *DB) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return scanMaps(rows)
}

// NamedQueryMaps runs a query with :name parameters bound from arg.
func (d *DB) NamedQueryMaps(ctx context.Context, query string, arg map[string]any) ([]map[string]any, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	rows, err := d.db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return scanMaps(rows)
}

func scanMaps(rows *sqlx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close releases the pool. Closing an unconfigured handle is a no-op.
func (d *DB) Close() error {
	if !d.IsConfigured() {
		return nil
	}
	return d.db.Close()
}
