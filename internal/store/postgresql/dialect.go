package postgresql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/store/connector"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Placeholders returns n numbered placeholders starting at from, as a
// parenthesised tuple.
func (p *Dialect) Placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = p.GetPlaceholder(from + i)
	}
	return "(" + strings.Join(ps, ",") + ")"
}

// ConvertBoolToStorage converts bool to PostgreSQL storage format (native bool)
func (p *Dialect) ConvertBoolToStorage(b bool) interface{} {
	return b
}

// ConvertTimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertBoolFromStorage converts PostgreSQL bool storage to bool
func (p *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

// ConvertTimeFromStorage normalizes a TIMESTAMPTZ column to UTC.
func (p *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	if t, ok := val.(*time.Time); ok && t != nil {
		return t.UTC()
	}
	if t, ok := val.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// GetEnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) GetEnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, name TEXT NOT NULL, script TEXT NOT NULL, workers INTEGER NOT NULL, iterations INTEGER NOT NULL, duration_ms BIGINT NOT NULL, started_at TIMESTAMPTZ NOT NULL, finished_at TIMESTAMPTZ NULL, completed INTEGER NOT NULL DEFAULT 0, aborted INTEGER NOT NULL DEFAULT 0, cancelled INTEGER NOT NULL DEFAULT 0, requests INTEGER NOT NULL DEFAULT 0, failures INTEGER NOT NULL DEFAULT 0, exit_code INTEGER NOT NULL DEFAULT 0)", th.Runs),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, run_id TEXT NOT NULL, worker INTEGER NOT NULL, iteration INTEGER NOT NULL, state TEXT NOT NULL, started_at TIMESTAMPTZ NOT NULL, elapsed_us BIGINT NOT NULL, steps INTEGER NOT NULL, requests INTEGER NOT NULL, failures INTEGER NOT NULL, error TEXT NULL)", th.Iterations),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, run_id TEXT NOT NULL, worker INTEGER NOT NULL, iteration INTEGER NOT NULL, test_id INTEGER NOT NULL, label TEXT NOT NULL, method TEXT NOT NULL, url TEXT NOT NULL, started_at TIMESTAMPTZ NOT NULL, elapsed_us BIGINT NOT NULL, status INTEGER NOT NULL, bytes BIGINT NOT NULL, attempts INTEGER NOT NULL, ok BOOLEAN NOT NULL, error_class TEXT NOT NULL, error TEXT NULL)", th.Measurements),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_run_idx ON %s(run_id)", th.Measurements, th.Measurements),
	}
}

// GetDriverName returns the driver name for logging
func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
