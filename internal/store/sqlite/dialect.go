package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/store/connector"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns SQLite-style placeholders (?)
func (s *Dialect) GetPlaceholder() string {
	return "?"
}

// ConvertBoolToStorage converts bool to SQLite storage format (integer 0/1)
func (s *Dialect) ConvertBoolToStorage(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

// ConvertTimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (s *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConvertBoolFromStorage converts SQLite integer storage to bool
func (s *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	if i, ok := val.(int64); ok {
		return i != 0
	}
	if i, ok := val.(int); ok {
		return i != 0
	}
	return false
}

// ConvertTimeFromStorage parses an RFC3339Nano column. Unparseable values
// yield the zero time.
func (s *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	str, ok := val.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Connect opens the database with a single writer connection.
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)

	return db, nil
}

// GetEnsureStatements returns SQLite-specific table creation statements
func (s *Dialect) GetEnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, name TEXT NOT NULL, script TEXT NOT NULL, workers INTEGER NOT NULL, iterations INTEGER NOT NULL, duration_ms INTEGER NOT NULL, started_at TEXT NOT NULL, finished_at TEXT NULL, completed INTEGER NOT NULL DEFAULT 0, aborted INTEGER NOT NULL DEFAULT 0, cancelled INTEGER NOT NULL DEFAULT 0, requests INTEGER NOT NULL DEFAULT 0, failures INTEGER NOT NULL DEFAULT 0, exit_code INTEGER NOT NULL DEFAULT 0)", th.Runs),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, run_id TEXT NOT NULL, worker INTEGER NOT NULL, iteration INTEGER NOT NULL, state TEXT NOT NULL, started_at TEXT NOT NULL, elapsed_us INTEGER NOT NULL, steps INTEGER NOT NULL, requests INTEGER NOT NULL, failures INTEGER NOT NULL, error TEXT NULL)", th.Iterations),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, run_id TEXT NOT NULL, worker INTEGER NOT NULL, iteration INTEGER NOT NULL, test_id INTEGER NOT NULL, label TEXT NOT NULL, method TEXT NOT NULL, url TEXT NOT NULL, started_at TEXT NOT NULL, elapsed_us INTEGER NOT NULL, status INTEGER NOT NULL, bytes INTEGER NOT NULL, attempts INTEGER NOT NULL, ok INTEGER NOT NULL, error_class TEXT NOT NULL, error TEXT NULL)", th.Measurements),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_run_idx ON %s(run_id)", th.Measurements, th.Measurements),
	}
}

// GetDriverName returns the driver name for logging
func (s *Dialect) GetDriverName() string {
	return "sqlite"
}
