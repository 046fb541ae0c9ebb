package constants

import (
	"net/http"
	"time"
)

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// Default table names
	DefaultRunsTable         = "replay_runs"
	DefaultIterationsTable   = "replay_iterations"
	DefaultMeasurementsTable = "replay_measurements"

	// Table name suffixes when using prefixes
	RunsSuffix         = "_runs"
	IterationsSuffix   = "_iterations"
	MeasurementsSuffix = "_measurements"

	// DefaultSQLitePath is the run store file used when none is configured.
	DefaultSQLitePath = "apireplay.db"
)

// Time and Duration Constants
const (
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// HTTP client defaults
const (
	DefaultRequestTimeout      = 30 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConns        = 1000
	DefaultMaxIdleConnsPerHost = 100
	DefaultRetryDelay          = 200 * time.Millisecond
)

// Run defaults
const (
	DefaultWorkers    = 1
	DefaultIterations = 1

	// AbortPause is how long a worker in an open-ended run waits after an
	// aborted iteration before starting the next one.
	AbortPause = 100 * time.Millisecond
)

// Wait Configuration Constants
const (
	DefaultWaitTimeout  = 60 * time.Second
	DefaultWaitInterval = 2 * time.Second
	DefaultWaitStatus   = http.StatusOK
	DefaultWaitMethod   = http.MethodGet
)
