package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/retry"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store/connector"
	"github.com/loykin/apireplay/internal/store/postgresql"
	"github.com/loykin/apireplay/internal/store/sqlite"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps run history: one row per run, per iteration and per measured
// request. It implements sink.Writer so a run can stream into it.
type Store struct {
	DB        *sql.DB
	connector connector.Connector
	tn        TableNames
	retry     *retry.Config
	driver    string
}

// Connect opens the configured backend and creates missing tables.
func (s *Store) Connect(cfg Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var c connector.Connector
	switch driver {
	case "", DriverSqlite, "sqlite3":
		driver = DriverSqlite
		c = sqlite.NewStore()
		if cfg.DriverConfig == nil {
			cfg.DriverConfig = &SqliteConfig{Path: constants.DefaultSQLitePath}
		}
	case DriverPostgresql, "postgres", "pg":
		driver = DriverPostgresql
		c = postgresql.NewStore()
		if cfg.DriverConfig == nil {
			return fmt.Errorf("store: postgresql requires driver config")
		}
	default:
		return fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	tn := cfg.tableNames()
	for _, n := range []string{tn.Runs, tn.Iterations, tn.Measurements} {
		if !tableNameRe.MatchString(n) {
			return fmt.Errorf("store: invalid table name %q", n)
		}
	}

	if err := c.Load(cfg.DriverConfig.ToMap()); err != nil {
		return fmt.Errorf("store: load %s config: %w", driver, err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	db, err := c.Connect()
	if err != nil {
		return err
	}
	if err := c.Ensure(tn); err != nil {
		_ = c.Close()
		return err
	}

	s.DB = db
	s.connector = c
	s.tn = tn
	s.driver = driver
	if s.retry == nil {
		s.retry = retry.DefaultRetryConfig()
	}
	return nil
}

// Open is Connect on a new Store.
func Open(cfg Config) (*Store, error) {
	s := &Store{}
	if err := s.Connect(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRetryConfig replaces the retry policy used for writes.
func (s *Store) SetRetryConfig(c *retry.Config) { s.retry = c }

// Driver returns the normalized driver name.
func (s *Store) Driver() string { return s.driver }

// TableNames returns the tables in use.
func (s *Store) TableNames() TableNames { return s.tn }

func (s *Store) Close() error {
	if s == nil || s.connector == nil {
		return nil
	}
	return s.connector.Close()
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	Name       string
	Script     string
	Workers    int
	Iterations int
	Duration   time.Duration
}

// CreateRun records a new run and returns its id.
func (s *Store) CreateRun(ctx context.Context, info RunInfo) (string, error) {
	run := Run{
		ID:         uuid.NewString(),
		Name:       info.Name,
		Script:     info.Script,
		Workers:    info.Workers,
		Iterations: info.Iterations,
		Duration:   info.Duration,
		StartedAt:  time.Now().UTC(),
	}
	err := retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.CreateRun(ctx, s.tn, run)
	})
	if err != nil {
		return "", err
	}
	common.GetLogger().WithStore(s.driver).Info("run started", "run_id", run.ID, "name", run.Name)
	return run.ID, nil
}

// FinishRun stores the run's final tallies.
func (s *Store) FinishRun(ctx context.Context, id string, sum Summary) error {
	now := time.Now().UTC()
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.FinishRun(ctx, s.tn, id, now, sum)
	})
}

// SaveMeasurements writes a batch of measurements of run runID.
func (s *Store) SaveMeasurements(ctx context.Context, runID string, ms []sink.Measurement) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.SaveMeasurements(ctx, s.tn, runID, ms)
	})
}

// SaveIteration writes one iteration outcome of run runID.
func (s *Store) SaveIteration(ctx context.Context, runID string, it sink.Iteration) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.SaveIteration(ctx, s.tn, runID, it)
	})
}

// ListRuns returns runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return s.connector.ListRuns(ctx, s.tn)
}

// ListMeasurements returns the measurements of run runID in recording order.
func (s *Store) ListMeasurements(ctx context.Context, runID string) ([]sink.Measurement, error) {
	return s.connector.ListMeasurements(ctx, s.tn, runID)
}

var _ sink.Writer = (*Store)(nil)
