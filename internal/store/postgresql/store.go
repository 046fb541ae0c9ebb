package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store/connector"
)

// rowsPerInsert keeps multi-row inserts under PostgreSQL's 65535 bind
// parameter limit.
const rowsPerInsert = 500

const measurementColumns = "run_id, worker, iteration, test_id, label, method, url, started_at, elapsed_us, status, bytes, attempts, ok, error_class, error"

type Store struct {
	db      *sql.DB
	dialect *Dialect
	DSN     string
}

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load loads configuration into the PostgreSQL store
func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		p.DSN = dsn
	}
	return nil
}

// Connect establishes a connection to PostgreSQL
func (p *Store) Connect() (*sql.DB, error) {
	db, err := p.dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.db = db

	common.GetLogger().WithStore("postgresql").Info("PostgreSQL database connection established successfully")
	return db, nil
}

// Validate requires a DSN.
func (p *Store) Validate() error {
	if strings.TrimSpace(p.DSN) == "" {
		return errors.New("postgresql store: dsn or host is required")
	}
	return nil
}

// Close closes the database connection
func (p *Store) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ensure creates the necessary tables using PostgreSQL-specific schema
func (p *Store) Ensure(th connector.TableNames) error {
	logger := common.GetLogger().WithStore("postgresql")
	logger.Debug("ensuring PostgreSQL database schema", "tables", []string{th.Runs, th.Iterations, th.Measurements})

	for i, q := range p.dialect.GetEnsureStatements(th) {
		if _, err := p.db.Exec(q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "statement", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	logger.Info("PostgreSQL database schema ensured successfully")
	return nil
}

// CreateRun inserts the run row when a run starts.
func (p *Store) CreateRun(ctx context.Context, th connector.TableNames, run connector.Run) error {
	q := fmt.Sprintf("INSERT INTO %s(id, name, script, workers, iterations, duration_ms, started_at) VALUES%s",
		th.Runs, p.dialect.Placeholders(1, 7))
	_, err := p.db.ExecContext(ctx, q, run.ID, run.Name, run.Script, run.Workers, run.Iterations,
		run.Duration.Milliseconds(), p.dialect.ConvertTimeToStorage(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	common.GetLogger().WithStore("postgresql").Debug("run created", "run_id", run.ID)
	return nil
}

// FinishRun stores the final tallies of a run.
func (p *Store) FinishRun(ctx context.Context, th connector.TableNames, id string, finishedAt time.Time, sum connector.Summary) error {
	q := fmt.Sprintf("UPDATE %s SET finished_at = $1, completed = $2, aborted = $3, cancelled = $4, requests = $5, failures = $6, exit_code = $7 WHERE id = $8", th.Runs)
	res, err := p.db.ExecContext(ctx, q, p.dialect.ConvertTimeToStorage(finishedAt),
		sum.Completed, sum.Aborted, sum.Cancelled, sum.Requests, sum.Failures, sum.ExitCode, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: no such run", id)
	}
	return nil
}

// SaveMeasurements writes ms in one transaction using multi-row inserts.
func (p *Store) SaveMeasurements(ctx context.Context, th connector.TableNames, runID string, ms []sink.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin measurement batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ms); start += rowsPerInsert {
		end := start + rowsPerInsert
		if end > len(ms) {
			end = len(ms)
		}
		chunk := ms[start:end]
		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*15)
		for _, m := range chunk {
			values = append(values, p.dialect.Placeholders(len(args)+1, 15))
			args = append(args, runID, m.Worker, m.Iteration, m.TestID, m.Label, m.Method, m.URL,
				p.dialect.ConvertTimeToStorage(m.Start), m.Elapsed.Microseconds(), m.Status, m.Bytes,
				m.Attempts, p.dialect.ConvertBoolToStorage(m.OK), m.ErrorClass, nullString(m.Error))
		}
		q := fmt.Sprintf("INSERT INTO %s(%s) VALUES %s", th.Measurements, measurementColumns, strings.Join(values, ","))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("failed to insert %d measurements: %w", len(chunk), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit measurement batch: %w", err)
	}
	return nil
}

// SaveIteration records one finished iteration.
func (p *Store) SaveIteration(ctx context.Context, th connector.TableNames, runID string, it sink.Iteration) error {
	q := fmt.Sprintf("INSERT INTO %s(run_id, worker, iteration, state, started_at, elapsed_us, steps, requests, failures, error) VALUES%s",
		th.Iterations, p.dialect.Placeholders(1, 10))
	_, err := p.db.ExecContext(ctx, q, runID, it.Worker, it.Iteration, it.State,
		p.dialect.ConvertTimeToStorage(it.Start), it.Elapsed.Microseconds(),
		it.Steps, it.Requests, it.Failures, nullString(it.Error))
	if err != nil {
		return fmt.Errorf("failed to save iteration %d of worker %d: %w", it.Iteration, it.Worker, err)
	}
	return nil
}

// ListRuns returns runs, most recent first.
func (p *Store) ListRuns(ctx context.Context, th connector.TableNames) ([]connector.Run, error) {
	q := fmt.Sprintf("SELECT id, name, script, workers, iterations, duration_ms, started_at, finished_at, completed, aborted, cancelled, requests, failures, exit_code FROM %s ORDER BY started_at DESC", th.Runs)
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var r connector.Run
		var durationMS int64
		var started time.Time
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Name, &r.Script, &r.Workers, &r.Iterations, &durationMS, &started, &finished,
			&r.Completed, &r.Aborted, &r.Cancelled, &r.Requests, &r.Failures, &r.ExitCode); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.StartedAt = p.dialect.ConvertTimeFromStorage(started)
		if finished.Valid {
			t := p.dialect.ConvertTimeFromStorage(finished.Time)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListMeasurements returns a run's measurements in recording order.
func (p *Store) ListMeasurements(ctx context.Context, th connector.TableNames, runID string) ([]sink.Measurement, error) {
	q := fmt.Sprintf("SELECT worker, iteration, test_id, label, method, url, started_at, elapsed_us, status, bytes, attempts, ok, error_class, error FROM %s WHERE run_id = $1 ORDER BY id ASC", th.Measurements)
	rows, err := p.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements of run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []sink.Measurement
	for rows.Next() {
		var m sink.Measurement
		var started time.Time
		var elapsedUS int64
		var ok bool
		var msg sql.NullString
		if err := rows.Scan(&m.Worker, &m.Iteration, &m.TestID, &m.Label, &m.Method, &m.URL, &started, &elapsedUS,
			&m.Status, &m.Bytes, &m.Attempts, &ok, &m.ErrorClass, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		m.Start = p.dialect.ConvertTimeFromStorage(started)
		m.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		m.OK = p.dialect.ConvertBoolFromStorage(ok)
		m.Error = msg.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating measurements: %w", err)
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ connector.Connector = (*Store)(nil)
