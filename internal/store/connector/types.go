package connector

import (
	"context"
	"database/sql"
	"time"

	"github.com/loykin/apireplay/internal/sink"
)

// Run is one row of the runs table.
type Run struct {
	ID         string
	Name       string
	Script     string
	Workers    int
	Iterations int           // 0 when the run was bounded by Duration
	Duration   time.Duration // 0 when the run was bounded by Iterations
	StartedAt  time.Time
	FinishedAt *time.Time // nil while the run is in progress or was killed
	Summary
}

// Summary is written once when a run ends.
type Summary struct {
	Completed int
	Aborted   int
	Cancelled int
	Requests  int
	Failures  int
	ExitCode  int
}

// TableNames represents database table names
type TableNames struct {
	Runs         string
	Iterations   string
	Measurements string
}

// Connector is implemented by each database backend.
type Connector interface {
	Connect() (*sql.DB, error)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(th TableNames) error
	CreateRun(ctx context.Context, th TableNames, run Run) error
	FinishRun(ctx context.Context, th TableNames, id string, finishedAt time.Time, sum Summary) error
	SaveMeasurements(ctx context.Context, th TableNames, runID string, ms []sink.Measurement) error
	SaveIteration(ctx context.Context, th TableNames, runID string, it sink.Iteration) error
	// ListRuns returns runs, most recent first.
	ListRuns(ctx context.Context, th TableNames) ([]Run, error)
	// ListMeasurements returns a run's measurements in recording order.
	ListMeasurements(ctx context.Context, th TableNames, runID string) ([]sink.Measurement, error)
	Close() error
}
