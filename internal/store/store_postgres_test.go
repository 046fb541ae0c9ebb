package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/apireplay/internal/sink"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// waitForPostgresDSN pings the DSN until it responds or timeout elapses (pgx stdlib).
func waitForPostgresDSN(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			pingErr := db.Ping()
			_ = db.Close()
			if pingErr == nil {
				return nil
			}
			lastErr = pingErr
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for postgres")
	}
	return lastErr
}

func TestPostgresStore_RunHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := tc.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "apireplay_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		),
	}
	pg, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("skipping Postgres container test: %v", err)
		return
	}
	defer func() { _ = pg.Terminate(ctx) }()

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/apireplay_test?sslmode=disable", host, port.Port())
	if err := waitForPostgresDSN(dsn, 30*time.Second); err != nil {
		t.Fatalf("postgres not ready: %v", err)
	}

	var st Store
	if err := st.Connect(Config{Driver: DriverPostgresql, DriverConfig: &PostgresConfig{DSN: dsn}}); err != nil {
		t.Fatalf("Connect(Postgres): %v", err)
	}
	defer func() { _ = st.Close() }()

	for _, tbl := range []string{"replay_runs", "replay_iterations", "replay_measurements"} {
		var one int
		if err := st.DB.QueryRow(`SELECT 1 FROM information_schema.tables WHERE table_name = $1`, tbl).Scan(&one); err != nil {
			t.Fatalf("expected table %s to exist: %v", tbl, err)
		}
	}

	id, err := st.CreateRun(ctx, RunInfo{Name: "pg", Script: "s.yaml", Workers: 2, Iterations: 3})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	var batch []sink.Measurement
	for i := 0; i < 1200; i++ {
		batch = append(batch, measurement(i%2, i/2, i, i%7 != 0))
	}
	if err := st.SaveMeasurements(ctx, id, batch); err != nil {
		t.Fatalf("SaveMeasurements: %v", err)
	}
	if err := st.SaveIteration(ctx, id, sink.Iteration{State: "Completed", Start: time.Now(), Elapsed: time.Second}); err != nil {
		t.Fatalf("SaveIteration: %v", err)
	}
	if err := st.FinishRun(ctx, id, Summary{Completed: 6, Requests: 1200, Failures: 172}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := st.ListMeasurements(ctx, id)
	if err != nil || len(got) != len(batch) {
		t.Fatalf("ListMeasurements: %d rows, %v", len(got), err)
	}
	if !got[0].Start.Equal(batch[0].Start) || got[7].OK || !got[8].OK || got[7].Error == "" {
		t.Fatalf("round trip mismatch: %+v / %+v", got[0], got[7])
	}
	runs, err := st.ListRuns(ctx)
	if err != nil || len(runs) != 1 || runs[0].FinishedAt == nil || runs[0].Completed != 6 {
		t.Fatalf("ListRuns = %+v, %v", runs, err)
	}
}
