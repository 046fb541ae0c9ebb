package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/apireplay/internal/sink"
)

// helper to open a store in a temporary file path
func openTempStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.DriverConfig == nil {
		cfg.DriverConfig = &SqliteConfig{Path: filepath.Join(t.TempDir(), "runs.db")}
	}
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func measurement(worker, iter, id int, ok bool) sink.Measurement {
	m := sink.Measurement{
		Worker: worker, Iteration: iter, TestID: id, Label: "GET /x", Method: "GET",
		URL: "http://h.test/x", Start: time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC),
		Elapsed: 1500 * time.Microsecond, Status: 200, Bytes: 512, Attempts: 1, OK: ok,
	}
	if !ok {
		m.Status, m.ErrorClass, m.Error = 500, sink.ClassStatus, "unexpected status 500"
	}
	return m
}

func TestStore_RunLifecycle(t *testing.T) {
	st := openTempStore(t, Config{})
	ctx := context.Background()
	if st.Driver() != DriverSqlite {
		t.Fatalf("driver = %q", st.Driver())
	}

	id, err := st.CreateRun(ctx, RunInfo{Name: "smoke", Script: "bing.yaml", Workers: 4, Iterations: 10})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("run id should be a uuid, got %q", id)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %v, %v", runs, err)
	}
	if runs[0].FinishedAt != nil || runs[0].Workers != 4 || runs[0].Iterations != 10 {
		t.Fatalf("run in progress = %+v", runs[0])
	}

	if err := st.FinishRun(ctx, id, Summary{Completed: 9, Aborted: 1, Requests: 40, Failures: 2, ExitCode: 1}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	runs, _ = st.ListRuns(ctx)
	r := runs[0]
	if r.FinishedAt == nil || r.Completed != 9 || r.Aborted != 1 || r.ExitCode != 1 || r.Requests != 40 {
		t.Fatalf("finished run = %+v", r)
	}
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		t.Fatalf("timestamps: started=%v finished=%v", r.StartedAt, r.FinishedAt)
	}

	if err := st.FinishRun(ctx, "missing", Summary{}); err == nil || !strings.Contains(err.Error(), "no such run") {
		t.Fatalf("expected no such run, got %v", err)
	}
}

func TestStore_Measurements(t *testing.T) {
	st := openTempStore(t, Config{})
	ctx := context.Background()
	id, err := st.CreateRun(ctx, RunInfo{Name: "m", Script: "s.yaml", Workers: 1, Duration: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	var batch []sink.Measurement
	for i := 0; i < 450; i++ {
		batch = append(batch, measurement(i%3, i/3, i, i%50 != 0))
	}
	if err := st.SaveMeasurements(ctx, id, batch); err != nil {
		t.Fatalf("SaveMeasurements: %v", err)
	}
	if err := st.SaveMeasurements(ctx, id, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	got, err := st.ListMeasurements(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(batch) {
		t.Fatalf("stored %d measurements, want %d", len(got), len(batch))
	}
	for i := range batch {
		g, w := got[i], batch[i]
		if !g.Start.Equal(w.Start) {
			t.Fatalf("measurement %d start = %v, want %v", i, g.Start, w.Start)
		}
		g.Start, w.Start = time.Time{}, time.Time{}
		if g != w {
			t.Fatalf("measurement %d:\n got %+v\nwant %+v", i, g, w)
		}
	}

	other, _ := st.ListMeasurements(ctx, "other-run")
	if len(other) != 0 {
		t.Fatalf("measurements leaked across runs: %d", len(other))
	}
	runs, _ := st.ListRuns(ctx)
	if runs[0].Duration != time.Minute {
		t.Fatalf("duration = %v", runs[0].Duration)
	}
}

func TestStore_SaveIteration(t *testing.T) {
	st := openTempStore(t, Config{})
	ctx := context.Background()
	it := sink.Iteration{Worker: 2, Iteration: 7, State: "Aborted", Start: time.Now(), Elapsed: time.Second, Steps: 3, Requests: 2, Failures: 0, Error: "step 4 (GET /): unbound token"}
	if err := st.SaveIteration(ctx, "r1", it); err != nil {
		t.Fatalf("SaveIteration: %v", err)
	}
	var state, msg string
	row := st.DB.QueryRow("SELECT state, error FROM "+st.TableNames().Iterations+" WHERE run_id = ?", "r1")
	if err := row.Scan(&state, &msg); err != nil {
		t.Fatal(err)
	}
	if state != "Aborted" || msg != it.Error {
		t.Fatalf("row = %q %q", state, msg)
	}
}

func TestStore_AsSinkWriter(t *testing.T) {
	st := openTempStore(t, Config{})
	ctx := context.Background()
	id, err := st.CreateRun(ctx, RunInfo{Name: "sink", Script: "s.yaml", Workers: 1, Iterations: 1})
	if err != nil {
		t.Fatal(err)
	}
	s := sink.NewStore(st, id, 2)
	for i := 0; i < 5; i++ {
		s.Record(measurement(0, 0, i, true))
	}
	s.RecordIteration(sink.Iteration{State: "Completed", Start: time.Now()})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := st.ListMeasurements(ctx, id)
	if err != nil || len(got) != 5 {
		t.Fatalf("got %d measurements, err %v", len(got), err)
	}
}

func TestConfig_TableNames(t *testing.T) {
	if tn := (Config{}).tableNames(); tn != DefaultTableNames() {
		t.Fatalf("defaults = %+v", tn)
	}
	tn := (Config{TablePrefix: "load", TableNames: TableNames{Measurements: "m"}}).tableNames()
	if tn.Runs != "load_runs" || tn.Iterations != "load_iterations" || tn.Measurements != "m" {
		t.Fatalf("prefixed = %+v", tn)
	}

	st := openTempStore(t, Config{TablePrefix: "nightly"})
	if _, err := st.CreateRun(context.Background(), RunInfo{Name: "p", Script: "s"}); err != nil {
		t.Fatalf("prefixed tables unusable: %v", err)
	}
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown driver", Config{Driver: "mysql"}, "unsupported driver"},
		{"bad table name", Config{TablePrefix: "x; DROP TABLE y"}, "invalid table name"},
		{"postgres without config", Config{Driver: "postgres"}, "requires driver config"},
		{"postgres without dsn", Config{Driver: "postgresql", DriverConfig: &PostgresConfig{}}, "dsn or host is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st Store
			err := st.Connect(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}
