package sqlite

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store/connector"
)

var testTables = connector.TableNames{Runs: "runs", Iterations: "its", Measurements: "ms"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, dialect: NewDialect()}, mock
}

func TestStore_Load(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   string
	}{
		{"valid dsn", map[string]interface{}{"dsn": "file:test.db"}, "file:test.db"},
		{"valid path", map[string]interface{}{"path": "/tmp/test.db"}, "file:/tmp/test.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{"empty dsn", map[string]interface{}{"dsn": ""}, ""},
		{"path wrong type", map[string]interface{}{"path": 123}, ""},
		{"dsn takes precedence over path", map[string]interface{}{"dsn": "custom-dsn", "path": "/tmp/test.db"}, "custom-dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			if err := store.Load(tt.config); err != nil {
				t.Errorf("Load() error = %v, want nil", err)
			}
			if store.DSN != tt.want {
				t.Errorf("Load() DSN = %v, want %v", store.DSN, tt.want)
			}
		})
	}
}

func TestStore_ConnectInMemory(t *testing.T) {
	store := NewStore()
	db, err := store.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.DSN != ":memory:" || db == nil {
		t.Fatalf("DSN = %q", store.DSN)
	}
	if err := store.Ensure(testTables); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := store.Ensure(testTables); err != nil {
		t.Fatalf("Ensure must be idempotent: %v", err)
	}
}

func TestStore_Ensure(t *testing.T) {
	store, mock := newMockStore(t)
	for range store.dialect.GetEnsureStatements(testTables) {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := store.Ensure(testTables); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}

	store, mock = newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnError(errors.New("disk full"))
	if err := store.Ensure(testTables); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected disk full, got %v", err)
	}
}

func TestStore_CreateRun(t *testing.T) {
	store, mock := newMockStore(t)
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO runs\(id, name, script, workers, iterations, duration_ms, started_at\)`).
		WithArgs("r1", "n", "s.yaml", 4, 0, int64(30000), "2024-01-02T03:04:05Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateRun(context.Background(), testTables, connector.Run{
		ID: "r1", Name: "n", Script: "s.yaml", Workers: 4, Duration: 30 * time.Second, StartedAt: started,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_FinishRun(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE runs SET finished_at").
		WithArgs(sqlmock.AnyArg(), 1, 2, 3, 4, 5, 1, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE runs SET finished_at").WillReturnResult(sqlmock.NewResult(0, 0))

	sum := connector.Summary{Completed: 1, Aborted: 2, Cancelled: 3, Requests: 4, Failures: 5, ExitCode: 1}
	if err := store.FinishRun(context.Background(), testTables, "r1", time.Now(), sum); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := store.FinishRun(context.Background(), testTables, "nope", time.Now(), sum); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestStore_SaveMeasurements_Chunks(t *testing.T) {
	store, mock := newMockStore(t)
	ms := make([]sink.Measurement, rowsPerInsert+3)
	for i := range ms {
		ms[i] = sink.Measurement{TestID: i, OK: true, Status: 200}
	}
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ms\(` + strings.ReplaceAll(measurementColumns, " ", `\s*`) + `\) VALUES`).
		WillReturnResult(sqlmock.NewResult(0, rowsPerInsert))
	mock.ExpectExec(`INSERT INTO ms`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := store.SaveMeasurements(context.Background(), testTables, "r1", ms); err != nil {
		t.Fatalf("SaveMeasurements: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_SaveMeasurements_RollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ms`).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := store.SaveMeasurements(context.Background(), testTables, "r1", []sink.Measurement{{TestID: 1}})
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Fatalf("expected lock error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_SaveIteration(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO its`).
		WithArgs("r1", 1, 2, "Completed", sqlmock.AnyArg(), int64(2000), 3, 2, 0, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	it := sink.Iteration{Worker: 1, Iteration: 2, State: "Completed", Start: time.Now(), Elapsed: 2 * time.Millisecond, Steps: 3, Requests: 2}
	if err := store.SaveIteration(context.Background(), testTables, "r1", it); err != nil {
		t.Fatalf("SaveIteration: %v", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store, mock := newMockStore(t)
	cols := []string{"id", "name", "script", "workers", "iterations", "duration_ms", "started_at", "finished_at", "completed", "aborted", "cancelled", "requests", "failures", "exit_code"}
	mock.ExpectQuery("SELECT id, name, script").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("b", "second", "s.yaml", 2, 0, int64(60000), "2024-01-02T00:00:00Z", nil, 0, 0, 0, 0, 0, 0).
		AddRow("a", "first", "s.yaml", 1, 5, int64(0), "2024-01-01T00:00:00Z", "2024-01-01T00:01:00Z", 5, 0, 0, 20, 1, 0))

	runs, err := store.ListRuns(context.Background(), testTables)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[0].FinishedAt != nil || runs[0].Duration != time.Minute {
		t.Fatalf("runs = %+v", runs)
	}
	want := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	if runs[1].FinishedAt == nil || !runs[1].FinishedAt.Equal(want) || runs[1].Requests != 20 {
		t.Fatalf("finished run = %+v", runs[1])
	}
}

func TestStore_ListMeasurements(t *testing.T) {
	store, mock := newMockStore(t)
	cols := []string{"worker", "iteration", "test_id", "label", "method", "url", "started_at", "elapsed_us", "status", "bytes", "attempts", "ok", "error_class", "error"}
	mock.ExpectQuery("SELECT worker, iteration").WithArgs("r1").WillReturnRows(sqlmock.NewRows(cols).
		AddRow(0, 0, 101, "GET /", "GET", "http://h/", "2024-01-01T00:00:00Z", int64(1500), 301, int64(10), 1, int64(1), "", nil).
		AddRow(0, 0, 102, "GET /x", "GET", "http://h/x", "2024-01-01T00:00:01Z", int64(900), 0, int64(0), 2, int64(0), sink.ClassNetwork, "reset"))

	got, err := store.ListMeasurements(context.Background(), testTables, "r1")
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if len(got) != 2 || !got[0].OK || got[1].OK || got[0].Elapsed != 1500*time.Microsecond {
		t.Fatalf("measurements = %+v", got)
	}
	if !reflect.DeepEqual([]string{got[1].ErrorClass, got[1].Error}, []string{sink.ClassNetwork, "reset"}) {
		t.Fatalf("error fields = %+v", got[1])
	}
}

func TestDialect_Conversions(t *testing.T) {
	d := NewDialect()
	if d.GetPlaceholder() != "?" || d.GetDriverName() != "sqlite" {
		t.Fatal("placeholder or driver name changed")
	}
	if d.ConvertBoolToStorage(true) != 1 || d.ConvertBoolToStorage(false) != 0 {
		t.Fatal("bool storage")
	}
	for in, want := range map[interface{}]bool{int64(1): true, int64(0): false, 1: true, "true": false, nil: false} {
		if d.ConvertBoolFromStorage(in) != want {
			t.Errorf("ConvertBoolFromStorage(%v) != %v", in, want)
		}
	}
	ts := time.Date(2023, 12, 25, 10, 30, 45, 123456789, time.FixedZone("KST", 9*3600))
	stored := d.ConvertTimeToStorage(ts)
	if stored != "2023-12-25T01:30:45.123456789Z" {
		t.Fatalf("stored = %v", stored)
	}
	if !d.ConvertTimeFromStorage(stored).Equal(ts) {
		t.Fatal("time round trip")
	}
	if !d.ConvertTimeFromStorage("garbage").IsZero() || !d.ConvertTimeFromStorage(42).IsZero() {
		t.Fatal("bad input should yield zero time")
	}
	if n := len(d.GetEnsureStatements(testTables)); n != 4 {
		t.Fatalf("expected 4 ensure statements, got %d", n)
	}
}
