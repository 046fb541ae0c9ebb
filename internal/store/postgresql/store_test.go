package postgresql

import (
	"context"
	"errors"
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

func TestConfig_ToMap(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit dsn", Config{DSN: " postgres://u:p@h/db ", Host: "ignored"}, "postgres://u:p@h/db"},
		{"from parts", Config{Host: "db", User: "u", Password: "p", DBName: "load"}, "postgres://u:p@db:5432/load?sslmode=disable"},
		{"custom port and ssl", Config{Host: "db", Port: 6543, User: "u", DBName: "x", SSLMode: "require"}, "postgres://u:@db:6543/x?sslmode=require"},
		{"nothing", Config{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ToMap()["dsn"]; got != tt.want {
				t.Errorf("dsn = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_LoadValidate(t *testing.T) {
	store := NewStore()
	if err := store.Validate(); err == nil {
		t.Fatal("empty dsn must not validate")
	}
	_ = store.Load(map[string]interface{}{"dsn": 123})
	if store.DSN != "" {
		t.Fatalf("wrong-typed dsn accepted: %q", store.DSN)
	}
	_ = store.Load(map[string]interface{}{"dsn": "postgres://x"})
	if err := store.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestStore_Ensure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS its").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ms").WillReturnError(errors.New("permission denied"))
	err := store.Ensure(testTables)
	if err == nil || !strings.Contains(err.Error(), "table 3") {
		t.Fatalf("expected failure on statement 3, got %v", err)
	}
}

func TestStore_SaveMeasurements_NumberedPlaceholders(t *testing.T) {
	store, mock := newMockStore(t)
	ms := []sink.Measurement{{TestID: 1, OK: true}, {TestID: 2, Error: "boom"}}
	mock.ExpectBegin()
	mock.ExpectExec(`VALUES \(\$1,.*,\$15\),\(\$16,.*,\$30\)$`).
		WithArgs(
			"r1", 0, 0, 1, "", "", "", sqlmock.AnyArg(), int64(0), 0, int64(0), 0, true, "", nil,
			"r1", 0, 0, 2, "", "", "", sqlmock.AnyArg(), int64(0), 0, int64(0), 0, false, "", "boom",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.SaveMeasurements(context.Background(), testTables, "r1", ms); err != nil {
		t.Fatalf("SaveMeasurements: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_FinishRun(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE runs SET finished_at = \$1`).
		WithArgs(sqlmock.AnyArg(), 3, 0, 1, 9, 2, 0, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sum := connector.Summary{Completed: 3, Cancelled: 1, Requests: 9, Failures: 2}
	if err := store.FinishRun(context.Background(), testTables, "r1", time.Now(), sum); err != nil {
		t.Fatal(err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "name", "script", "workers", "iterations", "duration_ms", "started_at", "finished_at", "completed", "aborted", "cancelled", "requests", "failures", "exit_code"}
	mock.ExpectQuery("SELECT id, name, script").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("a", "n", "s", 1, 1, int64(0), start, start.Add(time.Minute), 1, 0, 0, 3, 0, 0))
	runs, err := store.ListRuns(context.Background(), testTables)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].StartedAt.Equal(start) || runs[0].FinishedAt == nil || runs[0].FinishedAt.Sub(start) != time.Minute {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestDialect(t *testing.T) {
	d := NewDialect()
	if d.GetPlaceholder(3) != "$3" || d.Placeholders(4, 3) != "($4,$5,$6)" {
		t.Fatal("placeholders")
	}
	if d.ConvertBoolToStorage(true) != true || d.ConvertBoolFromStorage("t") {
		t.Fatal("bool conversion")
	}
	local := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	if got := d.ConvertTimeFromStorage(&local); got.Location() != time.UTC || !got.Equal(local) {
		t.Fatalf("time = %v", got)
	}
	if !d.ConvertTimeFromStorage(nil).IsZero() {
		t.Fatal("nil time")
	}
	if d.GetDriverName() != "postgresql" {
		t.Fatal("driver name")
	}
}
