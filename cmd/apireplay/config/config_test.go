package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/store"
	"github.com/loykin/apireplay/pkg/env"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigDoc_Load_NotRegularFile(t *testing.T) {
	var c ConfigDoc
	if err := c.Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path (not a regular file)")
	}
}

func TestConfigDoc_Load_Full(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
script: scripts/s.yaml
env:
  - {name: site, value: de}
  - {name: port, value: 8080}
auth:
  - type: basic
    name: api
    config: {username: "{{.env.user}}", password: p}
client:
  timeout: 1500ms
  insecure: true
  min_tls_version: "1.2"
run:
  workers: 8
  iterations: 3
  duration: 2m
  ramp_up: 10s
  fatal_steps: "login,passport"
  retry: true
  retry_delay: 250ms
sinks: {csv: out.csv, prometheus: true}
store:
  type: postgres
  postgres: {host: db, user: u, password: p, dbname: runs}
  table_prefix: lt
monitor: {addr: ":9102", jwt_secret: s}
wait: {url: "http://h/health", timeout: 5s, interval: 100ms}
logging: {level: debug, format: json}
render_body: false
`)
	var c ConfigDoc
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.ScriptPath(); got != filepath.Join(dir, "scripts", "s.yaml") {
		t.Errorf("ScriptPath = %q", got)
	}
	if c.Client.Timeout != 1500*time.Millisecond || c.Run.Duration != 2*time.Minute || c.Run.RampUp != 10*time.Second {
		t.Errorf("durations: client=%v run=%v ramp=%v", c.Client.Timeout, c.Run.Duration, c.Run.RampUp)
	}
	if c.Run.RetryDelay != 250*time.Millisecond || c.Wait.Interval != 100*time.Millisecond {
		t.Errorf("retry_delay=%v wait.interval=%v", c.Run.RetryDelay, c.Wait.Interval)
	}
	if !reflect.DeepEqual(c.Run.FatalSteps, []string{"login", "passport"}) {
		t.Errorf("fatal_steps = %q", c.Run.FatalSteps)
	}
	if c.Run.Workers != 8 || c.Run.Iterations != 3 || !c.Run.Retry {
		t.Errorf("run = %+v", c.Run)
	}
	if c.RenderBody == nil || *c.RenderBody {
		t.Errorf("render_body not decoded")
	}
	if got := c.GetEnv(); got["port"] != "8080" || got["site"] != "de" {
		t.Errorf("env = %v", got)
	}
	if c.Sinks.CSV != "out.csv" || !c.Sinks.Prometheus || c.Monitor.Addr != ":9102" {
		t.Errorf("sinks=%+v monitor=%+v", c.Sinks, c.Monitor)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigDoc_Load_UnknownKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "run: {workerz: 3}\n")
	var c ConfigDoc
	err := c.Load(path)
	if err == nil || !strings.Contains(err.Error(), "workerz") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestConfigDoc_Load_BadDuration(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "run: {duration: soon}\n")
	var c ConfigDoc
	if err := c.Load(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestConfigDoc_GetEnv_ValueFromEnv(t *testing.T) {
	t.Setenv("APIREPLAY_TEST_VAL", "xyz")
	doc := ConfigDoc{Env: []EnvConfig{
		{Name: "a", ValueFromEnv: "APIREPLAY_TEST_VAL"},
		{Name: "b", Value: "literal", ValueFromEnv: "APIREPLAY_TEST_VAL"},
		{Name: " ", Value: "skipped"},
	}}
	got := doc.GetEnv()
	want := map[string]string{"a": "xyz", "b": "literal"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetEnv = %v, want %v", got, want)
	}
}

func TestConfigDoc_AuthEntries(t *testing.T) {
	doc := &ConfigDoc{Auth: []AuthConfig{{
		Type: "basic", Name: "b1", Config: map[string]interface{}{"username": "{{.env.user}}", "password": "p"},
	}}}
	entries, err := doc.AuthEntries()
	if err != nil {
		t.Fatalf("AuthEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "b1" {
		t.Fatalf("entries = %+v", entries)
	}

	e := env.New()
	_ = e.SetString("global", "user", "alice")
	m, err := entries[0].Method(e)
	if err != nil {
		t.Fatal(err)
	}
	v, err := m.Acquire(t.Context())
	if err != nil || !strings.HasPrefix(v, "Basic ") {
		t.Fatalf("Acquire = %q, %v", v, err)
	}

	for _, bad := range []AuthConfig{
		{Name: "x"},
		{Type: "basic"},
		{Type: "nope", Name: "x"},
	} {
		d := &ConfigDoc{Auth: []AuthConfig{bad}}
		if _, err := d.AuthEntries(); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
	if got := (&ConfigDoc{Auth: []AuthConfig{{Name: "a"}, {Name: " "}, {Name: "b"}}}).AuthNames(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("AuthNames = %v", got)
	}
}

func TestStoreConfig_StoreConfig(t *testing.T) {
	if _, ok := (StoreConfig{Disabled: true}).StoreConfig(); ok {
		t.Fatal("disabled store must report false")
	}

	cfg, ok := StoreConfig{TablePrefix: "appx", TableRuns: "custom_runs"}.StoreConfig()
	if !ok || cfg.Driver != store.DriverSqlite || cfg.DriverConfig != nil {
		t.Fatalf("default sqlite config = %+v", cfg)
	}
	want := store.TableNames{Runs: "custom_runs", Iterations: "appx_iterations", Measurements: "appx_measurements"}
	if cfg.TableNames != want {
		t.Errorf("table names = %+v", cfg.TableNames)
	}

	cfg, _ = StoreConfig{Type: "sqlite", SQLite: SQLiteStoreConfig{Path: "x.db"}}.StoreConfig()
	if sc, ok := cfg.DriverConfig.(*store.SqliteConfig); !ok || sc.Path != "x.db" {
		t.Errorf("sqlite driver config = %#v", cfg.DriverConfig)
	}

	cfg, _ = StoreConfig{Type: "PG", Postgres: store.PostgresConfig{DSN: "postgres://u@h/db"}}.StoreConfig()
	if cfg.Driver != store.DriverPostgresql || cfg.DriverConfig.ToMap()["dsn"] != "postgres://u@h/db" {
		t.Errorf("postgres config = %+v", cfg)
	}
}

func TestClientConfig_TLS(t *testing.T) {
	if (ClientConfig{}).TLS() != nil {
		t.Error("empty client section should leave TLS defaults")
	}
	c := ClientConfig{Insecure: true, MinTLSVersion: "tls1.2", MaxTLSVersion: "1.3"}
	cfg := c.TLS()
	if cfg == nil || !cfg.InsecureSkipVerify || cfg.MinVersion != tls.VersionTLS12 || cfg.MaxVersion != tls.VersionTLS13 {
		t.Fatalf("TLS = %+v", cfg)
	}
	if o := c.Options(); !o.Insecure || o.MinTLSVersion != "tls1.2" {
		t.Errorf("Options = %+v", o)
	}
}

func TestConfigDoc_Validate(t *testing.T) {
	doc := ConfigDoc{
		Run:     RunConfig{Workers: -1},
		Client:  ClientConfig{MinTLSVersion: "ssl3"},
		Logging: LoggingConfig{Level: "loud"},
	}
	err := doc.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"run.workers", `"ssl3"`, "invalid logging level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfigDoc_SetupLogging(t *testing.T) {
	prev := common.GetLogger()
	t.Cleanup(func() { common.SetDefaultLogger(prev) })

	off := false
	tests := []struct {
		name    string
		cfg     LoggingConfig
		level   common.LogLevel
		wantErr bool
	}{
		{"defaults", LoggingConfig{}, common.LogLevelInfo, false},
		{"json debug", LoggingConfig{Level: "debug", Format: "json"}, common.LogLevelDebug, false},
		{"color warn", LoggingConfig{Level: "warning", Format: "color", MaskSensitive: &off}, common.LogLevelWarn, false},
		{"bad format", LoggingConfig{Format: "xml"}, 0, true},
		{"bad level", LoggingConfig{Level: "trace"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ConfigDoc{Logging: tt.cfg}
			l, err := doc.SetupLogging()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if l.Level() != tt.level || common.GetLogger() != l {
				t.Errorf("level=%v installed=%v", l.Level(), common.GetLogger() == l)
			}
		})
	}
}
