package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/apireplay/internal/auth"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/httpc"
	"github.com/loykin/apireplay/internal/store"
	"github.com/loykin/apireplay/internal/store/postgresql"
	"github.com/loykin/apireplay/internal/util"
	"gopkg.in/yaml.v3"
)

type EnvConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Value        string `mapstructure:"value" yaml:"value"`
	ValueFromEnv string `mapstructure:"valueFromEnv" yaml:"valueFromEnv"`
}

type AuthConfig struct {
	// Provider type key: basic, oauth2, custom_jwt
	Type string `mapstructure:"type" yaml:"type"`
	// Name referenced by {{.auth.NAME}}
	Name string `mapstructure:"name" yaml:"name"`
	// Provider-specific configuration, rendered per worker before acquisition
	Config map[string]interface{} `mapstructure:"config" yaml:"config"`
}

type ClientConfig struct {
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Insecure            bool          `mapstructure:"insecure" yaml:"insecure"`
	MinTLSVersion       string        `mapstructure:"min_tls_version" yaml:"min_tls_version"`
	MaxTLSVersion       string        `mapstructure:"max_tls_version" yaml:"max_tls_version"`
	Proxy               string        `mapstructure:"proxy" yaml:"proxy"`
	FollowRedirects     bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
}

// Options maps the client section onto the transport options.
func (c ClientConfig) Options() httpc.Options {
	return httpc.Options{
		Insecure:            c.Insecure,
		MinTLSVersion:       c.MinTLSVersion,
		MaxTLSVersion:       c.MaxTLSVersion,
		Proxy:               c.Proxy,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		FollowRedirects:     c.FollowRedirects,
	}
}

// TLS is nil when the section leaves TLS at the Go defaults.
func (c ClientConfig) TLS() *tls.Config { return c.Options().TLSConfig() }

type RunConfig struct {
	Name       string        `mapstructure:"name" yaml:"name"`
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	Iterations int           `mapstructure:"iterations" yaml:"iterations"`
	Duration   time.Duration `mapstructure:"duration" yaml:"duration"`
	RampUp     time.Duration `mapstructure:"ramp_up" yaml:"ramp_up"`
	FailFast   bool          `mapstructure:"fail_fast" yaml:"fail_fast"`
	FatalSteps []string      `mapstructure:"fatal_steps" yaml:"fatal_steps"`
	Retry      bool          `mapstructure:"retry" yaml:"retry"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

type SinksConfig struct {
	// CSV is a data file path; empty disables it.
	CSV        string `mapstructure:"csv" yaml:"csv"`
	Log        bool   `mapstructure:"log" yaml:"log"`
	Prometheus bool   `mapstructure:"prometheus" yaml:"prometheus"`
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type StoreConfig struct {
	Disabled bool              `mapstructure:"disabled" yaml:"disabled"`
	Type     string            `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteStoreConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
	// Measurements buffered between writes
	Batch int `mapstructure:"batch" yaml:"batch"`

	TablePrefix       string `mapstructure:"table_prefix" yaml:"table_prefix"`
	TableRuns         string `mapstructure:"table_runs" yaml:"table_runs"`
	TableIterations   string `mapstructure:"table_iterations" yaml:"table_iterations"`
	TableMeasurements string `mapstructure:"table_measurements" yaml:"table_measurements"`
}

// StoreConfig builds the run store settings. The second result is false
// when the store is disabled.
func (c StoreConfig) StoreConfig() (store.Config, bool) {
	if c.Disabled {
		return store.Config{}, false
	}
	tn := store.PrefixedTableNames(c.TablePrefix)
	if n, ok := util.TrimEmptyCheck(c.TableRuns); ok {
		tn.Runs = n
	}
	if n, ok := util.TrimEmptyCheck(c.TableIterations); ok {
		tn.Iterations = n
	}
	if n, ok := util.TrimEmptyCheck(c.TableMeasurements); ok {
		tn.Measurements = n
	}
	cfg := store.Config{TableNames: tn}
	switch util.TrimAndLower(c.Type) {
	case store.DriverPostgresql, "postgres", "pg":
		pg := c.Postgres
		cfg.Driver = store.DriverPostgresql
		cfg.DriverConfig = &pg
	default:
		cfg.Driver = store.DriverSqlite
		if p, ok := util.TrimEmptyCheck(c.SQLite.Path); ok {
			cfg.DriverConfig = &store.SqliteConfig{Path: p}
		}
	}
	return cfg, true
}

type MonitorConfig struct {
	// Addr such as ":9102"; empty disables the monitor.
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type WaitConfig struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Method   string        `mapstructure:"method" yaml:"method"`
	Status   int           `mapstructure:"status" yaml:"status"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type ConfigDoc struct {
	// Script path; relative paths resolve against the config file.
	Script  string        `mapstructure:"script" yaml:"script"`
	Env     []EnvConfig   `mapstructure:"env" yaml:"env"`
	Auth    []AuthConfig  `mapstructure:"auth" yaml:"auth"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
	Sinks   SinksConfig   `mapstructure:"sinks" yaml:"sinks"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Wait    WaitConfig    `mapstructure:"wait" yaml:"wait"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	// Default for text bodies without render_body
	RenderBody *bool `mapstructure:"render_body" yaml:"render_body"`

	dir string
}

// Load reads a YAML config file. The document is decoded to a generic map
// first and then through mapstructure, so durations may be written as
// "500ms" or "2m".
func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the operator
	data, err := os.ReadFile(clean)
	if err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config %s: %w", clean, err)
	}
	if err := c.Decode(raw); err != nil {
		return fmt.Errorf("config %s: %w", clean, err)
	}
	c.dir = filepath.Dir(clean)
	return nil
}

// Decode fills c from a generic map, such as one produced by YAML or viper.
// Unknown keys are errors.
func (c *ConfigDoc) Decode(raw map[string]interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// ScriptPath resolves Script against the config file directory.
func (c *ConfigDoc) ScriptPath() string {
	p, ok := util.TrimEmptyCheck(c.Script)
	if !ok {
		return ""
	}
	if filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// GetEnv resolves the env section to global tokens. A valueFromEnv entry
// reads the process environment when no literal value is given.
func (c *ConfigDoc) GetEnv() map[string]string {
	out := make(map[string]string, len(c.Env))
	for _, kv := range c.Env {
		name, ok := util.TrimEmptyCheck(kv.Name)
		if !ok {
			continue
		}
		val := kv.Value
		if envVar, hasEnvVar := util.TrimEmptyCheck(kv.ValueFromEnv); val == "" && hasEnvVar {
			val = os.Getenv(envVar)
			if val == "" {
				slog.Warn("env variable requested but empty or not set", "name", name, "env_var", envVar)
			}
		}
		out[name] = val
	}
	return out
}

// AuthEntries converts the auth section. Entries are validated but nothing
// is acquired; each worker acquires its own values on first use.
func (c *ConfigDoc) AuthEntries() ([]auth.Auth, error) {
	out := make([]auth.Auth, 0, len(c.Auth))
	for i, a := range c.Auth {
		pt, ok := util.TrimEmptyCheck(a.Type)
		if !ok {
			return nil, fmt.Errorf("auth[%d]: missing type", i)
		}
		name, ok := util.TrimEmptyCheck(a.Name)
		if !ok {
			return nil, fmt.Errorf("auth[%d] type=%s: missing name (use auth[].name)", i, pt)
		}
		entry := auth.Auth{Type: pt, Name: name, Config: a.Config}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// AuthNames lists the configured auth names.
func (c *ConfigDoc) AuthNames() []string {
	names := make([]string, 0, len(c.Auth))
	for _, a := range c.Auth {
		if n, ok := util.TrimEmptyCheck(a.Name); ok {
			names = append(names, n)
		}
	}
	return names
}

// Validate checks values that would otherwise fail late.
func (c *ConfigDoc) Validate() error {
	var errs []error
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("run.workers must not be negative"))
	}
	if c.Run.Iterations < 0 {
		errs = append(errs, fmt.Errorf("run.iterations must not be negative"))
	}
	if c.Run.Duration < 0 || c.Run.RampUp < 0 || c.Run.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("run durations must not be negative"))
	}
	if c.Client.Timeout < 0 {
		errs = append(errs, fmt.Errorf("client.timeout must not be negative"))
	}
	for _, v := range []string{c.Client.MinTLSVersion, c.Client.MaxTLSVersion} {
		if v != "" && httpc.ParseTLSVersion(v) == 0 {
			errs = append(errs, fmt.Errorf("unknown TLS version %q", v))
		}
	}
	if _, err := c.parseLogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *ConfigDoc) parseLogLevel() (common.LogLevel, error) {
	switch util.TrimAndLower(c.Logging.Level) {
	case "error":
		return common.LogLevelError, nil
	case "warn", "warning":
		return common.LogLevelWarn, nil
	case "info", "":
		return common.LogLevelInfo, nil
	case "debug":
		return common.LogLevelDebug, nil
	default:
		return common.LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
}

// SetupLogging installs the process logger described by the logging section.
func (c *ConfigDoc) SetupLogging() (*common.Logger, error) {
	level, err := c.parseLogLevel()
	if err != nil {
		return nil, err
	}

	format := util.TrimAndLower(c.Logging.Format)
	useColor := format == "color" || format == "colour"
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	}

	var logger *common.Logger
	switch format {
	case "json":
		logger = common.NewJSONLogger(level)
	case "color", "colour", "text", "":
		if useColor {
			logger = common.NewColorLogger(level)
		} else {
			logger = common.NewLogger(level)
		}
	default:
		return nil, fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	masking := true
	if c.Logging.MaskSensitive != nil {
		masking = *c.Logging.MaskSensitive
	}
	logger.EnableMasking(masking)
	common.SetDefaultLogger(logger)

	logger.Debug("logging configured",
		"level", util.TrimWithDefault(util.TrimAndLower(c.Logging.Level), "info"),
		"format", util.TrimWithDefault(format, "text"),
		"color", useColor,
		"mask_sensitive", masking)
	return logger, nil
}
