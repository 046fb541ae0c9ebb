package apireplay

import (
	"context"
	"errors"

	"github.com/loykin/apireplay/internal/auth"
	"github.com/loykin/apireplay/internal/replay"
	"github.com/loykin/apireplay/internal/runner"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store"
)

// Re-export commonly used types for public API

// Script is a compiled session script.
type Script = script.Script

// LoadScript reads and compiles a session script from a yaml file.
func LoadScript(path string) (*Script, error) { return script.Load(path) }

// ParseScript compiles a script document; body_file paths resolve against baseDir.
func ParseScript(data []byte, baseDir string) (*Script, error) { return script.Parse(data, baseDir) }

// EngineConfig holds the HTTP client and replay policy shared by all workers.
type EngineConfig = replay.Config

type RetryConfig = replay.RetryConfig

type Engine = replay.Engine

// NewEngine builds a replay engine. Close it when done.
func NewEngine(cfg EngineConfig) (*Engine, error) { return replay.New(cfg) }

type (
	Session         = replay.Session
	IterationResult = replay.IterationResult
	StepResult      = replay.StepResult
	State           = replay.State
)

const (
	NotStarted = replay.NotStarted
	Running    = replay.Running
	Completed  = replay.Completed
	Aborted    = replay.Aborted
	Cancelled  = replay.Cancelled
)

// RunConfig controls worker count, iteration count, duration and ramp-up.
type RunConfig = runner.Config

type (
	Runner   = runner.Runner
	Report   = runner.Report
	Progress = runner.Progress
)

// Measurement sinks.
type (
	Sink        = sink.Sink
	Measurement = sink.Measurement
	Iteration   = sink.Iteration
	StepStats   = sink.StepStats
	Tally       = sink.Tally
	Memory      = sink.Memory
)

func NewTally() *Tally   { return sink.NewTally() }
func NewMemory() *Memory { return sink.NewMemory() }

// Auth describes one auth provider entry; see RegisterAuthProvider for custom types.
type Auth = auth.Auth

type (
	AuthMethod  = auth.Method
	AuthFactory = auth.Factory
)

// RegisterAuthProvider exposes custom auth provider registration for library users.
func RegisterAuthProvider(typ string, f AuthFactory) { auth.Register(typ, f) }

// Store persists runs and their measurements.
type (
	Store        = store.Store
	StoreConfig  = store.Config
	RunInfo      = store.RunInfo
	Run          = store.Run
	RunSummary   = store.Summary
	SqliteConfig = store.SqliteConfig
)

// OpenStore opens (and initializes) a run store.
func OpenStore(cfg StoreConfig) (*Store, error) { return store.Open(cfg) }

// Replay runs sc with rc and returns the report. Measurements go to a
// tally that feeds the report, plus cfg.Sink when set. The engine is closed
// before Replay returns.
func Replay(ctx context.Context, sc *Script, cfg EngineConfig, rc RunConfig) (*Report, error) {
	if sc == nil {
		return nil, errors.New("apireplay: nil script")
	}
	tally := sink.NewTally()
	if cfg.Sink != nil {
		cfg.Sink = sink.NewMulti(tally, cfg.Sink)
	} else {
		cfg.Sink = tally
	}
	engine, err := replay.New(cfg)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	r, err := runner.New(engine, sc, tally, rc)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
