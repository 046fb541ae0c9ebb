// Package runner drives a script with K concurrent virtual users over an
// iteration count or a duration, and aggregates what they produced.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/replay"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/internal/sink"
	"golang.org/x/sync/errgroup"
)

// Config describes the shape of a run.
type Config struct {
	Workers int
	// Iterations is per worker. Zero with a Duration runs until the deadline;
	// workers then pause briefly after an aborted iteration.
	Iterations int
	// Duration stops workers from starting new iterations once elapsed.
	Duration time.Duration
	// RampUp spreads worker start times evenly over this period.
	RampUp time.Duration

	// OnIteration is called from the worker goroutine after each iteration.
	OnIteration func(*replay.IterationResult)
	Logger      *common.Logger
}

// Runner owns one run. It is not reusable.
type Runner struct {
	engine *replay.Engine
	script *script.Script
	cfg    Config
	tally  *sink.Tally

	started   atomic.Int64 // unix nanos
	active    atomic.Int32
	completed atomic.Int64
	aborted   atomic.Int64
	cancelled atomic.Int64
}

// New checks cfg against the script. tally may be nil; when set it must be
// part of the engine's sink so that Report can carry per-step statistics.
func New(engine *replay.Engine, sc *script.Script, tally *sink.Tally, cfg Config) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("runner: engine is required")
	}
	if sc == nil || !sc.Compiled() {
		return nil, errors.New("runner: script is not compiled")
	}
	if cfg.Workers < 0 || cfg.Iterations < 0 || cfg.Duration < 0 || cfg.RampUp < 0 {
		return nil, fmt.Errorf("runner: negative value in %+v", cfg)
	}
	if cfg.Workers == 0 {
		cfg.Workers = constants.DefaultWorkers
	}
	if cfg.Iterations == 0 && cfg.Duration == 0 {
		cfg.Iterations = constants.DefaultIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = common.GetLogger()
	}
	cfg.Logger = cfg.Logger.WithComponent("runner")
	return &Runner{engine: engine, script: sc, cfg: cfg, tally: tally}, nil
}

// Run blocks until every worker has finished its iterations, the duration
// has elapsed, or ctx is cancelled. A cancelled ctx is the global stop
// signal: no worker starts another step, and Run still returns a report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.started.CompareAndSwap(0, time.Now().UnixNano()) {
		return nil, errors.New("runner: already started")
	}
	start := time.Now()

	runCtx := ctx
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	var step time.Duration
	if r.cfg.RampUp > 0 && r.cfg.Workers > 1 {
		step = r.cfg.RampUp / time.Duration(r.cfg.Workers)
	}

	r.cfg.Logger.Info("run starting",
		"script", r.script.Name,
		"workers", r.cfg.Workers,
		"iterations", r.cfg.Iterations,
		"duration", r.cfg.Duration,
		"ramp_up", r.cfg.RampUp)

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < r.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			if step > 0 && !sleep(gctx, step*time.Duration(worker)) {
				return nil
			}
			r.worker(gctx, worker)
			return nil
		})
	}
	// Workers report through the counters and never return an error.
	_ = g.Wait()

	rep := r.report(time.Since(start))
	if ctx.Err() != nil {
		rep.Interrupted = true
	}
	r.cfg.Logger.Info("run finished",
		"completed", rep.Completed,
		"aborted", rep.Aborted,
		"cancelled", rep.Cancelled,
		"elapsed", rep.Elapsed,
		"exit_code", rep.ExitCode())
	return rep, nil
}

func (r *Runner) worker(ctx context.Context, worker int) {
	r.active.Add(1)
	defer r.active.Add(-1)

	session := r.engine.NewSession(worker)
	logger := r.cfg.Logger.WithWorker(worker)
	logger.Debug("worker started")

	for n := 0; r.cfg.Iterations == 0 || n < r.cfg.Iterations; n++ {
		if ctx.Err() != nil {
			break
		}
		res := session.RunIteration(ctx, r.script)
		switch res.State {
		case replay.Completed:
			r.completed.Add(1)
		case replay.Aborted:
			r.aborted.Add(1)
			logger.Warn("iteration aborted", "iteration", res.Iteration, "error", res.Err)
		case replay.Cancelled:
			r.cancelled.Add(1)
		}
		if r.cfg.OnIteration != nil {
			r.cfg.OnIteration(res)
		}
		if res.State == replay.Cancelled {
			break
		}
		if res.State == replay.Aborted && r.cfg.Iterations == 0 && !sleep(ctx, constants.AbortPause) {
			break
		}
	}
	logger.Debug("worker finished")
}

// Progress is a point-in-time view of a running Runner.
type Progress struct {
	Script        string        `json:"script"`
	Workers       int           `json:"workers"`
	ActiveWorkers int           `json:"active_workers"`
	Iterations    int           `json:"iterations_per_worker"`
	Duration      time.Duration `json:"duration"`
	Elapsed       time.Duration `json:"elapsed"`
	Completed     int64         `json:"completed"`
	Aborted       int64         `json:"aborted"`
	Cancelled     int64         `json:"cancelled"`
}

// Progress is safe to call from any goroutine.
func (r *Runner) Progress() Progress {
	p := Progress{
		Script:        r.script.Name,
		Workers:       r.cfg.Workers,
		ActiveWorkers: int(r.active.Load()),
		Iterations:    r.cfg.Iterations,
		Duration:      r.cfg.Duration,
		Completed:     r.completed.Load(),
		Aborted:       r.aborted.Load(),
		Cancelled:     r.cancelled.Load(),
	}
	if ns := r.started.Load(); ns != 0 {
		p.Elapsed = time.Since(time.Unix(0, ns))
	}
	return p
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
