package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/loykin/apireplay/cmd/apireplay/config"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/runner"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// runSinks is everything measurements flow into during one run.
type runSinks struct {
	Tally    *sink.Tally
	Registry *prometheus.Registry
	Store    *store.Store
	RunID    string

	storeSink *sink.Store
	all       []sink.Sink
}

// Sink is the fan-out handed to the engine.
func (s *runSinks) Sink() sink.Sink { return sink.NewMulti(s.all...) }

// buildSinks opens the configured sinks. On error everything opened so far
// is closed again.
func buildSinks(ctx context.Context, doc *config.ConfigDoc, logger *common.Logger) (rs *runSinks, err error) {
	rs = &runSinks{Tally: sink.NewTally()}
	rs.all = append(rs.all, rs.Tally)
	defer func() {
		if err != nil {
			_ = rs.close(ctx, nil)
			rs = nil
		}
	}()

	if path := doc.Sinks.CSV; path != "" {
		c, err := sink.OpenCSV(path)
		if err != nil {
			return rs, err
		}
		rs.all = append(rs.all, c)
	}
	if doc.Sinks.Log {
		rs.all = append(rs.all, sink.NewLog(logger))
	}
	if doc.Sinks.Prometheus || doc.Monitor.Addr != "" {
		rs.Registry = prometheus.NewRegistry()
		rs.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p, err := sink.NewPrometheus(rs.Registry)
		if err != nil {
			return rs, fmt.Errorf("prometheus sink: %w", err)
		}
		rs.all = append(rs.all, p)
	}

	if scfg, enabled := doc.Store.StoreConfig(); enabled {
		st, err := store.Open(scfg)
		if err != nil {
			return rs, err
		}
		rs.Store = st
		id, err := st.CreateRun(ctx, store.RunInfo{
			Name:       doc.Run.Name,
			Script:     filepath.Base(doc.ScriptPath()),
			Workers:    doc.Run.Workers,
			Iterations: doc.Run.Iterations,
			Duration:   doc.Run.Duration,
		})
		if err != nil {
			return rs, fmt.Errorf("create run: %w", err)
		}
		rs.RunID = id
		rs.storeSink = sink.NewStore(st, id, doc.Store.Batch)
		rs.all = append(rs.all, rs.storeSink)
	}
	return rs, nil
}

// dropped counts measurements the store could not persist.
func (s *runSinks) dropped() int {
	if s.storeSink == nil {
		return 0
	}
	return s.storeSink.Dropped()
}

// close flushes and closes every sink and, when rep is set, records the run
// summary in the store.
func (s *runSinks) close(ctx context.Context, rep *runner.Report) error {
	var errs []error
	for _, sk := range s.all {
		if err := sink.Close(sk); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Store != nil {
		if rep != nil && s.RunID != "" {
			sum := store.Summary{
				Completed: rep.Completed,
				Aborted:   rep.Aborted,
				Cancelled: rep.Cancelled,
				Requests:  rep.Requests,
				Failures:  rep.Failures,
				ExitCode:  rep.ExitCode(),
			}
			if err := s.Store.FinishRun(context.WithoutCancel(ctx), s.RunID, sum); err != nil {
				errs = append(errs, fmt.Errorf("finish run: %w", err))
			}
		}
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
