package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/loykin/apireplay/internal/common"
)

// Writer persists measurements; the run store implements it.
type Writer interface {
	SaveMeasurements(ctx context.Context, runID string, ms []Measurement) error
	SaveIteration(ctx context.Context, runID string, it Iteration) error
}

// Store batches measurements into a Writer. Write failures are logged and
// counted, never returned to workers.
type Store struct {
	mu      sync.Mutex
	w       Writer
	runID   string
	batch   int
	buf     []Measurement
	dropped int
	errs    []error
	logger  *common.Logger
}

// NewStore buffers up to batch measurements between writes.
func NewStore(w Writer, runID string, batch int) *Store {
	if batch <= 0 {
		batch = 200
	}
	return &Store{
		w:      w,
		runID:  runID,
		batch:  batch,
		logger: common.GetLogger().WithComponent("sink").WithStore("run-store"),
	}
}

func (s *Store) Record(m Measurement) {
	s.mu.Lock()
	s.buf = append(s.buf, m)
	if len(s.buf) < s.batch {
		s.mu.Unlock()
		return
	}
	pending := s.buf
	s.buf = nil
	s.mu.Unlock()
	s.write(context.Background(), pending)
}

func (s *Store) RecordIteration(it Iteration) {
	if err := s.w.SaveIteration(context.Background(), s.runID, it); err != nil {
		s.fail(err, 0)
	}
}

func (s *Store) write(ctx context.Context, ms []Measurement) {
	if len(ms) == 0 {
		return
	}
	if err := s.w.SaveMeasurements(ctx, s.runID, ms); err != nil {
		s.fail(err, len(ms))
	}
}

func (s *Store) fail(err error, n int) {
	s.logger.Error("failed to persist", "run_id", s.runID, "measurements", n, "error", err)
	s.mu.Lock()
	s.dropped += n
	if len(s.errs) < 10 {
		s.errs = append(s.errs, err)
	}
	s.mu.Unlock()
}

// Flush writes whatever is buffered.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.buf
	s.buf = nil
	s.mu.Unlock()
	s.write(ctx, pending)
}

// Dropped is the number of measurements that could not be written.
func (s *Store) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes and reports the write errors seen during the run.
func (s *Store) Close() error {
	s.Flush(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}
