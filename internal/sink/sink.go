// Package sink collects measurements produced by replayed requests. Every
// sink is safe for concurrent use by all workers of a run.
package sink

import (
	"errors"
	"io"
	"time"
)

// Error classes carried by failed measurements.
const (
	ClassNetwork = "network"
	ClassTimeout = "timeout"
	ClassStatus  = "status"
)

// Measurement is one instrumented HTTP call: the final attempt of a step.
type Measurement struct {
	Worker     int           `json:"worker"`
	Iteration  int           `json:"iteration"`
	TestID     int           `json:"test_id"`
	Label      string        `json:"label"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	Start      time.Time     `json:"start"`
	Elapsed    time.Duration `json:"elapsed"`
	Status     int           `json:"status"`
	Bytes      int64         `json:"bytes"`
	Attempts   int           `json:"attempts"`
	OK         bool          `json:"ok"`
	ErrorClass string        `json:"error_class,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Outcome is "ok" or the error class of a failed call.
func (m Measurement) Outcome() string {
	if m.OK {
		return "ok"
	}
	if m.ErrorClass != "" {
		return m.ErrorClass
	}
	return "error"
}

// Iteration summarizes one finished iteration.
type Iteration struct {
	Worker    int           `json:"worker"`
	Iteration int           `json:"iteration"`
	State     string        `json:"state"`
	Start     time.Time     `json:"start"`
	Elapsed   time.Duration `json:"elapsed"`
	Steps     int           `json:"steps"`
	Requests  int           `json:"requests"`
	Failures  int           `json:"failures"`
	Error     string        `json:"error,omitempty"`
}

// Sink receives measurements.
type Sink interface {
	Record(Measurement)
}

// IterationSink is implemented by sinks that also want iteration summaries.
type IterationSink interface {
	RecordIteration(Iteration)
}

// RecordIteration forwards it to s when s accepts iteration summaries.
func RecordIteration(s Sink, it Iteration) {
	if is, ok := s.(IterationSink); ok {
		is.RecordIteration(it)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Record(Measurement) {}

// Multi fans out to several sinks in order.
type Multi []Sink

// NewMulti drops nil entries and unwraps a single sink.
func NewMulti(sinks ...Sink) Sink {
	var out Multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Discard{}
	case 1:
		return out[0]
	}
	return out
}

func (m Multi) Record(ms Measurement) {
	for _, s := range m {
		s.Record(ms)
	}
}

func (m Multi) RecordIteration(it Iteration) {
	for _, s := range m {
		RecordIteration(s, it)
	}
}

// Close closes every member that is an io.Closer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes s when it is an io.Closer.
func Close(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
