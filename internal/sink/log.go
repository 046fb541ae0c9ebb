package sink

import (
	"github.com/loykin/apireplay/internal/common"
)

// Log writes every measurement as a structured log line. Successful calls
// are logged at debug level and failures at warn.
type Log struct {
	L *common.Logger
}

func NewLog(l *common.Logger) *Log {
	if l == nil {
		l = common.GetLogger()
	}
	return &Log{L: l.WithComponent("measure")}
}

func (s *Log) Record(m Measurement) {
	args := []any{
		"worker", m.Worker,
		"iteration", m.Iteration,
		"test_id", m.TestID,
		"label", m.Label,
		"status", m.Status,
		"elapsed_ms", m.Elapsed.Milliseconds(),
		"bytes", m.Bytes,
		"attempts", m.Attempts,
	}
	if m.OK {
		s.L.Debug("request", args...)
		return
	}
	s.L.Warn("request failed", append(args, "error_class", m.ErrorClass, "error", m.Error)...)
}

func (s *Log) RecordIteration(it Iteration) {
	args := []any{
		"worker", it.Worker,
		"iteration", it.Iteration,
		"state", it.State,
		"elapsed_ms", it.Elapsed.Milliseconds(),
		"requests", it.Requests,
		"failures", it.Failures,
	}
	if it.Error != "" {
		s.L.Error("iteration ended", append(args, "error", it.Error)...)
		return
	}
	s.L.Debug("iteration ended", args...)
}
