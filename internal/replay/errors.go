package replay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/pkg/env"
)

// NetworkError is a failed connection or an interrupted exchange.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is an HTTP call that exceeded Config.Timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Timeout, e.URL)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UnexpectedStatusError is a response outside the step's accepted set.
type UnexpectedStatusError struct {
	Status   int
	Accepted []int // empty means the default 200..399
}

func (e *UnexpectedStatusError) Error() string {
	if len(e.Accepted) == 0 {
		return fmt.Sprintf("unexpected status %d (want 2xx or 3xx)", e.Status)
	}
	want := make([]string, len(e.Accepted))
	for i, c := range e.Accepted {
		want[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("unexpected status %d (want %s)", e.Status, strings.Join(want, ","))
}

// UnboundTokenError is a template reference to a token nothing has bound
// earlier in the iteration. It always aborts the iteration.
type UnboundTokenError = env.UnboundTokenError

// StepError ties the error that ended an iteration to its step.
type StepError struct {
	TestID int
	Label  string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.TestID, e.Label, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// classifyTransport turns a client error into a NetworkError or TimeoutError.
func classifyTransport(callCtx context.Context, method, url string, timeout time.Duration, err error) error {
	var ne net.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{URL: url, Timeout: timeout, Err: err}
	}
	return &NetworkError{Op: method, URL: url, Err: err}
}

func retryable(err error) bool {
	var ne *NetworkError
	var te *TimeoutError
	return errors.As(err, &ne) || errors.As(err, &te)
}

// errorClass maps a step error to the class recorded in measurements.
func errorClass(err error) string {
	var te *TimeoutError
	var ne *NetworkError
	var se *UnexpectedStatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return sink.ClassTimeout
	case errors.As(err, &ne):
		return sink.ClassNetwork
	case errors.As(err, &se):
		return sink.ClassStatus
	default:
		return "error"
	}
}
