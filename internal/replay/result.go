package replay

import (
	"net/http"
	"time"
)

// State is the lifecycle of one iteration.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	Aborted
	Cancelled
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Aborted:
		return "Aborted"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StepResult is the outcome of the final attempt of one request step.
type StepResult struct {
	TestID   int
	Label    string
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte // decoded per Content-Encoding
	Bytes    int64  // as received on the wire
	Start    time.Time
	Elapsed  time.Duration
	Attempts int
	Err      error
}

// OK reports whether a response arrived with an accepted status.
func (r *StepResult) OK() bool { return r != nil && r.Err == nil }

// IterationResult is what one pass through a script produced.
type IterationResult struct {
	Worker    int
	Iteration int
	State     State
	Start     time.Time
	Elapsed   time.Duration
	Steps     int // steps finished, waits included
	Requests  int
	Failures  int // failed requests that did not end the iteration
	Err       error
	Sample    *StepResult
	// Tokens is the iteration's bound tokens when it ended.
	Tokens map[string]string
}

// Success reports whether the iteration reached its last step.
func (r *IterationResult) Success() bool { return r != nil && r.State == Completed }
