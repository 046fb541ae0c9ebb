package sink

import (
	"math"
	"sort"
	"sync"
	"time"
)

// StepStats aggregates the measurements of one test id.
type StepStats struct {
	TestID   int            `json:"test_id"`
	Label    string         `json:"label"`
	Requests int            `json:"requests"`
	Failures int            `json:"failures"`
	Errors   map[string]int `json:"errors,omitempty"`
	Statuses map[int]int    `json:"statuses,omitempty"`
	Bytes    int64          `json:"bytes"`
	Min      time.Duration  `json:"min"`
	Mean     time.Duration  `json:"mean"`
	Max      time.Duration  `json:"max"`
	P90      time.Duration  `json:"p90"`
	P95      time.Duration  `json:"p95"`
}

type stepTally struct {
	label     string
	requests  int
	failures  int
	errors    map[string]int
	statuses  map[int]int
	bytes     int64
	total     time.Duration
	min, max  time.Duration
	latencies []time.Duration
}

// Tally counts per-step outcomes and latencies, and iterations per state.
type Tally struct {
	mu         sync.Mutex
	steps      map[int]*stepTally
	iterations map[string]int
}

func NewTally() *Tally {
	return &Tally{steps: map[int]*stepTally{}, iterations: map[string]int{}}
}

func (t *Tally) Record(m Measurement) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.steps[m.TestID]
	if !ok {
		s = &stepTally{label: m.Label, errors: map[string]int{}, statuses: map[int]int{}, min: -1}
		t.steps[m.TestID] = s
	}
	s.requests++
	if !m.OK {
		s.failures++
		s.errors[m.Outcome()]++
	}
	if m.Status > 0 {
		s.statuses[m.Status]++
	}
	s.bytes += m.Bytes
	s.total += m.Elapsed
	if s.min < 0 || m.Elapsed < s.min {
		s.min = m.Elapsed
	}
	if m.Elapsed > s.max {
		s.max = m.Elapsed
	}
	s.latencies = append(s.latencies, m.Elapsed)
}

func (t *Tally) RecordIteration(it Iteration) {
	t.mu.Lock()
	t.iterations[it.State]++
	t.mu.Unlock()
}

// Steps returns a snapshot ordered by test id.
func (t *Tally) Steps() []StepStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StepStats, 0, len(t.steps))
	for id, s := range t.steps {
		sorted := append([]time.Duration(nil), s.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		st := StepStats{
			TestID:   id,
			Label:    s.label,
			Requests: s.requests,
			Failures: s.failures,
			Errors:   copyCounts(s.errors),
			Statuses: copyCounts(s.statuses),
			Bytes:    s.bytes,
			Min:      s.min,
			Max:      s.max,
			P90:      percentile(sorted, 90),
			P95:      percentile(sorted, 95),
		}
		if s.requests > 0 {
			st.Mean = s.total / time.Duration(s.requests)
		}
		if st.Min < 0 {
			st.Min = 0
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestID < out[j].TestID })
	return out
}

// Iterations returns the number of finished iterations per state.
func (t *Tally) Iterations() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyCounts(t.iterations)
}

// Totals returns request and failure counts across all steps.
func (t *Tally) Totals() (requests, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.steps {
		requests += s.requests
		failures += s.failures
	}
	return requests, failures
}

func copyCounts[K comparable](in map[K]int) map[K]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[K]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// percentile uses the nearest-rank index over a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	k := int(math.Ceil(float64(len(sorted))*float64(p)/100)) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(sorted) {
		k = len(sorted) - 1
	}
	return sorted[k]
}
