package sink

import "sync"

// Memory keeps everything in process. Tests and small runs use it.
type Memory struct {
	mu           sync.Mutex
	measurements []Measurement
	iterations   []Iteration
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(ms Measurement) {
	m.mu.Lock()
	m.measurements = append(m.measurements, ms)
	m.mu.Unlock()
}

func (m *Memory) RecordIteration(it Iteration) {
	m.mu.Lock()
	m.iterations = append(m.iterations, it)
	m.mu.Unlock()
}

// Measurements returns a copy in arrival order.
func (m *Memory) Measurements() []Measurement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Measurement(nil), m.measurements...)
}

// Iterations returns a copy in arrival order.
func (m *Memory) Iterations() []Iteration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Iteration(nil), m.iterations...)
}

// ByWorker returns the measurements of one worker in arrival order.
func (m *Memory) ByWorker(worker int) []Measurement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Measurement
	for _, ms := range m.measurements {
		if ms.Worker == worker {
			out = append(out, ms)
		}
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.measurements)
}
