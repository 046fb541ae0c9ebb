package sink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes measurements as counters and a latency histogram.
type Prometheus struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	iterations *prometheus.CounterVec
}

// NewPrometheus registers the apireplay_* collectors with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apireplay",
			Name:      "requests_total",
			Help:      "Replayed requests by step label and outcome.",
		}, []string{"label", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apireplay",
			Name:      "request_duration_seconds",
			Help:      "Latency of replayed requests by step label.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"label"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apireplay",
			Name:      "response_bytes_total",
			Help:      "Response bytes received by step label.",
		}, []string{"label"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apireplay",
			Name:      "iterations_total",
			Help:      "Finished iterations by terminal state.",
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{p.requests, p.duration, p.bytes, p.iterations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Record(m Measurement) {
	p.requests.WithLabelValues(m.Label, m.Outcome()).Inc()
	p.duration.WithLabelValues(m.Label).Observe(m.Elapsed.Seconds())
	p.bytes.WithLabelValues(m.Label).Add(float64(m.Bytes))
}

func (p *Prometheus) RecordIteration(it Iteration) {
	p.iterations.WithLabelValues(it.State).Inc()
}
