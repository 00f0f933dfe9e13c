// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A parse job is short-lived, so the registry is pushed on
// Flush instead of being scraped.
package prompush

import (
	"fmt"

	"chunkread/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// series is a counter and the label keys it reads from metrics.Labels, in
// collector order. The "job" label is the Pushgateway grouping key and is
// never a collector label.
type series struct {
	vec  *prometheus.CounterVec
	keys []string
}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	counters  map[string]series
	durations *prometheus.SummaryVec
}

var _ metrics.Backend = (*Backend)(nil)

var counterDefs = []struct {
	name, help string
	keys       []string
}{
	{metrics.StepTotal, "Job step executions by step and status.", []string{"step", "status"}},
	{metrics.RecordsTotal, "Rows by kind (parsed, skipped, malformed_quote, inserted).", []string{"kind"}},
	{metrics.BatchesTotal, "COPY batches flushed.", nil},
	{metrics.ChunksTotal, "Chunk parse attempts by outcome and dispatch mode.", []string{"outcome", "mode"}},
	{metrics.WideningsTotal, "Column type widenings by source and target type.", []string{"from", "to"}},
}

// NewBackend registers the chunkread series on a fresh registry. jobName
// defaults to "chunkread"; gatewayURL is the Pushgateway base URL.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "chunkread"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]series, len(counterDefs)),
	}
	for _, d := range counterDefs {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: d.name, Help: d.help}, d.keys)
		if err := b.reg.Register(vec); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", d.name, err)
		}
		b.counters[d.name] = series{vec: vec, keys: d.keys}
	}
	b.durations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       metrics.StepDuration,
		Help:       "Job step duration in seconds by step and status.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"step", "status"})
	if err := b.reg.Register(b.durations); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.StepDuration, err)
	}
	return b, nil
}

// IncCounter adds delta to a known series. Unknown names are ignored and
// missing labels read as "".
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	s, ok := b.counters[name]
	if !ok {
		return
	}
	s.vec.WithLabelValues(values(s.keys, labels)...).Add(delta)
}

// ObserveHistogram records a step duration; other names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.durations == nil {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}

func values(keys []string, labels metrics.Labels) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = labels[k]
	}
	return out
}
