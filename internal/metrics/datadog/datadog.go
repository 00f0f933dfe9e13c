// Package datadog sends reader and loader metrics to a DogStatsD agent.
//
// Metric names from the metrics package are sent under the configured
// namespace; labels become "key:value" tags sorted by key.
package datadog

import (
	"fmt"
	"sort"
	"sync/atomic"

	"chunkread/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace prefixes every metric name, e.g. "chunkread.".
	Namespace string

	// GlobalTags are added to every metric, e.g. "job:vehicles".
	GlobalTags []string

	// Telemetry keeps the client's own statsd.* metrics. Off by default.
	Telemetry bool
}

// client is the part of *statsd.Client the backend uses.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Backend implements metrics.Backend over a DogStatsD client. After Flush
// the client is closed and further observations are dropped.
type Backend struct {
	client client
	errs   atomic.Int64
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend dials the agent at cfg.Addr.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	if !cfg.Telemetry {
		opts = append(opts, statsd.WithoutTelemetry())
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client for %s: %w", cfg.Addr, err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a count. Fractional deltas are truncated; every caller
// counts whole rows, chunks or batches.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.record(b.client.Count(name, int64(delta), labelsToTags(labels), 1))
}

// ObserveHistogram sends a histogram sample, e.g. a step duration.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.record(b.client.Histogram(name, value, labelsToTags(labels), 1))
}

func (b *Backend) record(err error) {
	if err != nil {
		b.errs.Add(1)
	}
}

// Flush closes the client, which sends anything still buffered. Send
// errors seen since the backend was created are reported here.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	if err != nil {
		return fmt.Errorf("datadog: close: %w", err)
	}
	if n := b.errs.Load(); n > 0 {
		return fmt.Errorf("datadog: %d metrics could not be sent", n)
	}
	return nil
}

// labelsToTags converts labels into "key:value" tags sorted by key so equal
// label sets produce equal tag lists.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	keys := make([]string, 0, len(lbls))
	for k := range lbls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(lbls))
	for _, k := range keys {
		out = append(out, k+":"+lbls[k])
	}
	return out
}
