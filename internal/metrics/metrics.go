// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a parse job.
//
// The package exposes a narrow interface (Backend) focused on counters and
// timing data. A global, pluggable backend defaults to a no-op
// implementation, so metrics are always safe to call even when no real
// backend is configured. Concrete systems live in subpackages (prompush,
// datadog) so the reader and the CLI depend only on this package.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal      = "chunkread_step_total"
	StepDuration   = "chunkread_step_duration_seconds"
	RecordsTotal   = "chunkread_records_total"
	BatchesTotal   = "chunkread_batches_total"
	ChunksTotal    = "chunkread_chunks_total"
	WideningsTotal = "chunkread_widenings_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one job step
// (sniff, resolve, read, merge, export, load).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Kinds used by the reader and loader:
//   - "parsed"
//   - "skipped"
//   - "malformed_quote"
//   - "inserted"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments a batch-level counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordChunk counts one chunk parse attempt by outcome ("complete",
// "type_mismatch", "unresolvable") and mode ("parallel" or "serial").
func RecordChunk(job, outcome, mode string) {
	backend.IncCounter(ChunksTotal, 1, Labels{
		"job":     job,
		"outcome": outcome,
		"mode":    mode,
	})
}

// RecordWidening counts one column type widening.
func RecordWidening(job, from, to string) {
	backend.IncCounter(WideningsTotal, 1, Labels{
		"job":  job,
		"from": from,
		"to":   to,
	})
}
