package datadog

import (
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"chunkread/internal/metrics"
)

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", got)
	}
	got := labelsToTags(metrics.Labels{"step": "read", "job": "j1", "status": "success"})
	want := []string{"job:j1", "status:success", "step:read"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("labelsToTags = %v, want %v", got, want)
	}
}

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend with empty Addr: want error")
	}
}

// TestBackendSendsToAgent points the client at a local UDP socket standing
// in for the DogStatsD agent and checks that a counter arrives on Flush.
func TestBackendSendsToAgent(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen: %v", err)
	}
	defer conn.Close()

	b, err := NewBackend(Config{Addr: conn.LocalAddr().String(), Namespace: "chunkread."})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.ChunksTotal, 2, metrics.Labels{"outcome": "complete"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// The client may also emit its own telemetry; read until the counter shows up.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	want := "chunkread." + metrics.ChunksTotal + ":2|c"
	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			t.Fatalf("counter %q not received: %v", want, err)
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if strings.HasPrefix(line, want) {
				if !strings.Contains(line, "outcome:complete") {
					t.Fatalf("line %q lacks tag", line)
				}
				return
			}
		}
	}
}

type sent struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	mu      sync.Mutex
	sent    []sent
	failOn  string
	closed  int
	closeEr error
}

func (f *fakeClient) add(kind, name string, v float64, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.failOn {
		return errors.New("write: connection refused")
	}
	f.sent = append(f.sent, sent{kind, name, v, tags})
	return nil
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	return f.add("count", name, float64(value), tags)
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	return f.add("histogram", name, value, tags)
}

func (f *fakeClient) Close() error {
	f.closed++
	return f.closeEr
}

// TestBackendRecordsReaderMetrics installs the backend globally and drives
// it through the helpers the reader and loader call.
func TestBackendRecordsReaderMetrics(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}
	metrics.SetBackend(b)
	t.Cleanup(func() { metrics.SetBackend(nopForTest{}) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.RecordChunk("j1", "complete", "parallel")
		}()
	}
	wg.Wait()
	metrics.RecordWidening("j1", "int32", "int64")
	metrics.RecordStep("j1", "read", nil, 250*time.Millisecond)

	if err := metrics.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fc.closed != 1 {
		t.Fatalf("Close called %d times", fc.closed)
	}

	chunks := 0
	for _, s := range fc.sent {
		switch s.name {
		case metrics.ChunksTotal:
			chunks++
			if want := []string{"job:j1", "mode:parallel", "outcome:complete"}; !reflect.DeepEqual(s.tags, want) {
				t.Fatalf("chunk tags = %v, want %v", s.tags, want)
			}
		case metrics.WideningsTotal:
			if want := []string{"from:int32", "job:j1", "to:int64"}; !reflect.DeepEqual(s.tags, want) {
				t.Fatalf("widening tags = %v", s.tags)
			}
		case metrics.StepDuration:
			if s.kind != "histogram" || s.value != 0.25 {
				t.Fatalf("step duration = %+v", s)
			}
		}
	}
	if chunks != 8 {
		t.Fatalf("chunk counts = %d, want 8", chunks)
	}

	// Closed: later observations are dropped and Flush is a no-op.
	b.IncCounter(metrics.ChunksTotal, 1, nil)
	if err := b.Flush(); err != nil || fc.closed != 1 {
		t.Fatalf("second Flush = %v, closed %d", err, fc.closed)
	}
}

type nopForTest struct{}

func (nopForTest) IncCounter(string, float64, metrics.Labels)       {}
func (nopForTest) ObserveHistogram(string, float64, metrics.Labels) {}
func (nopForTest) Flush() error                                     { return nil }

func TestBackendFlushReportsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fc   *fakeClient
		want string
	}{
		{"send failures", &fakeClient{failOn: metrics.RecordsTotal}, "2 metrics could not be sent"},
		{"close failure", &fakeClient{closeEr: errors.New("broken pipe")}, "broken pipe"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := &Backend{client: tt.fc}
			b.IncCounter(metrics.RecordsTotal, 10, metrics.Labels{"kind": "parsed"})
			b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "skipped"})
			b.IncCounter(metrics.BatchesTotal, 1, nil)
			err := b.Flush()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Flush = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
