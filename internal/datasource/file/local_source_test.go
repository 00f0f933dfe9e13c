package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func writeTemp(t testing.TB, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return p
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// TestLocalOpen covers plain and compressed files, a missing file, and a
// pre-cancelled context.
func TestLocalOpen(t *testing.T) {
	t.Parallel()

	const payload = "a,b\n1,2\n"
	cases := []struct {
		name            string
		path            func(t *testing.T) string
		ctx             context.Context
		wantErrIs       error
		wantErrContains string
	}{
		{
			name: "plain",
			path: func(t *testing.T) string { return writeTemp(t, "data.csv", []byte(payload)) },
			ctx:  context.Background(),
		},
		{
			name: "zstd",
			path: func(t *testing.T) string { return writeTemp(t, "data.csv.zst", zstdBytes(t, []byte(payload))) },
			ctx:  context.Background(),
		},
		{
			name:            "missing",
			path:            func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.csv") },
			ctx:             context.Background(),
			wantErrIs:       os.ErrNotExist,
			wantErrContains: "open ",
		},
		{
			name:      "cancelled",
			path:      func(t *testing.T) string { return writeTemp(t, "data.csv", []byte(payload)) },
			ctx:       cancelled(),
			wantErrIs: context.Canceled,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			rc, err := NewLocal(c.path(t)).Open(c.ctx)
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("err = %v, want %v", err, c.wantErrIs)
				}
				if !strings.Contains(err.Error(), c.wantErrContains) {
					t.Fatalf("error %q does not contain %q", err, c.wantErrContains)
				}
				if rc != nil {
					t.Fatalf("got non-nil ReadCloser on error: %T", rc)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != payload {
				t.Fatalf("content = %q, want %q", got, payload)
			}
		})
	}
}

func TestLocalMap(t *testing.T) {
	t.Parallel()

	body := []byte("id,name\n1,x\n")
	bom := append([]byte{0xEF, 0xBB, 0xBF}, body...)

	cases := []struct {
		name       string
		file       string
		data       []byte
		want       []byte
		dataStart  int
		wantMapped bool
	}{
		{"plain", "a.csv", body, body, 0, true},
		{"bom", "b.csv", bom, bom, 3, true},
		{"zstd", "c.csv.zst", zstdBytes(t, body), body, 0, false},
		{"zstd bom", "d.CSV.ZST", zstdBytes(t, bom), bom, 3, false},
		{"empty", "e.csv", nil, []byte{}, 0, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewLocal(writeTemp(t, c.file, c.data)).Map(context.Background())
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			if string(m.Data) != string(c.want) {
				t.Fatalf("Data = %q, want %q", m.Data, c.want)
			}
			if m.DataStart != c.dataStart || m.Mapped() != c.wantMapped {
				t.Fatalf("DataStart = %d, Mapped = %v", m.DataStart, m.Mapped())
			}
			if err := m.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if m.Data != nil || m.Mapped() {
				t.Fatal("mapping still live after Close")
			}
			if err := m.Close(); err != nil {
				t.Fatalf("second Close: %v", err)
			}
		})
	}
}

func TestLocalMapErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewLocal(filepath.Join(t.TempDir(), "nope.csv")).Map(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: err = %v", err)
	}
	if _, err := NewLocal(t.TempDir()).Map(context.Background()); err == nil {
		t.Fatal("directory mapped")
	}
	if _, err := NewLocal(writeTemp(t, "x.csv", []byte("x"))).Map(cancelled()); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: err = %v", err)
	}
	if _, err := NewLocal(writeTemp(t, "bad.zst", []byte("not zstd"))).Map(context.Background()); err == nil {
		t.Fatal("corrupt zstd accepted")
	}
}

func BenchmarkLocalMap(b *testing.B) {
	p := writeTemp(b, "data.csv", []byte(strings.Repeat("1,abc,2.5\n", 100000)))
	src := NewLocal(p)
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m, err := src.Map(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if err := m.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
