// Package file implements a local filesystem-backed data source. Map exposes
// a whole file as one immutable byte slice for the parallel reader: plain
// files are memory-mapped read-only, .zst files are decompressed into memory.
package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a new Local data source bound to the provided filesystem
// path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path for streaming reads. A .zst file is
// decompressed on the fly.
//
// If the context is already done, Open returns its error without touching
// the filesystem. Filesystem errors are wrapped with the path and still
// match errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if !l.compressed() {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd %s: %w", l.path, err)
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

func (l *Local) compressed() bool {
	return strings.HasSuffix(strings.ToLower(l.path), ".zst")
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// Mapping is the full content of a file. Data must not be modified; for
// mapped files the pages are read-only and a write faults.
type Mapping struct {
	Data []byte

	// DataStart is the offset of the first byte after a UTF-8 byte order
	// mark, or 0.
	DataStart int

	mapped bool
}

// Mapped reports whether Data is backed by an mmap rather than the heap.
func (m *Mapping) Mapped() bool { return m.mapped }

// Close releases the mapping. Data must not be used afterwards.
func (m *Mapping) Close() error {
	if !m.mapped || m.Data == nil {
		m.Data = nil
		return nil
	}
	err := unix.Munmap(m.Data)
	m.Data = nil
	m.mapped = false
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// Map returns the whole file as one byte slice. Plain files are mapped
// read-only with sequential-access hints; .zst files are decompressed into
// memory. An empty file yields an empty, unmapped Mapping.
func (l *Local) Map(ctx context.Context) (*Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.compressed() {
		return l.decompress(ctx)
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", l.path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("map %s: is a directory", l.path)
	}
	size := st.Size()
	if size == 0 {
		return &Mapping{Data: []byte{}}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("map %s: %d bytes does not fit in memory", l.path, size)
	}

	fd := int(f.Fd())
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_WILLNEED)

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", l.path, err)
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return &Mapping{Data: data, DataStart: bomLen(data), mapped: true}, nil
}

func (l *Local) decompress(ctx context.Context) (*Mapping, error) {
	rc, err := l.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if st, err := os.Stat(l.path); err == nil {
		// Text usually compresses 3-5x.
		buf.Grow(int(st.Size()) * 4)
	}
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("decompress %s: %w", l.path, err)
	}
	data := buf.Bytes()
	return &Mapping{Data: data, DataStart: bomLen(data)}, nil
}

func bomLen(b []byte) int {
	if bytes.HasPrefix(b, utf8BOM) {
		return len(utf8BOM)
	}
	return 0
}
