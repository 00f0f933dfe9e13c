// Package reader runs the parallel parse: it resolves chunk boundaries,
// parses chunks concurrently, widens column types on mismatch, re-scans
// chunks whose start could not be trusted, and merges everything in file
// order.
//
// Only a fully parsed, contiguous set of chunks is merged. A worker's cells
// are never visible to the caller unless every chunk completed with the
// final column types.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"chunkread/internal/bitmap"
	"chunkread/internal/chunk"
	"chunkread/internal/column"
	"chunkread/internal/dialect"
	"chunkread/internal/field"
	"chunkread/internal/metrics"
)

// Options configures Read. ParseChunk uses Fill, SkipEmptyLines and
// SkipUTF8Check.
type Options struct {
	// Workers bounds concurrent chunk parses. Default GOMAXPROCS.
	Workers int
	// Chunks is the requested number of chunks. Default Workers.
	Chunks int

	// Fill NA-fills short rows instead of skipping them.
	Fill bool
	// SkipEmptyLines ignores blank lines.
	SkipEmptyLines bool
	// SkipUTF8Check turns off the check that makes invalid UTF-8 in a
	// string field a fatal ErrEncoding. Unchecked bytes are kept as they are.
	SkipUTF8Check bool
	// VerifyBuffer fingerprints every chunk and fails with
	// ErrBufferModified if the bytes change between attempts.
	VerifyBuffer bool

	Boundary chunk.Options

	// Names are the column names used by Merge. Default col1..colN.
	Names []string

	// Job labels metrics. Default "chunkread".
	Job string
	// Debug logs every round, widening and serial re-scan.
	Debug bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Chunks <= 0 {
		o.Chunks = o.Workers
	}
	if o.Job == "" {
		o.Job = "chunkread"
	}
	return o
}

// Stats summarizes how a read went.
type Stats struct {
	Chunks         int
	Rounds         int
	Attempts       int
	Widenings      int
	Resynchronized int
	Unresolvable   int
	SerialRescans  int
	Rows           int
	SkippedRows    int
	MalformedQuote int
}

// Result is the outcome of Read.
type Result struct {
	Table *column.Table
	// Types are the final column types.
	Types []field.Type
	// Chunks are the chunk coordinates the merged output was parsed with.
	Chunks []chunk.Coordinates
	// Attempts counts parse attempts per chunk.
	Attempts []int
	// Issues lists every recovered problem in file order.
	Issues []*ParseError
	Stats  Stats
}

// run is the state of one Read call.
type run struct {
	buf   []byte
	span  chunk.Span
	d     *dialect.Dialect
	opts  Options
	types []field.Type

	orig     []chunk.Coordinates
	coords   []chunk.Coordinates
	outs     []*ChunkOutput
	attempts []int
	sums     []uint64

	stats Stats
}

// Read parses buf[span.Start:span.End] into one column per entry of types.
// types is the initial guess; columns are widened as needed and the final
// types are in the Result. The buffer must not change until Read returns.
func Read(ctx context.Context, buf []byte, span chunk.Span, types []field.Type, d *dialect.Dialect, opts Options) (res *Result, err error) {
	opts = opts.withDefaults()
	start := time.Now()
	defer func() { metrics.RecordStep(opts.Job, "read", err, time.Since(start)) }()

	if len(types) == 0 {
		return nil, errors.New("reader: no columns")
	}
	for j, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("reader: column %d: invalid type %s", j, t)
		}
	}
	if opts.Names != nil && len(opts.Names) != len(types) {
		return nil, fmt.Errorf("reader: %d names for %d columns", len(opts.Names), len(types))
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("reader: dialect: %w", err)
	}
	if span.End > len(buf) || span.Start < 0 || span.Start > span.End {
		return nil, fmt.Errorf("reader: span [%d,%d) outside buffer of %d bytes", span.Start, span.End, len(buf))
	}

	// Records are never read past span.End.
	buf = buf[:span.End]
	r := &run{
		buf:   buf,
		span:  span,
		d:     d,
		opts:  opts,
		types: append([]field.Type(nil), types...),
	}
	r.orig = chunk.ResolveBoundaries(buf, span, opts.Chunks, len(types), opts.Fill, opts.SkipEmptyLines, d, opts.Boundary)
	r.coords = append([]chunk.Coordinates(nil), r.orig...)
	n := len(r.coords)
	r.outs = make([]*ChunkOutput, n)
	r.attempts = make([]int, n)
	r.stats.Chunks = n
	for _, cc := range r.orig {
		switch cc.Boundary {
		case chunk.Resynchronized:
			r.stats.Resynchronized++
		case chunk.Unresolvable:
			r.stats.Unresolvable++
		}
	}
	if opts.VerifyBuffer {
		r.sums = make([]uint64, n)
		for i, cc := range r.orig {
			r.sums[i] = xxh3.Hash(buf[cc.Start:cc.End])
		}
	}
	if opts.Debug {
		log.Printf("reader: %d bytes in %d chunks (%d resynchronized, %d unresolvable), %d workers",
			span.Len(), n, r.stats.Resynchronized, r.stats.Unresolvable, opts.Workers)
	}

	pending := bitmap.Full(n)
	for {
		if err := r.dispatch(ctx, pending); err != nil {
			return nil, err
		}
		next, err := r.sequence(ctx)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		pending = next
	}

	if opts.VerifyBuffer {
		for i := range r.orig {
			if err := r.verify(i); err != nil {
				return nil, err
			}
		}
	}

	table, err := Merge(buf, r.outs, r.types, opts.Names, d)
	if err != nil {
		return nil, err
	}
	res = &Result{
		Table:    table,
		Types:    r.types,
		Chunks:   r.coords,
		Attempts: r.attempts,
	}
	for _, o := range r.outs {
		res.Issues = append(res.Issues, o.Issues...)
		r.stats.Rows += o.Rows
	}
	for _, is := range res.Issues {
		switch is.Kind {
		case KindColumnCountMismatch:
			r.stats.SkippedRows++
		case KindMalformedQuote:
			r.stats.MalformedQuote++
		}
	}
	for _, a := range r.attempts {
		r.stats.Attempts += a
	}
	res.Stats = r.stats

	metrics.RecordRow(opts.Job, "parsed", int64(r.stats.Rows))
	metrics.RecordRow(opts.Job, "skipped", int64(r.stats.SkippedRows))
	metrics.RecordRow(opts.Job, "malformed_quote", int64(r.stats.MalformedQuote))
	if opts.Debug {
		log.Printf("reader: %d rows, %d rounds, %d attempts, %d widenings, %d serial re-scans in %s",
			r.stats.Rows, r.stats.Rounds, r.stats.Attempts, r.stats.Widenings, r.stats.SerialRescans, time.Since(start))
	}
	return res, nil
}

// dispatch parses every pending chunk concurrently. Column types are not
// modified while a round is in flight.
func (r *run) dispatch(ctx context.Context, pending *bitmap.Bitmap) error {
	if pending.Empty() {
		return nil
	}
	r.stats.Rounds++
	if r.opts.Debug {
		log.Printf("reader: round %d: %d chunks, types %v", r.stats.Rounds, pending.Count(), r.types)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range r.coords {
		if !pending.Has(i) {
			continue
		}
		i := i
		g.Go(func() error {
			o, err := r.parse(gctx, i, "parallel")
			if err != nil {
				return err
			}
			r.outs[i] = o
			return nil
		})
	}
	return g.Wait()
}

// parse runs one attempt on chunk i with the current types.
func (r *run) parse(ctx context.Context, i int, mode string) (*ChunkOutput, error) {
	if r.attempts[i] > 0 && r.sums != nil {
		if err := r.verify(i); err != nil {
			return nil, err
		}
	}
	r.attempts[i]++
	o, err := ParseChunk(ctx, r.buf, r.coords[i], r.d, r.types, r.opts)
	if err != nil {
		return nil, err
	}
	metrics.RecordChunk(r.opts.Job, o.Outcome.State.String(), mode)
	return o, nil
}

func (r *run) verify(i int) error {
	cc := r.orig[i]
	if xxh3.Hash(r.buf[cc.Start:cc.End]) != r.sums[i] {
		return &ParseError{Kind: KindBufferModified, Chunk: i, Column: -1, Offset: cc.Start, Err: ErrBufferModified}
	}
	return nil
}

// sequence walks the chunks in file order. A chunk that does not start
// where its predecessor ended, or whose start was never verified, is
// re-parsed serially from the predecessor's end. The first type mismatch
// met in order widens its column; sequence then returns the chunks that
// must be re-parsed. It returns nil when every chunk is complete and
// contiguous.
func (r *run) sequence(ctx context.Context) (*bitmap.Bitmap, error) {
	prevEnd := r.span.Start
	for i := range r.outs {
		o := r.outs[i]
		if o.Coords.Start != prevEnd || o.Outcome.State == BoundaryUnresolvable {
			cc := r.coords[i]
			cc.Start = prevEnd
			cc.StartVerified = true
			if cc.End < cc.Start {
				cc.End = cc.Start
			}
			if r.opts.Debug {
				log.Printf("reader: chunk %d re-scanned serially from byte %d (was %d, %s)",
					i, prevEnd, o.Coords.Start, o.Outcome.State)
			}
			r.coords[i] = cc
			var err error
			if o, err = r.parse(ctx, i, "serial"); err != nil {
				return nil, err
			}
			r.outs[i] = o
			r.stats.SerialRescans++
		}
		if o.Outcome.State == IncompleteTypeMismatch {
			if err := r.widen(i, o); err != nil {
				return nil, err
			}
			return r.stale(), nil
		}
		prevEnd = o.ActualEnd
	}
	return nil, nil
}

// widen moves the mismatching column of o one type wider, unless an earlier
// widening already did.
func (r *run) widen(i int, o *ChunkOutput) error {
	col := o.Outcome.Column
	if o.Types[col] != r.types[col] {
		return nil
	}
	from := r.types[col]
	to, ok := from.Widen()
	if !ok {
		return &ParseError{Kind: KindTypeMismatch, Chunk: i, Column: col, Offset: o.Outcome.Offset, Err: ErrWideningExhausted}
	}
	r.types[col] = to
	r.stats.Widenings++
	metrics.RecordWidening(r.opts.Job, from.String(), to.String())
	if r.opts.Debug {
		log.Printf("reader: column %d widened %s -> %s at byte %d (chunk %d)", col, from, to, o.Outcome.Offset, i)
	}
	return nil
}

// stale returns the chunks whose last attempt used an older type for any
// column.
func (r *run) stale() *bitmap.Bitmap {
	b := bitmap.New(len(r.outs))
	for i, o := range r.outs {
		for j, t := range o.Types {
			if t != r.types[j] {
				b.Add(i)
				break
			}
		}
	}
	return b
}
