// Package storage loads a parsed table into a database. StreamRows turns
// the columnar table into rows, and LoadBatches groups them into batches
// for a backend CopyFn (Postgres COPY).
package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

// CopyFn inserts rows, aligned to columns, and returns how many the backend
// reports as inserted. It must not keep rows after it returns and should
// stop promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// progress logs a line per committed batch with the rate since the last one.
type progress struct {
	start, last time.Time
	batches     int
	total       int64
	lastTotal   int64
}

func newProgress() *progress {
	now := time.Now()
	return &progress{start: now, last: now}
}

func (p *progress) committed(n int64) {
	now := time.Now()
	p.batches++
	p.total += n
	since := now.Sub(p.last)
	var rps float64
	if since > 0 {
		rps = float64(p.total-p.lastTotal) / since.Seconds()
	}
	log.Printf("loader: batch #%d rows=%d total=%d rps=%.0f elapsed=%s",
		p.batches, n, p.total, rps, now.Sub(p.start).Truncate(time.Millisecond))
	p.last, p.lastTotal = now, p.total
}

// LoadBatches reads rows from in until it is closed and hands them to copyFn
// in batches of batchSize; the last batch may be short. It returns the rows
// copyFn reported, including a partial count from a failing batch, and the
// first error. A cancelled ctx ends the load with ctx.Err().
func LoadBatches(ctx context.Context, columns []string, in <-chan []any, batchSize int, copyFn CopyFn) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("loader: batch size must be > 0, got %d", batchSize)
	}
	if copyFn == nil {
		return 0, fmt.Errorf("loader: nil copy function")
	}

	p := newProgress()
	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		if err != nil {
			p.total += n
			return fmt.Errorf("loader: batch #%d (%d rows): %w", p.batches+1, len(batch), err)
		}
		p.committed(n)
		batch = make([][]any, 0, batchSize)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return p.total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				err := flush()
				if err == nil {
					log.Printf("loader: done, %d rows in %d batches", p.total, p.batches)
				}
				return p.total, err
			}
			batch = append(batch, row)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return p.total, err
				}
			}
		}
	}
}
