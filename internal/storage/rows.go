package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"chunkread/internal/column"
	"chunkread/internal/metrics"
)

// StreamRows sends every row of t to out in order and closes out when done.
// NA cells are sent as nil.
func StreamRows(ctx context.Context, t *column.Table, out chan<- []any) error {
	defer close(out)
	for i := 0; i < t.Rows; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- t.Row(i):
		}
	}
	return nil
}

// Load copies t into repo in batches of batchSize. Row production and the
// copy run concurrently; the first error stops both. Inserted rows and
// batches are counted against job.
func Load(ctx context.Context, repo Repository, t *column.Table, batchSize int, job string) (int64, error) {
	if repo == nil {
		return 0, fmt.Errorf("load: nil repository")
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("load: batch size must be > 0, got %d", batchSize)
	}
	names := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		names[j] = c.Name
	}

	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan []any, batchSize)
	g.Go(func() error { return StreamRows(gctx, t, rows) })

	var total int64
	g.Go(func() error {
		copyFn := func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
			n, err := repo.CopyFrom(ctx, columns, batch)
			metrics.RecordRow(job, "inserted", n)
			if err == nil {
				metrics.RecordBatches(job, 1)
			}
			return n, err
		}
		n, err := LoadBatches(gctx, names, rows, batchSize, copyFn)
		total = n
		return err
	})
	err := g.Wait()
	return total, err
}
