package storage

import "context"

// Repository is the bulk-load surface a backend exposes. CopyFrom matches
// CopyFn so a repository can be handed straight to LoadBatches.
type Repository interface {
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Exec(ctx context.Context, sql string) error
}
