package ddl

import (
	"context"
	"fmt"

	"chunkread/internal/column"
	"chunkread/internal/storage"
)

// EnsureTable creates the target table for t if it does not exist. It is
// idempotent: the statement is CREATE TABLE IF NOT EXISTS.
func EnsureTable(ctx context.Context, repo storage.Repository, fqn string, t *column.Table) error {
	def, err := FromTable(fqn, t)
	if err != nil {
		return err
	}
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", fqn, err)
	}
	return nil
}
