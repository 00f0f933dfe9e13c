// Package ddl derives Postgres table definitions from parsed tables and
// renders them as CREATE TABLE statements.
package ddl

import "chunkread/internal/field"

// MapType returns the Postgres column type that holds every value of t
// without loss.
func MapType(t field.Type) string {
	switch t {
	case field.Bool:
		return "BOOLEAN"
	case field.Int32:
		return "INTEGER"
	case field.Int64:
		return "BIGINT"
	case field.Float64:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}
