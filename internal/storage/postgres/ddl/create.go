package ddl

import (
	"fmt"
	"strings"

	"chunkread/internal/column"
	"chunkread/internal/field"
)

// Column is one column of a table to create.
type Column struct {
	// Name is unquoted; BuildCreateTableSQL quotes it.
	Name string
	Type field.Type
	// NotNull is implied for key columns.
	NotNull bool
	// Key marks the column as part of the primary key, in column order.
	Key bool
	// Default is a raw SQL expression, e.g. 'none' or now().
	Default string
}

// Table is a table to create. Name may be schema-qualified ("public.cars").
type Table struct {
	Name    string
	Columns []Column
}

// FromTable describes a table named name with one nullable column per
// column of t. Column names are used as they are; the header normalizer
// already made them valid identifiers.
func FromTable(name string, t *column.Table) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return Table{}, fmt.Errorf("postgres ddl: storage.db.table is required")
	}
	if t == nil || len(t.Columns) == 0 {
		return Table{}, fmt.Errorf("postgres ddl: table %s has no columns", name)
	}
	def := Table{Name: name, Columns: make([]Column, len(t.Columns))}
	for j, c := range t.Columns {
		def.Columns[j] = Column{Name: c.Name, Type: c.Type}
	}
	return def, nil
}

// BuildCreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement with one
// line per column and a trailing PRIMARY KEY clause when any column is a
// key. Identifiers are double-quoted.
func BuildCreateTableSQL(t Table) (string, error) {
	name := quoteFQN(strings.TrimSpace(t.Name))
	if name == "" {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("postgres ddl: table %s has no columns", name)
	}

	lines := make([]string, 0, len(t.Columns)+1)
	var keys []string
	seen := make(map[string]bool, len(t.Columns))
	for j, c := range t.Columns {
		cn := strings.TrimSpace(c.Name)
		switch {
		case cn == "":
			return "", fmt.Errorf("postgres ddl: %s column %d has no name", name, j+1)
		case seen[cn]:
			return "", fmt.Errorf("postgres ddl: %s column %q appears twice", name, cn)
		case !c.Type.Valid():
			return "", fmt.Errorf("postgres ddl: %s column %q has invalid type %s", name, cn, c.Type)
		}
		seen[cn] = true

		line := quoteIdent(cn) + " " + MapType(c.Type)
		if c.NotNull || c.Key {
			line += " NOT NULL"
		}
		if d := strings.TrimSpace(c.Default); d != "" {
			line += " DEFAULT " + d
		}
		lines = append(lines, line)
		if c.Key {
			keys = append(keys, quoteIdent(cn))
		}
	}
	if len(keys) > 0 {
		lines = append(lines, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + name + " (\n  " + strings.Join(lines, ",\n  ") + "\n);", nil
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteFQN quotes each dot-separated part of f, dropping empty parts.
func quoteFQN(f string) string {
	var parts []string
	for _, p := range strings.Split(f, ".") {
		if p != "" {
			parts = append(parts, quoteIdent(p))
		}
	}
	return strings.Join(parts, ".")
}
