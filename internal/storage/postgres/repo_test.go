package postgres

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestSplitFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want pgx.Identifier
	}{
		{"cars", pgx.Identifier{"cars"}},
		{"public.cars", pgx.Identifier{"public", "cars"}},
		{".public..cars", pgx.Identifier{"public", "cars"}},
		{"", pgx.Identifier{}},
	}
	for _, tt := range tests {
		if got := splitFQN(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitFQN(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCopyErrorKeepsDetail(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "22P02", Detail: `invalid input syntax for type integer: "x"`}
	err := copyError("public.cars", pgErr)
	if !errors.As(err, new(*pgconn.PgError)) {
		t.Fatalf("PgError lost: %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "22P02") || !strings.Contains(msg, `"x"`) {
		t.Fatalf("message = %q", msg)
	}

	plain := copyError("t", errors.New("conn reset"))
	if plain.Error() != "copy into t: conn reset" {
		t.Fatalf("message = %q", plain)
	}
}

func TestNewRepositoryRequiresTable(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{DSN: "postgres://localhost/db"}); err == nil {
		t.Fatal("missing table accepted")
	}
}
