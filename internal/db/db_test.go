package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":       DialectPostgres,
		"host=localhost user=u dbname=db":   DialectPostgres,
		"file:data/app.db":                  DialectSQLite,
		"sqlite://data/app.db":              DialectSQLite,
		"app.db":                            DialectSQLite,
		"file:mem?mode=memory&cache=shared": DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := detectDialectFromDSN(dsn)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", dsn, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", dsn, want, got)
		}
	}
	if _, err := detectDialectFromDSN("mysql://u@h/db"); err == nil {
		t.Fatalf("expected mysql dsn to be rejected")
	}
}

func TestEnsureSQLiteParams(t *testing.T) {
	got := ensureSQLiteParams("file:app.db?_busy_timeout=100")
	if strings.Count(got, "_busy_timeout") != 1 {
		t.Fatalf("expected existing param to be kept once, got %s", got)
	}
	if !strings.Contains(got, "&_foreign_keys=on") {
		t.Fatalf("expected foreign keys param appended, got %s", got)
	}
}

func TestSQLitePathFromDSN(t *testing.T) {
	if p := sqlitePathFromDSN("file:data/app.db?cache=shared"); p != "data/app.db" {
		t.Fatalf("unexpected path %q", p)
	}
	if p := sqlitePathFromDSN("file:x?mode=memory&cache=shared"); p != "" {
		t.Fatalf("expected memory dsn to have no path, got %q", p)
	}
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	conn, err := Open("file:" + filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %s", DialectName(conn))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("expected gorm duplicated key to match")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected pg 23505 to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: tags.name")) {
		t.Fatalf("expected sqlite message to match")
	}
	if IsUniqueViolation(errors.New("syntax error")) || IsUniqueViolation(nil) {
		t.Fatalf("unexpected match")
	}
}

func TestIsValueTooLong(t *testing.T) {
	if !IsValueTooLong(fmt.Errorf("update: %w", &pgconn.PgError{Code: "22001"})) {
		t.Fatalf("expected pg 22001 to match")
	}
	if IsValueTooLong(&pgconn.PgError{Code: "23505"}) || IsValueTooLong(nil) {
		t.Fatalf("unexpected match")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !IsAlreadyExists(&pgconn.PgError{Code: "42P07"}) || !IsAlreadyExists(&pgconn.PgError{Code: "42710"}) {
		t.Fatalf("expected pg duplicate codes to match")
	}
	if IsAlreadyExists(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not an already-exists error")
	}
	if !IsAlreadyExists(errors.New("table tags already exists")) {
		t.Fatalf("expected sqlite message to match")
	}
}

func TestQuoteIdentAndTypes(t *testing.T) {
	if QuoteIdent(`we"ird`) != `"we""ird"` {
		t.Fatalf("unexpected quoting %s", QuoteIdent(`we"ird`))
	}
	if StringType(0) != "text" || StringType(26) != "varchar(26)" {
		t.Fatalf("unexpected string types")
	}
	if DateTimeType(DialectSQLite) != "datetime" || DateTimeType(DialectPostgres) != "timestamptz" {
		t.Fatalf("unexpected datetime types")
	}
	if EscapeLike("50%_off") != `50\%\_off` {
		t.Fatalf("unexpected like escape %s", EscapeLike("50%_off"))
	}
}
