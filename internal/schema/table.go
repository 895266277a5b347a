package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
)

// maxIdentifierLength is the PostgreSQL identifier limit.
const maxIdentifierLength = 63

// Column is a relational column of a materialized table.
type Column struct {
	Name       string      `json:"name"`                  // Column name.
	Kind       fields.Kind `json:"kind"`                  // Source field kind.
	Type       string      `json:"type"`                  // SQL type.
	MaxLength  int         `json:"max_length,omitempty"`  // String bound, zero when unbounded.
	NotNull    bool        `json:"not_null,omitempty"`    // Primary key and blob column.
	PrimaryKey bool        `json:"primary_key,omitempty"` // Primary key column.
	Unique     bool        `json:"unique,omitempty"`      // Column-level unique constraint.
	System     bool        `json:"system,omitempty"`      // Timestamps and blob.
}

// UniqueConstraint is a named composite unique constraint.
type UniqueConstraint struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Index is a secondary index on one promoted column.
type Index struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// Table is the relational shape derived from a model definition.
type Table struct {
	Name        string             `json:"name"`
	Model       string             `json:"model"`
	Dialect     string             `json:"dialect"`
	Fingerprint string             `json:"fingerprint"`
	Columns     []Column           `json:"columns"`
	Uniques     []UniqueConstraint `json:"uniques,omitempty"`
	Indexes     []Index            `json:"indexes,omitempty"`
	BlobFields  []string           `json:"blob_fields,omitempty"`
	Encrypted   bool               `json:"encrypted,omitempty"`
}

// Build classifies the definition's fields and derives the table for a dialect.
func Build(def *model.Definition, dialect string) (*Table, error) {
	if def == nil {
		return nil, apperrors.Config("", "nil definition")
	}
	t := &Table{
		Name:        def.Table(),
		Model:       def.Name(),
		Dialect:     dialect,
		Fingerprint: def.Fingerprint(),
		Encrypted:   def.EncryptJSON(),
	}

	for _, f := range def.ColumnFields() {
		sqlType, err := columnType(f, dialect)
		if err != nil {
			return nil, apperrors.Config(def.Name(), "%v", err)
		}
		col := Column{
			Name:       f.Name,
			Kind:       f.Kind,
			Type:       sqlType,
			MaxLength:  f.MaxLength,
			PrimaryKey: f.Name == def.PrimaryKey(),
			Unique:     def.IsUniqueColumn(f.Name),
		}
		col.NotNull = col.PrimaryKey
		t.Columns = append(t.Columns, col)
		if !col.PrimaryKey && !col.Unique {
			t.Indexes = append(t.Indexes, Index{
				Name:   constraintName("ix", t.Name, f.Name),
				Column: f.Name,
			})
		}
	}

	for _, cols := range def.Uniques() {
		if len(cols) < 2 {
			continue
		}
		t.Uniques = append(t.Uniques, UniqueConstraint{
			Name:    constraintName("uq", append([]string{t.Name}, cols...)...),
			Columns: cols,
		})
	}

	for _, f := range def.BlobFields() {
		t.BlobFields = append(t.BlobFields, f.Name)
	}

	t.Columns = append(t.Columns,
		Column{Name: model.CreatedAtColumn, Kind: fields.KindDateTime, Type: db.DateTimeType(dialect), System: true},
		Column{Name: model.UpdatedAtColumn, Kind: fields.KindDateTime, Type: db.DateTimeType(dialect), System: true},
		Column{Name: model.BlobColumn, Kind: fields.KindText, Type: "text", NotNull: true, System: true},
	)
	return t, nil
}

// columnType maps a promotable field to its SQL type.
func columnType(f fields.Field, dialect string) (string, error) {
	switch f.Kind {
	case fields.KindString, fields.KindText:
		return db.StringType(f.MaxLength), nil
	case fields.KindInteger:
		return "bigint", nil
	case fields.KindBoolean:
		return "boolean", nil
	case fields.KindDateTime:
		return db.DateTimeType(dialect), nil
	default:
		return "", fmt.Errorf("field %s: kind %s cannot be a column", f.Name, f.Kind)
	}
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns every column name in table order.
func (t *Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// QueryableColumns returns the columns that predicates and sort keys may reference.
func (t *Table) QueryableColumns() map[string]Column {
	out := make(map[string]Column, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == model.BlobColumn {
			continue
		}
		out[c.Name] = c
	}
	return out
}

// CreateStatements renders the idempotent DDL for the table and its indexes.
func (t *Table) CreateStatements() []string {
	defs := make([]string, 0, len(t.Columns)+len(t.Uniques))
	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(db.QuoteIdent(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type)
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
		defs = append(defs, b.String())
	}
	for _, u := range t.Uniques {
		quoted := make([]string, 0, len(u.Columns))
		for _, col := range u.Columns {
			quoted = append(quoted, db.QuoteIdent(col))
		}
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", db.QuoteIdent(u.Name), strings.Join(quoted, ", ")))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", db.QuoteIdent(t.Name), strings.Join(defs, ",\n\t"))}
	for _, idx := range t.Indexes {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			db.QuoteIdent(idx.Name), db.QuoteIdent(t.Name), db.QuoteIdent(idx.Column)))
	}
	return stmts
}

// constraintName joins parts with a prefix, shortening with a hash suffix past the identifier limit.
func constraintName(prefix string, parts ...string) string {
	name := prefix + "_" + strings.Join(parts, "_")
	if len(name) <= maxIdentifierLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:])[:8]
	return name[:maxIdentifierLength-len(suffix)-1] + "_" + suffix
}
