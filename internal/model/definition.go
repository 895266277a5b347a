package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/fields"
)

// System column names appended to every materialized table.
const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
	BlobColumn      = "json_data"
)

// DefaultPrimaryKey is used when a config names no primary key.
const DefaultPrimaryKey = "id"

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// IsSystemColumn reports whether name is owned by the store.
func IsSystemColumn(name string) bool {
	switch name {
	case CreatedAtColumn, UpdatedAtColumn, BlobColumn:
		return true
	}
	return false
}

// Config is the declarative input for a model.
type Config struct {
	Name        string         // Model name, e.g. "Category".
	Table       string         // Table name; derived from Name when empty.
	PrimaryKey  string         // Primary key field; "id" when empty.
	Indexed     []string       // Fields promoted to columns. The primary key is implicit.
	Unique      []string       // Unique sets, single or comma-joined composite.
	EncryptJSON bool           // Encrypt the blob column at rest.
	Description string         // Shown in the JSON Schema.
	Fields      []fields.Field // Declared fields in display order.
}

// Definition is a validated, immutable model.
type Definition struct {
	name        string
	table       string
	primaryKey  string
	description string
	encryptJSON bool
	fields      []fields.Field
	byName      map[string]int
	columns     map[string]struct{}
	uniques     [][]string
	fingerprint string
}

// NewDefinition validates cfg and returns an immutable definition.
// Every error is an *apperrors.ConfigError.
func NewDefinition(cfg Config) (*Definition, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, apperrors.Config("", "model name is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = snakeCase(name)
	}
	if !identifierPattern.MatchString(table) {
		return nil, apperrors.Config(name, "invalid table name %q", table)
	}
	if len(cfg.Fields) == 0 {
		return nil, apperrors.Config(name, "no fields declared")
	}

	def := &Definition{
		name:        name,
		table:       table,
		primaryKey:  strings.TrimSpace(cfg.PrimaryKey),
		description: cfg.Description,
		encryptJSON: cfg.EncryptJSON,
		fields:      make([]fields.Field, 0, len(cfg.Fields)),
		byName:      make(map[string]int, len(cfg.Fields)),
		columns:     map[string]struct{}{},
	}
	if def.primaryKey == "" {
		def.primaryKey = DefaultPrimaryKey
	}

	for _, f := range cfg.Fields {
		if !identifierPattern.MatchString(f.Name) {
			return nil, apperrors.Config(name, "invalid field name %q", f.Name)
		}
		if IsSystemColumn(f.Name) {
			return nil, apperrors.Config(name, "field name %q is reserved", f.Name)
		}
		if _, dup := def.byName[f.Name]; dup {
			return nil, apperrors.Config(name, "duplicate field %q", f.Name)
		}
		if errValidate := f.Validate(); errValidate != nil {
			return nil, apperrors.Config(name, "%v", errValidate)
		}
		def.byName[f.Name] = len(def.fields)
		def.fields = append(def.fields, f)
	}

	pk, ok := def.Field(def.primaryKey)
	if !ok {
		return nil, apperrors.Config(name, "primary key %q is not a declared field", def.primaryKey)
	}
	if !pk.Kind.IsString() && pk.Kind != fields.KindInteger {
		return nil, apperrors.Config(name, "primary key %q must be a string or integer, got %s", pk.Name, pk.Kind)
	}
	def.columns[pk.Name] = struct{}{}

	for _, raw := range cfg.Indexed {
		fieldName := strings.TrimSpace(raw)
		f, exists := def.Field(fieldName)
		if !exists {
			return nil, apperrors.Config(name, "indexed field %q is not declared", fieldName)
		}
		if !f.Kind.Promotable() {
			return nil, apperrors.Config(name, "indexed field %q has non-scalar kind %s", fieldName, f.Kind)
		}
		def.columns[fieldName] = struct{}{}
	}

	seen := map[string]struct{}{}
	for _, set := range cfg.Unique {
		cols := splitUniqueSet(set)
		if len(cols) == 0 {
			return nil, apperrors.Config(name, "empty unique set")
		}
		for _, col := range cols {
			if _, exists := def.byName[col]; !exists {
				return nil, apperrors.Config(name, "unique set %q references undeclared field %q", set, col)
			}
			if !def.IsColumn(col) {
				return nil, apperrors.Config(name, "unique set %q references blob-only field %q", set, col)
			}
		}
		key := strings.Join(cols, ",")
		if _, dup := seen[key]; dup {
			return nil, apperrors.Config(name, "duplicate unique set %q", set)
		}
		seen[key] = struct{}{}
		if len(cols) == 1 && cols[0] == def.primaryKey {
			continue
		}
		def.uniques = append(def.uniques, cols)
	}

	def.fingerprint = def.computeFingerprint()
	return def, nil
}

// MustDefinition panics when cfg is invalid. Intended for built-in models.
func MustDefinition(cfg Config) *Definition {
	def, err := NewDefinition(cfg)
	if err != nil {
		panic(err)
	}
	return def
}

// Name returns the model name.
func (d *Definition) Name() string { return d.name }

// Table returns the table name.
func (d *Definition) Table() string { return d.table }

// PrimaryKey returns the primary key field name.
func (d *Definition) PrimaryKey() string { return d.primaryKey }

// Description returns the model description.
func (d *Definition) Description() string { return d.description }

// EncryptJSON reports whether the blob column is encrypted.
func (d *Definition) EncryptJSON() bool { return d.encryptJSON }

// Fingerprint identifies the storage-relevant shape of the definition.
func (d *Definition) Fingerprint() string { return d.fingerprint }

// Fields returns a copy of the declared fields in order.
func (d *Definition) Fields() []fields.Field {
	out := make([]fields.Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Field looks up a declared field by name.
func (d *Definition) Field(name string) (fields.Field, bool) {
	idx, ok := d.byName[name]
	if !ok {
		return fields.Field{}, false
	}
	return d.fields[idx], true
}

// PrimaryKeyField returns the primary key descriptor.
func (d *Definition) PrimaryKeyField() fields.Field {
	f, _ := d.Field(d.primaryKey)
	return f
}

// IsColumn reports whether the field is promoted to a relational column.
func (d *Definition) IsColumn(name string) bool {
	_, ok := d.columns[name]
	return ok
}

// ColumnFields returns promoted fields in declaration order.
func (d *Definition) ColumnFields() []fields.Field {
	out := make([]fields.Field, 0, len(d.columns))
	for _, f := range d.fields {
		if d.IsColumn(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// BlobFields returns fields stored only in the JSON column.
func (d *Definition) BlobFields() []fields.Field {
	out := make([]fields.Field, 0, len(d.fields)-len(d.columns))
	for _, f := range d.fields {
		if !d.IsColumn(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// Uniques returns the unique column sets, excluding the primary key.
func (d *Definition) Uniques() [][]string {
	out := make([][]string, 0, len(d.uniques))
	for _, cols := range d.uniques {
		out = append(out, append([]string(nil), cols...))
	}
	return out
}

// IsUniqueColumn reports whether name carries a single-column unique constraint.
func (d *Definition) IsUniqueColumn(name string) bool {
	for _, cols := range d.uniques {
		if len(cols) == 1 && cols[0] == name {
			return true
		}
	}
	return false
}

// fingerprintField is the storage-relevant projection of a field.
type fingerprintField struct {
	Name      string      `json:"name"`
	Kind      fields.Kind `json:"kind"`
	MaxLength int         `json:"max_length,omitempty"`
	Column    bool        `json:"column,omitempty"`
}

func (d *Definition) computeFingerprint() string {
	shape := struct {
		Table      string             `json:"table"`
		PrimaryKey string             `json:"primary_key"`
		Fields     []fingerprintField `json:"fields"`
		Uniques    [][]string         `json:"uniques"`
		Encrypt    bool               `json:"encrypt_json"`
	}{
		Table:      d.table,
		PrimaryKey: d.primaryKey,
		Uniques:    d.uniques,
		Encrypt:    d.encryptJSON,
	}
	for _, f := range d.fields {
		shape.Fields = append(shape.Fields, fingerprintField{
			Name:      f.Name,
			Kind:      f.Kind,
			MaxLength: f.MaxLength,
			Column:    d.IsColumn(f.Name),
		})
	}
	raw, _ := json.Marshal(shape)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func splitUniqueSet(set string) []string {
	var out []string
	for _, part := range strings.Split(set, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// snakeCase converts a Go-style model name into a table name.
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
