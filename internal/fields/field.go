package fields

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind names the value type of a model field.
type Kind string

// Supported field kinds.
const (
	// KindString is a bounded string.
	KindString Kind = "string"
	// KindText is a long string; promoted the same way as KindString.
	KindText Kind = "text"
	// KindInteger is a signed 64-bit integer.
	KindInteger Kind = "integer"
	// KindNumber is a JSON number; never promoted.
	KindNumber Kind = "number"
	// KindBoolean is a boolean.
	KindBoolean Kind = "boolean"
	// KindDateTime is an RFC 3339 timestamp.
	KindDateTime Kind = "datetime"
	// KindArray is a JSON array; never promoted.
	KindArray Kind = "array"
	// KindObject is a JSON object; never promoted.
	KindObject Kind = "object"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindText, KindInteger, KindNumber, KindBoolean, KindDateTime, KindArray, KindObject:
		return true
	}
	return false
}

// Promotable reports whether fields of this kind may become relational columns.
func (k Kind) Promotable() bool {
	switch k {
	case KindString, KindText, KindInteger, KindBoolean, KindDateTime:
		return true
	}
	return false
}

// IsString reports whether k holds string values.
func (k Kind) IsString() bool {
	return k == KindString || k == KindText
}

// Generator produces a value for a field that was omitted on create.
type Generator func() any

// UI carries rendering hints exposed through the JSON Schema.
type UI struct {
	Component string         `json:"ui_component,omitempty"`                              // Custom renderer tag.
	Props     map[string]any `json:"ui_props,omitempty"`                                  // Opaque renderer config.
	Width     int            `json:"ui_width,omitempty" validate:"omitempty,min=1,max=6"` // Grid span.
	Index     int            `json:"ui_index,omitempty" validate:"gte=0"`                 // Display order.
}

// Field describes one attribute of a model.
type Field struct {
	Name        string    `validate:"required,max=63"`
	Kind        Kind      `validate:"required"`
	Title       string    // Display title; defaults to a humanized name.
	Description string    // Help text.
	MaxLength   int       `validate:"gte=0"` // Zero means unbounded.
	Required    bool      // Must be present on create.
	Default     any       // Applied on create when the field is missing.
	Generator   Generator // Takes precedence over Default.
	Items       Kind      // Element kind for arrays; empty means any.
	UI          UI        // Rendering hints.
}

var validate = validator.New()

// Validate checks the field metadata.
func (f Field) Validate() error {
	if !f.Kind.Valid() {
		return fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
	}
	if f.Items != "" && !f.Items.Valid() {
		return fmt.Errorf("field %s: unknown item kind %q", f.Name, f.Items)
	}
	if f.MaxLength > 0 && !f.Kind.IsString() {
		return fmt.Errorf("field %s: max length only applies to string fields", f.Name)
	}
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

// DisplayTitle returns the title or a humanized form of the name.
func (f Field) DisplayTitle() string {
	if f.Title != "" {
		return f.Title
	}
	words := strings.Split(f.Name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "id" {
			words[i] = "ID"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// HasDefault reports whether the field can be filled on create.
func (f Field) HasDefault() bool {
	return f.Generator != nil || f.Default != nil
}
