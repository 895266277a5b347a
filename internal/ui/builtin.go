package ui

import (
	"github.com/router-for-me/PersistedObjects/internal/fields"
)

func builtins() []Renderer {
	return []Renderer{
		staticRenderer{tag: TagPassword, schema: map[string]any{"format": "password", "writeOnly": true}},
		staticRenderer{
			tag:      TagPromptTemplate,
			schema:   map[string]any{"format": "textarea"},
			defaults: map[string]any{"rows": 12, "monospace": true},
		},
		staticRenderer{
			tag:    TagColorPicker,
			schema: map[string]any{"format": "color", "pattern": "^#[0-9a-fA-F]{6}$"},
		},
		statusBadge{},
	}
}

// staticRenderer adds fixed schema keywords and fills missing props with defaults.
type staticRenderer struct {
	tag      string
	schema   map[string]any
	defaults map[string]any
}

func (r staticRenderer) Tag() string { return r.tag }

func (r staticRenderer) Describe(f fields.Field) Descriptor {
	props := cloneProps(f.UI.Props)
	for k, v := range r.defaults {
		if props == nil {
			props = make(map[string]any, len(r.defaults))
		}
		if _, ok := props[k]; !ok {
			props[k] = v
		}
	}
	return Descriptor{Component: r.tag, Props: props, Schema: cloneProps(r.schema)}
}

// statusBadge renders a value from a fixed set. Its "options" prop becomes the schema enum
// and "colors" maps each option to a badge color.
type statusBadge struct{}

func (statusBadge) Tag() string { return TagStatusBadge }

func (statusBadge) Describe(f fields.Field) Descriptor {
	d := Descriptor{Component: TagStatusBadge, Props: cloneProps(f.UI.Props)}
	switch options := f.UI.Props["options"].(type) {
	case []any:
		d.Schema = map[string]any{"enum": options}
	case []string:
		enum := make([]any, len(options))
		for i, o := range options {
			enum[i] = o
		}
		d.Schema = map[string]any{"enum": enum}
	}
	return d
}
