package crud

import (
	"maps"
	"slices"

	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/ui"
)

// SchemaVariant selects which form a schema is generated for.
type SchemaVariant string

// Schema variants.
const (
	SchemaFull   SchemaVariant = "full"
	SchemaCreate SchemaVariant = "create"
	SchemaEdit   SchemaVariant = "edit"
)

// BuildSchema returns the JSON Schema of def for variant.
//
// Properties carry the renderer extensions read by the admin frontend: ui_component, ui_props,
// ui_width, ui_index and index (true for promoted columns). When a field names an unregistered
// renderer, ui_fallback is set and ui_requested keeps the declared tag.
func BuildSchema(def *model.Definition, renderers *ui.Registry, variant SchemaVariant) map[string]any {
	properties := make(map[string]any, len(def.Fields())+2)
	order := make([]string, 0, len(def.Fields())+2)
	required := []string{}

	for _, f := range def.Fields() {
		prop := fieldSchema(f, renderers)
		prop["index"] = def.IsColumn(f.Name)
		if def.IsUniqueColumn(f.Name) {
			prop["unique"] = true
		}

		isKey := f.Name == def.PrimaryKey()
		if isKey {
			prop["primary_key"] = true
			if variant == SchemaEdit {
				prop["readOnly"] = true
			}
		}
		if requiredIn(def, f, variant) {
			required = append(required, f.Name)
		}
		properties[f.Name] = prop
		order = append(order, f.Name)
	}

	if variant == SchemaFull {
		for _, name := range []string{model.CreatedAtColumn, model.UpdatedAtColumn} {
			properties[name] = map[string]any{
				"type":     "string",
				"format":   "date-time",
				"title":    systemTitles[name],
				"readOnly": true,
				"index":    true,
			}
			order = append(order, name)
		}
	}

	out := map[string]any{
		"$schema":        "https://json-schema.org/draft/2020-12/schema",
		"title":          def.Name(),
		"type":           "object",
		"properties":     properties,
		"required":       required,
		"property_order": order,
		"primary_key":    def.PrimaryKey(),
		"table":          def.Table(),
	}
	if variant != SchemaFull {
		out["additionalProperties"] = false
	}
	if def.Description() != "" {
		out["description"] = def.Description()
	}
	if uniques := def.Uniques(); len(uniques) > 0 {
		out["unique_together"] = uniques
	}
	return out
}

var systemTitles = map[string]string{
	model.CreatedAtColumn: "Created At",
	model.UpdatedAtColumn: "Updated At",
}

// requiredIn reports whether f must be supplied by the form for variant.
func requiredIn(def *model.Definition, f fields.Field, variant SchemaVariant) bool {
	if f.Name == def.PrimaryKey() {
		switch variant {
		case SchemaCreate:
			return !f.HasDefault()
		case SchemaEdit:
			return false
		}
		return true
	}
	if !f.Required {
		return false
	}
	return variant != SchemaCreate || !f.HasDefault()
}

func fieldSchema(f fields.Field, renderers *ui.Registry) map[string]any {
	prop := kindSchema(f.Kind)
	prop["title"] = f.DisplayTitle()
	if f.Description != "" {
		prop["description"] = f.Description
	}
	if f.MaxLength > 0 && f.Kind.IsString() {
		prop["maxLength"] = f.MaxLength
	}
	if f.Default != nil {
		prop["default"] = f.Default
	}
	if f.Kind == fields.KindArray && f.Items != "" {
		prop["items"] = kindSchema(f.Items)
	}

	res := renderers.Resolve(f)
	maps.Copy(prop, res.Schema)
	prop["ui_component"] = res.Component
	if len(res.Props) > 0 {
		prop["ui_props"] = res.Props
	}
	if f.UI.Width > 0 {
		prop["ui_width"] = f.UI.Width
	}
	prop["ui_index"] = f.UI.Index
	if res.Fallback {
		prop["ui_fallback"] = true
		prop["ui_requested"] = res.Requested
	}
	return prop
}

func kindSchema(kind fields.Kind) map[string]any {
	switch kind {
	case fields.KindInteger:
		return map[string]any{"type": "integer"}
	case fields.KindNumber:
		return map[string]any{"type": "number"}
	case fields.KindBoolean:
		return map[string]any{"type": "boolean"}
	case fields.KindDateTime:
		return map[string]any{"type": "string", "format": "date-time"}
	case fields.KindArray:
		return map[string]any{"type": "array"}
	case fields.KindObject:
		return map[string]any{"type": "object"}
	case fields.KindText:
		return map[string]any{"type": "string", "format": "textarea"}
	default:
		return map[string]any{"type": "string"}
	}
}

// ModelSummary describes one registered model for the model index endpoint.
type ModelSummary struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Path        string   `json:"path"`
	PrimaryKey  string   `json:"primary_key"`
	Description string   `json:"description,omitempty"`
	Indexed     []string `json:"indexed"`
	Encrypted   bool     `json:"encrypted"`
}

// Summarize describes def as mounted under prefix.
func Summarize(def *model.Definition, prefix string) ModelSummary {
	indexed := make([]string, 0)
	for _, f := range def.ColumnFields() {
		indexed = append(indexed, f.Name)
	}
	slices.Sort(indexed)
	return ModelSummary{
		Name:        def.Name(),
		Table:       def.Table(),
		Path:        prefix + "/" + def.Table(),
		PrimaryKey:  def.PrimaryKey(),
		Description: def.Description(),
		Indexed:     indexed,
		Encrypted:   def.EncryptJSON(),
	}
}
