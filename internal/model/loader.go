package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/router-for-me/PersistedObjects/internal/fields"
	"gopkg.in/yaml.v3"
)

// modelFile is the on-disk layout of a model definition file.
type modelFile struct {
	Models []modelDoc `yaml:"models"` // One or more models per file.
}

// modelDoc is a single model entry in a definition file.
type modelDoc struct {
	Name        string     `yaml:"name"`
	Table       string     `yaml:"table"`
	PrimaryKey  string     `yaml:"primary_key"`
	Description string     `yaml:"description"`
	Indexed     []string   `yaml:"indexed"`
	Unique      []string   `yaml:"unique"`
	EncryptJSON bool       `yaml:"encrypt_json"`
	Fields      []fieldDoc `yaml:"fields"`
}

// fieldDoc is a single field entry in a definition file.
type fieldDoc struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	MaxLength   *int           `yaml:"max_length"`
	Required    bool           `yaml:"required"`
	Default     any            `yaml:"default"`
	Items       string         `yaml:"items"`
	UIComponent string         `yaml:"ui_component"`
	UIProps     map[string]any `yaml:"ui_props"`
	UIWidth     int            `yaml:"ui_width"`
	UIIndex     int            `yaml:"ui_index"`
}

type fieldBuilder func(name string, opts ...fields.Option) fields.Field

var fieldTypes = map[string]fieldBuilder{
	"id":                fields.ID,
	"reference_id":      fields.ReferenceID,
	"key":               fields.Key,
	"title":             fields.Title,
	"description":       fields.Description,
	"content":           fields.Content,
	"large_content":     fields.LargeContent,
	"max_content":       fields.MaxContent,
	"unlimited_content": fields.UnlimitedContent,
	"version":           fields.Version,
	"password":          fields.Password,
	"prompt_template":   fields.PromptTemplate,
	"string_array": func(name string, opts ...fields.Option) fields.Field {
		return fields.Standard(name, fields.KindArray, append([]fields.Option{fields.WithItems(fields.KindString)}, opts...)...)
	},
	"object_array": func(name string, opts ...fields.Option) fields.Field {
		return fields.Standard(name, fields.KindArray, append([]fields.Option{fields.WithItems(fields.KindObject)}, opts...)...)
	},
}

// LoadDir loads every *.yaml and *.yml file in dir, in file name order.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("model: read dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var out []*Definition
	for _, name := range names {
		defs, errLoad := LoadFile(filepath.Join(dir, name))
		if errLoad != nil {
			return nil, errLoad
		}
		out = append(out, defs...)
	}
	return out, nil
}

// LoadFile loads the models declared in one file.
func LoadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes model definitions from YAML. source is used in error messages.
func Parse(data []byte, source string) ([]*Definition, error) {
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", source, err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model: %s declares no models", source)
	}
	out := make([]*Definition, 0, len(file.Models))
	for i, doc := range file.Models {
		cfg, errCfg := doc.config()
		if errCfg != nil {
			return nil, fmt.Errorf("model: %s: model #%d (%s): %w", source, i+1, doc.Name, errCfg)
		}
		def, errDef := NewDefinition(cfg)
		if errDef != nil {
			return nil, fmt.Errorf("model: %s: %w", source, errDef)
		}
		out = append(out, def)
	}
	return out, nil
}

func (doc modelDoc) config() (Config, error) {
	cfg := Config{
		Name:        doc.Name,
		Table:       doc.Table,
		PrimaryKey:  doc.PrimaryKey,
		Description: doc.Description,
		Indexed:     doc.Indexed,
		Unique:      doc.Unique,
		EncryptJSON: doc.EncryptJSON,
	}
	for _, fd := range doc.Fields {
		f, err := fd.field()
		if err != nil {
			return Config{}, err
		}
		cfg.Fields = append(cfg.Fields, f)
	}
	return cfg, nil
}

func (fd fieldDoc) field() (fields.Field, error) {
	typeName := strings.ToLower(strings.TrimSpace(fd.Type))
	if typeName == "" {
		return fields.Field{}, fmt.Errorf("field %s: type is required", fd.Name)
	}

	var opts []fields.Option
	if fd.Title != "" {
		opts = append(opts, fields.WithTitle(fd.Title))
	}
	if fd.Description != "" {
		opts = append(opts, fields.WithDescription(fd.Description))
	}
	if fd.MaxLength != nil {
		opts = append(opts, fields.WithMaxLength(*fd.MaxLength))
	}
	if fd.Required {
		opts = append(opts, fields.Required())
	}
	if fd.Default != nil {
		opts = append(opts, fields.WithDefault(fd.Default))
	}
	if fd.Items != "" {
		opts = append(opts, fields.WithItems(fields.Kind(strings.ToLower(fd.Items))))
	}
	if fd.UIComponent != "" {
		opts = append(opts, fields.WithUIComponent(fd.UIComponent, fd.UIProps))
	}
	if fd.UIWidth != 0 {
		opts = append(opts, fields.WithUIWidth(fd.UIWidth))
	}
	if fd.UIIndex != 0 {
		opts = append(opts, fields.WithUIIndex(fd.UIIndex))
	}

	if builder, ok := fieldTypes[typeName]; ok {
		return builder(fd.Name, opts...), nil
	}
	kind := fields.Kind(typeName)
	if !kind.Valid() {
		return fields.Field{}, errors.New("field " + fd.Name + ": unknown type " + fd.Type)
	}
	if kind == fields.KindText && fd.MaxLength == nil {
		return fields.Content(fd.Name, opts...), nil
	}
	return fields.Standard(fd.Name, kind, opts...), nil
}
