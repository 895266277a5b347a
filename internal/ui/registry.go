// Package ui resolves field renderer tags into schema metadata for the admin frontend.
package ui

import (
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/router-for-me/PersistedObjects/internal/fields"
	log "github.com/sirupsen/logrus"
)

// Built-in renderer tags.
const (
	TagPassword       = fields.ComponentPassword
	TagPromptTemplate = fields.ComponentPromptTemplate
	TagColorPicker    = "ColorPicker"
	TagStatusBadge    = "StatusBadge"
)

// Descriptor is what the frontend needs to render one field.
type Descriptor struct {
	Component string         // Renderer tag actually used.
	Props     map[string]any // Renderer props after defaults are applied.
	Schema    map[string]any // Extra JSON Schema keywords (format, enum, writeOnly...).
}

// Renderer describes how fields tagged with Tag() are edited.
type Renderer interface {
	Tag() string
	Describe(f fields.Field) Descriptor
}

// Resolution is the outcome of looking up a field's renderer.
type Resolution struct {
	Descriptor
	Requested string // Tag declared on the field, empty when none.
	Fallback  bool   // True when Requested is not registered.
}

// Registry maps renderer tags to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	warned    map[string]struct{}
}

// NewRegistry returns a registry holding the built-in renderers.
func NewRegistry() *Registry {
	r := &Registry{
		renderers: make(map[string]Renderer),
		warned:    make(map[string]struct{}),
	}
	for _, renderer := range builtins() {
		r.renderers[renderer.Tag()] = renderer
	}
	return r
}

// Register adds a renderer. Registering an existing tag is an error.
func (r *Registry) Register(renderer Renderer) error {
	tag := strings.TrimSpace(renderer.Tag())
	if tag == "" {
		return fmt.Errorf("ui: renderer tag is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[tag]; exists {
		return fmt.Errorf("ui: renderer %q already registered", tag)
	}
	r.renderers[tag] = renderer
	return nil
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[tag]
	return ok
}

// Resolve returns the descriptor for f. Fields without a tag use the default for their kind.
// An unregistered tag also falls back to the kind default; the first miss per tag is logged.
func (r *Registry) Resolve(f fields.Field) Resolution {
	requested := strings.TrimSpace(f.UI.Component)
	if requested == "" {
		return Resolution{Descriptor: defaultFor(f)}
	}
	r.mu.RLock()
	renderer, ok := r.renderers[requested]
	r.mu.RUnlock()
	if ok {
		return Resolution{Descriptor: renderer.Describe(f), Requested: requested}
	}

	r.mu.Lock()
	if _, seen := r.warned[requested]; !seen {
		r.warned[requested] = struct{}{}
		log.WithFields(log.Fields{"field": f.Name, "component": requested}).
			Warn("ui component not registered; using default renderer")
	}
	r.mu.Unlock()
	return Resolution{Descriptor: defaultFor(f), Requested: requested, Fallback: true}
}

// defaultComponents maps each kind to its stock editor.
var defaultComponents = map[fields.Kind]string{
	fields.KindString:   "TextField",
	fields.KindText:     "TextArea",
	fields.KindInteger:  "NumberField",
	fields.KindNumber:   "NumberField",
	fields.KindBoolean:  "Switch",
	fields.KindDateTime: "DateTimePicker",
	fields.KindArray:    "ListEditor",
	fields.KindObject:   "JSONEditor",
}

func defaultFor(f fields.Field) Descriptor {
	component, ok := defaultComponents[f.Kind]
	if !ok {
		component = defaultComponents[fields.KindString]
	}
	return Descriptor{Component: component, Props: cloneProps(f.UI.Props)}
}

func cloneProps(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	return maps.Clone(props)
}
