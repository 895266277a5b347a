package model

import (
	"sync"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
)

// Registry holds model definitions keyed by table name in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []*Definition
	byTable map[string]*Definition
	byName  map[string]*Definition
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTable: make(map[string]*Definition),
		byName:  make(map[string]*Definition),
	}
}

// Register adds a definition. Table and model names must be unique.
func (r *Registry) Register(def *Definition) error {
	if r == nil || def == nil {
		return apperrors.Config("", "nil registry or definition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTable[def.Table()]; exists {
		return apperrors.Config(def.Name(), "table %q already registered", def.Table())
	}
	if _, exists := r.byName[def.Name()]; exists {
		return apperrors.Config(def.Name(), "model name already registered")
	}
	r.byTable[def.Table()] = def
	r.byName[def.Name()] = def
	r.order = append(r.order, def)
	return nil
}

// Lookup returns the definition for a table.
func (r *Registry) Lookup(table string) (*Definition, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byTable[table]
	return def, ok
}

// All returns definitions in registration order.
func (r *Registry) All() []*Definition {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// AnyEncrypted reports whether a registered model encrypts its blob column.
func (r *Registry) AnyEncrypted() bool {
	for _, def := range r.All() {
		if def.EncryptJSON() {
			return true
		}
	}
	return false
}
