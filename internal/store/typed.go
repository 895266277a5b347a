package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Typed adapts a Store to a Go struct type. Struct fields map to model fields through their json tags.
type Typed[T any] struct {
	store *Store
}

// NewTyped wraps s for values of type T.
func NewTyped[T any](s *Store) *Typed[T] {
	return &Typed[T]{store: s}
}

// Store returns the underlying untyped store.
func (t *Typed[T]) Store() *Store { return t.store }

// Create inserts v and returns the stored value with defaults and timestamps applied.
func (t *Typed[T]) Create(ctx context.Context, v T) (T, error) {
	rec, err := ToRecord(v)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := t.store.Create(ctx, rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromRecord[T](out)
}

// Get loads the value with the given primary key.
func (t *Typed[T]) Get(ctx context.Context, id any) (T, error) {
	out, err := t.store.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromRecord[T](out)
}

// Update replaces the stored value's fields with those of v.
func (t *Typed[T]) Update(ctx context.Context, id any, v T) (T, error) {
	rec, err := ToRecord(v)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := t.store.Update(ctx, id, rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromRecord[T](out)
}

// Delete removes the value and reports whether it existed.
func (t *Typed[T]) Delete(ctx context.Context, id any) (bool, error) {
	return t.store.Delete(ctx, id)
}

// List returns a page of values and the total when requested.
func (t *Typed[T]) List(ctx context.Context, opts ListOptions) ([]T, *int64, error) {
	page, err := t.store.List(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	out := make([]T, 0, len(page.Items))
	for _, rec := range page.Items {
		v, errConvert := FromRecord[T](rec)
		if errConvert != nil {
			return nil, nil, errConvert
		}
		out = append(out, v)
	}
	return out, page.Total, nil
}

// ToRecord converts a struct to a record through its JSON form.
func ToRecord(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("store: encode %T: %w", v, err)
	}
	return NormalizeJSON(rec), nil
}

// FromRecord converts a record to T through its JSON form.
func FromRecord[T any](rec Record) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("store: decode record: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("store: decode %T: %w", out, err)
	}
	return out, nil
}
