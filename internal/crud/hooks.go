package crud

import (
	"context"

	"github.com/router-for-me/PersistedObjects/internal/store"
)

// Hooks holds optional callbacks around writes. Nil slots are skipped.
//
// Before-hooks run before the write and may return a rewritten payload or an
// error, which aborts the operation. After-hooks receive a copy of the committed
// record; their errors are logged and never undo the write.
type Hooks struct {
	BeforeCreate func(ctx context.Context, payload store.Record) (store.Record, error)
	AfterCreate  func(ctx context.Context, created store.Record) error
	BeforeUpdate func(ctx context.Context, current, patch store.Record) (store.Record, error)
	AfterUpdate  func(ctx context.Context, updated store.Record) error
	BeforeDelete func(ctx context.Context, current store.Record) error
	AfterDelete  func(ctx context.Context, deleted store.Record) error
}

// ChainHooks runs several hook sets in order. A before-hook error stops the chain.
func ChainHooks(sets ...Hooks) Hooks {
	var out Hooks
	for _, h := range sets {
		out.BeforeCreate = chainBeforeWrite(out.BeforeCreate, h.BeforeCreate)
		out.BeforeUpdate = chainBeforeUpdate(out.BeforeUpdate, h.BeforeUpdate)
		out.BeforeDelete = chainBeforeDelete(out.BeforeDelete, h.BeforeDelete)
		out.AfterCreate = chainAfter(out.AfterCreate, h.AfterCreate)
		out.AfterUpdate = chainAfter(out.AfterUpdate, h.AfterUpdate)
		out.AfterDelete = chainAfter(out.AfterDelete, h.AfterDelete)
	}
	return out
}

func chainBeforeWrite(first, next func(context.Context, store.Record) (store.Record, error)) func(context.Context, store.Record) (store.Record, error) {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(ctx context.Context, payload store.Record) (store.Record, error) {
		rewritten, err := first(ctx, payload)
		if err != nil {
			return nil, err
		}
		return next(ctx, rewritten)
	}
}

func chainBeforeUpdate(first, next func(context.Context, store.Record, store.Record) (store.Record, error)) func(context.Context, store.Record, store.Record) (store.Record, error) {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(ctx context.Context, current, patch store.Record) (store.Record, error) {
		rewritten, err := first(ctx, current, patch)
		if err != nil {
			return nil, err
		}
		return next(ctx, current, rewritten)
	}
}

func chainBeforeDelete(first, next func(context.Context, store.Record) error) func(context.Context, store.Record) error {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(ctx context.Context, current store.Record) error {
		if err := first(ctx, current); err != nil {
			return err
		}
		return next(ctx, current)
	}
}

func chainAfter(first, next func(context.Context, store.Record) error) func(context.Context, store.Record) error {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(ctx context.Context, rec store.Record) error {
		errFirst := first(ctx, rec.Clone())
		errNext := next(ctx, rec.Clone())
		if errFirst != nil {
			return errFirst
		}
		return errNext
	}
}
