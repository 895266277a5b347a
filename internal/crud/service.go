package crud

import (
	"context"
	"errors"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
	log "github.com/sirupsen/logrus"
)

// exportBatchSize is the page size used when exporting.
const exportBatchSize = 500

// Service applies validation, permissions and hooks around a Store.
type Service struct {
	store *store.Store
	def   *model.Definition
	hooks Hooks
	perms Permissions
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithHooks sets the lifecycle hooks. Multiple calls are chained in order.
func WithHooks(h Hooks) ServiceOption {
	return func(s *Service) { s.hooks = ChainHooks(s.hooks, h) }
}

// WithPermissions sets the access predicates.
func WithPermissions(p Permissions) ServiceOption {
	return func(s *Service) { s.perms = p }
}

// NewService wraps st.
func NewService(st *store.Store, opts ...ServiceOption) *Service {
	s := &Service{store: st, def: st.Definition()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition returns the model served by the service.
func (s *Service) Definition() *model.Definition { return s.def }

// Store returns the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// ImportError describes one rejected item of an import.
type ImportError struct {
	Index   int                    `json:"index"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details []apperrors.FieldError `json:"details,omitempty"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Success bool          `json:"success"`
	Created int           `json:"created"`
	Errors  []ImportError `json:"errors"`
}

// Create validates payload, runs the create hooks and inserts the record.
// A payload rewritten by a before-hook is validated again.
func (s *Service) Create(ctx context.Context, payload store.Record) (store.Record, error) {
	p := PrincipalFrom(ctx)
	if s.perms.CanCreate != nil && !s.perms.CanCreate(ctx, p, payload) {
		return nil, apperrors.Permission("create", s.def.Name())
	}
	clean, err := validatePayload(s.def, store.NormalizeJSON(payload.Clone()), true)
	if err != nil {
		return nil, err
	}
	if s.hooks.BeforeCreate != nil {
		clean, err = s.hooks.BeforeCreate(ctx, clean)
		if err != nil {
			return nil, veto("create", err)
		}
		if clean, err = validatePayload(s.def, store.NormalizeJSON(clean), true); err != nil {
			return nil, err
		}
	}
	created, err := s.store.Create(ctx, clean)
	if err != nil {
		return nil, err
	}
	s.after(ctx, "create", s.hooks.AfterCreate, created)
	return created, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id any) (store.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.perms.CanGet != nil && !s.perms.CanGet(ctx, PrincipalFrom(ctx), rec) {
		return nil, apperrors.Permission("read", s.def.Name())
	}
	return rec, nil
}

// Update validates patch, runs the update hooks and writes the merged record.
func (s *Service) Update(ctx context.Context, id any, patch store.Record) (store.Record, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.perms.CanUpdate != nil && !s.perms.CanUpdate(ctx, PrincipalFrom(ctx), current) {
		return nil, apperrors.Permission("update", s.def.Name())
	}
	clean, err := validatePayload(s.def, store.NormalizeJSON(patch.Clone()), false)
	if err != nil {
		return nil, err
	}
	if s.hooks.BeforeUpdate != nil {
		clean, err = s.hooks.BeforeUpdate(ctx, current.Clone(), clean)
		if err != nil {
			return nil, veto("update", err)
		}
		if clean, err = validatePayload(s.def, store.NormalizeJSON(clean), false); err != nil {
			return nil, err
		}
	}
	updated, err := s.store.Update(ctx, id, clean)
	if err != nil {
		return nil, err
	}
	s.after(ctx, "update", s.hooks.AfterUpdate, updated)
	return updated, nil
}

// Delete runs the delete hooks and removes the record.
func (s *Service) Delete(ctx context.Context, id any) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.perms.CanDelete != nil && !s.perms.CanDelete(ctx, PrincipalFrom(ctx), current) {
		return apperrors.Permission("delete", s.def.Name())
	}
	if s.hooks.BeforeDelete != nil {
		if errHook := s.hooks.BeforeDelete(ctx, current.Clone()); errHook != nil {
			return veto("delete", errHook)
		}
	}
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return apperrors.NotFound(s.def.Name(), id)
	}
	s.after(ctx, "delete", s.hooks.AfterDelete, current)
	return nil
}

// List returns a page of records.
func (s *Service) List(ctx context.Context, opts store.FilterOptions) (*store.FilterResult, error) {
	if s.perms.CanList != nil && !s.perms.CanList(ctx, PrincipalFrom(ctx)) {
		return nil, apperrors.Permission("list", s.def.Name())
	}
	return s.store.Filter(ctx, opts)
}

// Export returns every record matching opts. Paging fields of opts are ignored.
func (s *Service) Export(ctx context.Context, opts store.FilterOptions) ([]store.Record, error) {
	if s.perms.CanList != nil && !s.perms.CanList(ctx, PrincipalFrom(ctx)) {
		return nil, apperrors.Permission("export", s.def.Name())
	}
	opts.UseModelOutput = true
	opts.DisableTotal = true
	opts.Limit = exportBatchSize

	items := []store.Record{}
	for skip := 0; ; skip += exportBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.Skip = skip
		page, err := s.store.Filter(ctx, opts)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.Fetch < exportBatchSize {
			return items, nil
		}
	}
}

// Import creates each item through Create, collecting per-item failures.
func (s *Service) Import(ctx context.Context, items []store.Record) (*ImportResult, error) {
	if len(items) == 0 {
		return nil, apperrors.Validation("no items to import")
	}
	result := &ImportResult{Errors: []ImportError{}}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := s.Create(ctx, item); err != nil {
			var permErr *apperrors.PermissionError
			if errors.As(err, &permErr) {
				return nil, err
			}
			_, code := apperrors.StatusOf(err)
			result.Errors = append(result.Errors, ImportError{
				Index:   i,
				Error:   err.Error(),
				Code:    code,
				Details: apperrors.FieldsOf(err),
			})
			continue
		}
		result.Created++
	}
	result.Success = len(result.Errors) == 0
	log.WithFields(log.Fields{
		"model":   s.def.Name(),
		"created": result.Created,
		"failed":  len(result.Errors),
	}).Info("import finished")
	return result, nil
}

func (s *Service) after(ctx context.Context, op string, hook func(context.Context, store.Record) error, rec store.Record) {
	if hook == nil {
		return
	}
	if err := hook(ctx, rec.Clone()); err != nil {
		log.WithFields(log.Fields{
			"model":     s.def.Name(),
			"operation": op,
		}).WithError(err).Warn("after hook failed")
	}
}

// veto wraps a before-hook error so it is reported to the client as a rejection.
func veto(op string, err error) error {
	var vetoErr *apperrors.HookVetoError
	if errors.As(err, &vetoErr) {
		return err
	}
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return err
	}
	return apperrors.HookVeto(op, err)
}
