package crud

import (
	"context"
	"slices"

	"github.com/router-for-me/PersistedObjects/internal/store"
)

// Principal identifies the caller of a service operation.
type Principal struct {
	Subject string // Token subject; empty for anonymous callers.
	Role    string // Role claim.
}

// Anonymous reports whether the caller presented no credentials.
func (p Principal) Anonymous() bool { return p.Subject == "" }

type principalKey struct{}

// WithPrincipal attaches a principal to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached to ctx or an anonymous principal.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// Permissions holds optional access predicates. A nil predicate allows the action.
type Permissions struct {
	CanList   func(ctx context.Context, p Principal) bool
	CanGet    func(ctx context.Context, p Principal, rec store.Record) bool
	CanCreate func(ctx context.Context, p Principal, payload store.Record) bool
	CanUpdate func(ctx context.Context, p Principal, current store.Record) bool
	CanDelete func(ctx context.Context, p Principal, current store.Record) bool
}

// AuthenticatedWrites allows reads to everyone and writes to authenticated callers.
// When roles are given the caller's role must be one of them.
func AuthenticatedWrites(roles ...string) Permissions {
	allowed := func(p Principal) bool {
		if p.Anonymous() {
			return false
		}
		return len(roles) == 0 || slices.Contains(roles, p.Role)
	}
	return Permissions{
		CanCreate: func(_ context.Context, p Principal, _ store.Record) bool { return allowed(p) },
		CanUpdate: func(_ context.Context, p Principal, _ store.Record) bool { return allowed(p) },
		CanDelete: func(_ context.Context, p Principal, _ store.Record) bool { return allowed(p) },
	}
}
