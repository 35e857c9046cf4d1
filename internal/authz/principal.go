// internal/authz/principal.go
//
// Typed request principal.
//
// Context
// -------
// Every request is resolved to exactly one Principal before any policy
// runs.  Policy code never looks at raw headers or origins; the spoofable
// surface is confined to session verification in session.go.

package authz

import "context"

// Principal identifies the caller.  The zero value is the anonymous
// principal.
type Principal struct {
	UserID uint64
	Admin  bool
}

// Anonymous reports whether no authenticated user is attached.
func (p Principal) Anonymous() bool { return p.UserID == 0 && !p.Admin }

type ctxKey struct{} // unexported, collision-proof

// WithPrincipal stores p in ctx for downstream handlers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the Principal stored by the auth middleware, or the
// anonymous principal when the middleware has not run.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(ctxKey{}).(Principal)
	return p
}
