// Package actor resolves who is responsible for a mutation.
//
// A Resolver is called synchronously inside the interceptor's lifecycle hook
// with the context of the mutating call. Request-scoped principals reach the
// hook through the context: HTTP middleware stores them with WithPrincipal and
// FromContext reads them back.
package actor

import "context"

// Resolver returns the identifier of the principal performing the current
// mutation, or "" when it cannot be determined.
type Resolver func(ctx context.Context) string

// Resolve calls r, tolerating a nil resolver.
func (r Resolver) Resolve(ctx context.Context) string {
	if r == nil {
		return ""
	}
	return r(ctx)
}

// Static always resolves to id. Useful for workers and migrations.
func Static(id string) Resolver {
	return func(context.Context) string { return id }
}

// Chain returns the first non-empty result of rs, in order.
func Chain(rs ...Resolver) Resolver {
	return func(ctx context.Context) string {
		for _, r := range rs {
			if id := r.Resolve(ctx); id != "" {
				return id
			}
		}
		return ""
	}
}

type principalKey struct{}

// ContextKeyPrincipal is exported for tests that build contexts by hand.
var ContextKeyPrincipal = principalKey{}

// WithPrincipal stores the acting principal in ctx.
func WithPrincipal(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, id)
}

// Principal reads the principal stored by WithPrincipal.
func Principal(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ContextKeyPrincipal).(string); ok {
		return id
	}
	return ""
}

// FromContext resolves the principal stored in the mutation's context.
var FromContext Resolver = Principal
