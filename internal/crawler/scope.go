package crawler

import (
	"context"
	"fmt"
)

type scopeKey struct{}

// WithScope tags ctx with the unit of work its fetches belong to. Fetch decorators use
// it to keep failure accounting for one (source, term) pair from leaking into another.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope set by WithScope, or "".
func ScopeFrom(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey{}).(string)
	return scope
}

// Scope names the unit of work for a (source, term) pair.
func (p Pair) Scope() string {
	return fmt.Sprintf("pair/%d/%d", p.Source, p.Term)
}
