package shared

import "context"

// Principal is the acting user supplied by the authentication layer.
type Principal struct {
	ActorID     int64
	Permissions []string
}

// Has reports whether the principal holds perm.
func (p Principal) Has(perm string) bool {
	for _, granted := range p.Permissions {
		if granted == perm || granted == "*" {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// ActorID returns the acting user id, or 0 for system calls.
func ActorID(ctx context.Context) int64 {
	p, _ := PrincipalFromContext(ctx)
	return p.ActorID
}
