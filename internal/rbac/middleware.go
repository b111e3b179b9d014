package rbac

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if hasAnyPermission(principal.Permissions, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, principal, normalized)
		})
	}
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if hasAllPermissions(principal.Permissions, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, principal, normalized)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, principal shared.Principal, required []string) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied",
			slog.Int64("actor_id", principal.ActorID),
			slog.String("path", r.URL.Path),
			slog.String("required", strings.Join(required, ",")))
	}
	httpx.RespondError(w, httpx.ErrForbidden)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func permissionSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return set
}

func hasAnyPermission(granted []string, required []string) bool {
	set := permissionSet(granted)
	if _, ok := set[wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := permissionSet(granted)
	if _, ok := set[wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
