package rbac

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Headers set by the upstream authentication gateway.
const (
	HeaderActorID     = "X-Actor-ID"
	HeaderPermissions = "X-Actor-Permissions"
)

const wildcard = "*"

// Authenticate reads the acting principal from trusted gateway headers and stores it in the
// request context. Requests without an actor id pass through anonymously; a malformed id is
// rejected.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actorID <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: malformed %s header", httpx.ErrUnauthorized, HeaderActorID))
			return
		}
		principal := shared.Principal{
			ActorID:     actorID,
			Permissions: splitPermissions(r.Header.Get(HeaderPermissions)),
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func splitPermissions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	perms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}
