package rbac

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// PermissionsHandler reports which fulfillment permissions the caller holds.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionView struct {
	Name    string `json:"name"`
	Granted bool   `json:"granted"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: authentication required", httpx.ErrUnauthorized))
		return
	}
	granted := permissionSet(principal.Permissions)
	_, all := granted[wildcard]
	scopes := shared.FulfillmentScopes()
	views := make([]permissionView, 0, len(scopes))
	for _, scope := range scopes {
		_, has := granted[scope]
		views = append(views, permissionView{Name: scope, Granted: all || has})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actor_id": principal.ActorID, "permissions": views})
}
