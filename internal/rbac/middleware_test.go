package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/procurement/purchase-orders", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	Authenticate(h).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyWithoutPrincipal(t *testing.T) {
	m := Middleware{}
	rec := serve(m.RequireAny(shared.PermPOView)(okHandler()), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnyGrantsMatchingPermission(t *testing.T) {
	m := Middleware{}
	rec := serve(m.RequireAny(shared.PermPOView, shared.PermPOEdit)(okHandler()), map[string]string{
		HeaderActorID:     "7",
		HeaderPermissions: "sales.order.view, PROCUREMENT.PO.VIEW",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAllDeniesPartialGrant(t *testing.T) {
	m := Middleware{}
	rec := serve(m.RequireAll(shared.PermPOView, shared.PermPODelete)(okHandler()), map[string]string{
		HeaderActorID:     "7",
		HeaderPermissions: shared.PermPOView,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind":"forbidden"`)
}

func TestWildcardGrantsEverything(t *testing.T) {
	m := Middleware{}
	rec := serve(m.RequireAll(shared.PermPODelete, shared.PermStockAdjust)(okHandler()), map[string]string{
		HeaderActorID:     "1",
		HeaderPermissions: "*",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticateRejectsMalformedActor(t *testing.T) {
	rec := serve(okHandler(), map[string]string{HeaderActorID: "abc"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateStoresPrincipal(t *testing.T) {
	var got shared.Principal
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.PrincipalFromContext(r.Context())
	})
	serve(h, map[string]string{HeaderActorID: "42", HeaderPermissions: "a, b,,c"})
	require.Equal(t, int64(42), got.ActorID)
	require.Equal(t, []string{"a", "b", "c"}, got.Permissions)
}

func TestPermissionsListing(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Authenticate)
	r.Route("/permissions", NewPermissionsHandler().MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/permissions/", nil)
	req.Header.Set(HeaderActorID, "5")
	req.Header.Set(HeaderPermissions, "Sales.Order.View")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ActorID     int64 `json:"actor_id"`
		Permissions []struct {
			Name    string `json:"name"`
			Granted bool   `json:"granted"`
		} `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(5), body.ActorID)
	require.Len(t, body.Permissions, len(shared.FulfillmentScopes()))
	for _, p := range body.Permissions {
		require.Equal(t, p.Name == shared.PermSalesOrderView, p.Granted, p.Name)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
