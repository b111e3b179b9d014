package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesOrderView))
		r.Get("/orders", h.List)
		r.Get("/orders/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderCreate))
		r.Post("/orders", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderEdit))
		r.Patch("/orders/{id}", h.Update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderDelete))
		r.Delete("/orders/{id}", h.Delete)
	})
}
