package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/rbac"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// IdempotencyPort guards order creation against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	rbac        rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		rbac:        rbac,
	}
}

type listResponse struct {
	Data   []SalesOrder `json:"data"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListSalesOrdersRequest{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	req.OrganizationID, _ = strconv.ParseInt(q.Get("organization_id"), 10, 64)
	req.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, total, err := h.service.ListSalesOrders(r.Context(), req)
	if err != nil {
		h.fail(w, r, "list orders failed", err)
		return
	}
	if orders == nil {
		orders = []SalesOrder{}
	}
	req = req.normalize()
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Total: total, Limit: req.Limit, Offset: req.Offset})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetSalesOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSalesOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "sales.order"); err != nil {
			h.fail(w, r, "idempotency check failed", err)
			return
		}
	}
	order, err := h.service.CreateSalesOrder(r.Context(), req, h.getCurrentUserID(r))
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), key, "sales.order"); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, r, "create order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req UpdateSalesOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateSalesOrder(r.Context(), id, req, h.getCurrentUserID(r))
	if err != nil {
		h.fail(w, r, "update order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSalesOrder(r.Context(), id, h.getCurrentUserID(r)); err != nil {
		h.fail(w, r, "delete order failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := httpx.Validate(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.KindValidation, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(msg, "error", err, "path", r.URL.Path)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) getCurrentUserID(r *http.Request) int64 {
	return shared.ActorID(r.Context())
}
