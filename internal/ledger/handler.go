package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/rbac"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/", h.list)
		r.Get("/{warehouseID}/{itemID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockAdjust))
		r.Post("/add", h.add)
		r.Put("/", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockReserve))
		r.Post("/reserve", h.reserve)
		r.Post("/release", h.release)
	})
}

type movementRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type setRequest struct {
	WarehouseID   int64           `json:"warehouse_id" validate:"required,gt=0"`
	ItemID        int64           `json:"item_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservedStock decimal.Decimal `json:"reserved_stock"`
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.AddStock)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.ReserveStock)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.service.ReleaseStock)
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request, op func(context.Context, MovementInput) (WarehouseStock, error)) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := op(r.Context(), MovementInput{
		Pair:     Pair{WarehouseID: req.WarehouseID, ItemID: req.ItemID},
		Quantity: req.Quantity,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.UpdateStock(r.Context(), SetInput{
		Pair:          Pair{WarehouseID: req.WarehouseID, ItemID: req.ItemID},
		Quantity:      req.Quantity,
		ReservedStock: req.ReservedStock,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.KindValidation, "warehouse_id query parameter required")
		return
	}
	rows, err := h.service.ListStock(r.Context(), warehouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []WarehouseStock{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	warehouseID, err1 := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	itemID, err2 := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.KindValidation, "invalid warehouse or item id")
		return
	}
	stock, err := h.service.GetStock(r.Context(), Pair{WarehouseID: warehouseID, ItemID: itemID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error("stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
