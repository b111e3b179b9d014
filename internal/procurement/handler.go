package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/rbac"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// IdempotencyPort guards create endpoints against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler manages procurement endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	rbac        rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermPOView)).Get("/", h.listPOs)
		r.With(h.rbac.RequireAny(shared.PermPOView)).Get("/{id}", h.getPO)
		r.With(h.rbac.RequireAll(shared.PermPOCreate)).Post("/", h.createPO)
		r.With(h.rbac.RequireAll(shared.PermPOEdit)).Patch("/{id}", h.updatePO)
		r.With(h.rbac.RequireAll(shared.PermPOReceive)).Post("/{id}/receive", h.receivePO)
		r.With(h.rbac.RequireAll(shared.PermPODelete)).Delete("/{id}", h.deletePO)
	})
	r.Route("/grns", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermGRNView)).Get("/", h.listGRNs)
		r.With(h.rbac.RequireAny(shared.PermGRNView)).Get("/{id}", h.getGRN)
		r.With(h.rbac.RequireAll(shared.PermGRNCreate)).Post("/", h.createGRN)
		r.With(h.rbac.RequireAll(shared.PermGRNEdit)).Put("/{id}", h.updateGRN)
		r.With(h.rbac.RequireAll(shared.PermGRNDelete)).Delete("/{id}", h.deleteGRN)
	})
}

type poItemRequest struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createPORequest struct {
	OrganizationID int64           `json:"organization_id" validate:"required,gt=0"`
	SupplierID     int64           `json:"supplier_id" validate:"required,gt=0"`
	OrderNumber    string          `json:"order_number" validate:"omitempty,max=64"`
	OrderDate      time.Time       `json:"order_date"`
	ExpectedDate   *time.Time      `json:"expected_date"`
	Notes          string          `json:"notes" validate:"max=2000"`
	Items          []poItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updatePORequest struct {
	Status       *string          `json:"status"`
	ExpectedDate *time.Time       `json:"expected_date"`
	Notes        *string          `json:"notes" validate:"omitempty,max=2000"`
	Items        *[]poItemRequest `json:"items" validate:"omitempty,dive"`
}

type receivePORequest struct {
	Items []struct {
		ID               int64           `json:"id" validate:"required,gt=0"`
		ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	} `json:"items" validate:"required,min=1,dive"`
	ReceivedDate time.Time `json:"received_date"`
}

type grnLineRequest struct {
	ID                *uuid.UUID      `json:"id"`
	ItemID            int64           `json:"item_id" validate:"required,gt=0"`
	OrderedQty        decimal.Decimal `json:"ordered_qty"`
	ReceivedQty       decimal.Decimal `json:"received_qty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	BatchNumber       string          `json:"batch_number" validate:"max=64"`
	ManufacturingDate *time.Time      `json:"manufacturing_date"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
	StorageLocation   string          `json:"storage_location" validate:"max=128"`
	Remarks           string          `json:"remarks" validate:"max=2000"`
}

type createGRNRequest struct {
	OrganizationID int64            `json:"organization_id" validate:"required,gt=0"`
	GRNNumber      string           `json:"grn_number" validate:"omitempty,max=64"`
	POID           *int64           `json:"po_id" validate:"omitempty,gt=0"`
	SupplierID     int64            `json:"supplier_id" validate:"required,gt=0"`
	WarehouseID    int64            `json:"warehouse_id" validate:"required,gt=0"`
	ReceivedDate   time.Time        `json:"received_date"`
	Remarks        string           `json:"remarks" validate:"max=2000"`
	TotalAmount    *decimal.Decimal `json:"total_amount"`
	LineItems      []grnLineRequest `json:"line_items" validate:"required,min=1,dive"`
}

type updateGRNRequest struct {
	Status      *string           `json:"status"`
	Remarks     *string           `json:"remarks" validate:"omitempty,max=2000"`
	TotalAmount *decimal.Decimal  `json:"total_amount"`
	LineItems   *[]grnLineRequest `json:"line_items" validate:"omitempty,dive"`
}

type listResponse[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreatePOInput{
		OrganizationID: req.OrganizationID,
		SupplierID:     req.SupplierID,
		OrderNumber:    req.OrderNumber,
		OrderDate:      req.OrderDate,
		ExpectedDate:   req.ExpectedDate,
		Notes:          req.Notes,
		Items:          toPOItems(req.Items),
	}
	h.idempotent(w, r, "procurement.po", func(ctx context.Context) (any, error) {
		return h.service.CreatePurchaseOrder(ctx, input)
	})
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r)
	if !ok {
		return
	}
	var req updatePORequest
	if !h.decode(w, r, &req) {
		return
	}
	input := UpdatePOInput{Status: req.Status, ExpectedDate: req.ExpectedDate, Notes: req.Notes}
	if req.Items != nil {
		items := toPOItems(*req.Items)
		input.Items = &items
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receivePO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r)
	if !ok {
		return
	}
	var req receivePORequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceivePOInput{ReceivedDate: req.ReceivedDate}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReceivedItemInput{ID: item.ID, ReceivedQuantity: item.ReceivedQuantity})
	}
	po, err := h.service.ReceivePurchaseOrder(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	items, total, err := h.service.ListPurchaseOrders(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filters = filters.normalize()
	if items == nil {
		items = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, listResponse[PurchaseOrder]{Data: items, Total: total, Limit: filters.Limit, Offset: filters.Offset})
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreateGRNInput{
		OrganizationID: req.OrganizationID,
		GRNNumber:      req.GRNNumber,
		POID:           req.POID,
		SupplierID:     req.SupplierID,
		WarehouseID:    req.WarehouseID,
		ReceivedDate:   req.ReceivedDate,
		Remarks:        req.Remarks,
		TotalAmount:    req.TotalAmount,
		LineItems:      toGRNLines(req.LineItems),
	}
	h.idempotent(w, r, "procurement.grn", func(ctx context.Context) (any, error) {
		return h.service.CreateGRN(ctx, input)
	})
}

func (h *Handler) updateGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	var req updateGRNRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := UpdateGRNInput{Status: req.Status, Remarks: req.Remarks, TotalAmount: req.TotalAmount}
	if req.LineItems != nil {
		lines := toGRNLines(*req.LineItems)
		input.LineItems = &lines
	}
	grn, err := h.service.UpdateGRN(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) deleteGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGRN(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	grn, err := h.service.GetGRN(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	items, total, err := h.service.ListGRNs(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filters = filters.normalize()
	if items == nil {
		items = []GRN{}
	}
	httpx.JSON(w, http.StatusOK, listResponse[GRN]{Data: items, Total: total, Limit: filters.Limit, Offset: filters.Offset})
}

// idempotent runs create under the request's Idempotency-Key, releasing the key when the
// create fails so the client can retry.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, module string, create func(context.Context) (any, error)) {
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	doc, err := create(r.Context())
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), key, module); delErr != nil {
				h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", delErr))
			}
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
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

func (h *Handler) int64Param(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.KindValidation, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.KindValidation, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	return ListFilters{
		Status:     q.Get("status"),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	}
}

func toPOItems(reqs []poItemRequest) []POItemInput {
	items := make([]POItemInput, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, POItemInput{ID: req.ID, ItemID: req.ItemID, Quantity: req.Quantity, UnitPrice: req.UnitPrice})
	}
	return items
}

func toGRNLines(reqs []grnLineRequest) []GRNLineInput {
	lines := make([]GRNLineInput, 0, len(reqs))
	for _, req := range reqs {
		line := GRNLineInput{
			ItemID:            req.ItemID,
			OrderedQty:        req.OrderedQty,
			ReceivedQty:       req.ReceivedQty,
			UnitPrice:         req.UnitPrice,
			BatchNumber:       req.BatchNumber,
			ManufacturingDate: req.ManufacturingDate,
			ExpiryDate:        req.ExpiryDate,
			StorageLocation:   req.StorageLocation,
			Remarks:           req.Remarks,
		}
		if req.ID != nil {
			line.ID = *req.ID
		}
		lines = append(lines, line)
	}
	return lines
}
