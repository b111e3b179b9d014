package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	pricing "github.com/odyssey-erp/fulfillment/internal/sales/shared"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Directory is the master-data lookup used to validate order references.
type Directory interface {
	Organization(ctx context.Context, id int64) (masterdata.Organization, error)
	Customer(ctx context.Context, id int64) (masterdata.Customer, error)
	Item(ctx context.Context, id int64) (masterdata.Item, error)
	Warehouse(ctx context.Context, id int64) (masterdata.Warehouse, error)
}

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Options struct {
	Audit    AuditPort
	Notifier shared.Notifier
	Recorder ledger.Recorder
	Logger   *slog.Logger
}

type Service struct {
	repo      Repository
	directory Directory
	numbers   *shared.Numberer
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, directory Directory, numbers *shared.Numberer, opts Options) *Service {
	if numbers == nil {
		numbers = shared.NewNumberer(nil, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		numbers:   numbers,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateSalesOrder reserves every line in the order's warehouse and persists the order in
// the same transaction. A line that cannot be reserved aborts the whole order.
func (s *Service) CreateSalesOrder(ctx context.Context, req CreateSalesOrderRequest, createdBy int64) (*SalesOrder, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	var (
		customer  masterdata.Customer
		warehouse masterdata.Warehouse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.directory.Organization(gctx, req.OrganizationID)
		return err
	})
	g.Go(func() error {
		var err error
		customer, err = s.directory.Customer(gctx, req.CustomerID)
		if err == nil && !customer.IsActive {
			err = fmt.Errorf("%w: customer %d is inactive", shared.ErrValidation, req.CustomerID)
		}
		return err
	})
	g.Go(func() error {
		var err error
		warehouse, err = s.directory.Warehouse(gctx, req.WarehouseID)
		return err
	})
	for _, itemID := range distinctItems(req.Items) {
		itemID := itemID // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			item, err := s.directory.Item(gctx, itemID)
			if err == nil && !item.IsActive {
				err = fmt.Errorf("%w: item %d is inactive", shared.ErrValidation, itemID)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := SalesOrder{
		OrganizationID: req.OrganizationID,
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		WarehouseID:    warehouse.ID,
		WarehouseName:  warehouse.Name,
		Status:         SalesOrderStatusPending,
		PaymentStatus:  PaymentStatusUnpaid,
		OrderDate:      req.OrderDate,
		Discount:       req.Discount,
		Tax:            req.Tax,
		AmountPaid:     decimal.Zero,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
		UpdatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	subtotal := decimal.Zero
	for _, itemReq := range req.Items {
		item := SalesOrderItem{
			ItemID:     itemReq.ItemID,
			Quantity:   itemReq.Quantity,
			UnitPrice:  itemReq.UnitPrice,
			TotalPrice: pricing.LineTotal(itemReq.Quantity, itemReq.UnitPrice),
		}
		subtotal = subtotal.Add(item.TotalPrice)
		order.Items = append(order.Items, item)
	}
	order.Subtotal = subtotal
	order.TotalAmount, order.OutstandingAmount = pricing.OrderTotals(subtotal, order.Discount, order.Tax, order.AmountPaid)
	if order.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: discount exceeds order value", shared.ErrValidation)
	}

	number, err := s.numbers.Assign(ctx, "SO", req.OrderNumber, func(number string) error {
		candidate := order
		candidate.OrderNumber = number
		candidate.Items = append([]SalesOrderItem(nil), order.Items...)
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			id, err := repo.Create(ctx, candidate)
			if err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			candidate.ID = id

			stock := ledger.Guard(repo.Ledger(), s.opts.Recorder)
			for i := range candidate.Items {
				candidate.Items[i].SOID = id
				itemID, err := repo.InsertItem(ctx, candidate.Items[i])
				if err != nil {
					return fmt.Errorf("insert order item: %w", err)
				}
				candidate.Items[i].ID = itemID

				pair := ledger.Pair{WarehouseID: candidate.WarehouseID, ItemID: candidate.Items[i].ItemID}
				if _, err := stock.Reserve(ctx, pair, candidate.Items[i].Quantity); err != nil {
					return reserveError(pair, candidate.Items[i].Quantity, err)
				}
			}
			order = candidate
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	order.OrderNumber = number

	s.logger.Info("sales order created", slog.Int64("so_id", order.ID), slog.String("number", order.OrderNumber))
	s.recordAudit(ctx, createdBy, "SO_CREATE", order.ID, map[string]any{"number": order.OrderNumber, "total": order.TotalAmount.String()})
	s.notify(ctx, createdBy, order)
	return &order, nil
}

// UpdateSalesOrder moves the order along its lifecycle and recomputes the amounts. Leaving
// PENDING or CONFIRMED consumes the reservation on shipment or releases it on cancellation.
func (s *Service) UpdateSalesOrder(ctx context.Context, id int64, req UpdateSalesOrderRequest, updatedBy int64) (*SalesOrder, error) {
	var (
		next    SalesOrderStatus
		payment PaymentStatus
	)
	if req.Status != nil {
		parsed, err := ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		next = parsed
	}
	if req.PaymentStatus != nil {
		parsed, err := ParsePaymentStatus(*req.PaymentStatus)
		if err != nil {
			return nil, err
		}
		payment = parsed
	}
	for name, amount := range map[string]*decimal.Decimal{"amount_paid": req.AmountPaid, "discount": req.Discount, "tax": req.Tax} {
		if amount != nil && amount.IsNegative() {
			return nil, fmt.Errorf("%w: %s must not be negative", shared.ErrValidation, name)
		}
	}

	var updated SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order := *existing
		if next == "" {
			next = order.Status
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%w: sales order %s cannot move from %s to %s", shared.ErrInvalidTransition, order.OrderNumber, order.Status, next)
		}

		if payment != "" {
			order.PaymentStatus = payment
		}
		if req.AmountPaid != nil {
			order.AmountPaid = *req.AmountPaid
		}
		if req.Discount != nil {
			order.Discount = *req.Discount
		}
		if req.Tax != nil {
			order.Tax = *req.Tax
		}
		if req.Notes != nil {
			order.Notes = *req.Notes
		}
		order.TotalAmount, order.OutstandingAmount = pricing.OrderTotals(order.Subtotal, order.Discount, order.Tax, order.AmountPaid)
		if order.TotalAmount.IsNegative() {
			return fmt.Errorf("%w: discount exceeds order value", shared.ErrValidation)
		}
		if order.AmountPaid.GreaterThan(order.TotalAmount) {
			return fmt.Errorf("%w: amount paid %s exceeds total %s", shared.ErrValidation, order.AmountPaid, order.TotalAmount)
		}

		if err := s.settleReservation(ctx, repo, order, next); err != nil {
			return err
		}
		order.Status = next
		order.UpdatedBy = updatedBy
		order.UpdatedAt = s.now().UTC()
		if err := repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, updatedBy, "SO_UPDATE", id, map[string]any{"status": string(updated.Status), "payment_status": string(updated.PaymentStatus)})
	return &updated, nil
}

// DeleteSalesOrder removes the order, returning reserved quantities to available stock.
func (s *Service) DeleteSalesOrder(ctx context.Context, id int64, deletedBy int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settleReservation(ctx, repo, *order, SalesOrderStatusCancelled); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, deletedBy, "SO_DELETE", id, nil)
	return nil
}

func (s *Service) GetSalesOrder(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListSalesOrders(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	if req.Status != "" {
		status, err := ParseStatus(req.Status)
		if err != nil {
			return nil, 0, err
		}
		req.Status = string(status)
	}
	return s.repo.List(ctx, req.normalize())
}

// settleReservation applies the ledger effect of moving order to next.
func (s *Service) settleReservation(ctx context.Context, repo Repository, order SalesOrder, next SalesOrderStatus) error {
	if !order.Status.HoldsReservation() || next.HoldsReservation() {
		return nil
	}
	stock := ledger.Guard(repo.Ledger(), s.opts.Recorder)
	for _, item := range order.Items {
		pair := ledger.Pair{WarehouseID: order.WarehouseID, ItemID: item.ItemID}
		var err error
		if next == SalesOrderStatusCancelled {
			_, err = stock.Release(ctx, pair, item.Quantity)
		} else {
			_, err = stock.ConsumeReserved(ctx, pair, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("sales order %s %s: %w", order.OrderNumber, pair, err)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor int64, action string, id int64, meta map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	err := s.opts.Audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: "sales_order", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("sales order audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, actor int64, order SalesOrder) {
	if s.opts.Notifier == nil {
		return
	}
	event := shared.DocumentEvent{
		Type:    shared.DocumentSalesOrder,
		ID:      strconv.FormatInt(order.ID, 10),
		Number:  order.OrderNumber,
		Status:  string(order.Status),
		ActorID: actor,
	}
	if err := s.opts.Notifier.DocumentCreated(ctx, event); err != nil {
		s.logger.Warn("sales order notify", slog.Int64("so_id", order.ID), slog.Any("error", err))
	}
}

// reserveError reports a missing ledger row as a shortage: the warehouse holds none of the item.
func reserveError(pair ledger.Pair, qty decimal.Decimal, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %s has no stock, requested %s", shared.ErrInsufficientStock, pair, qty)
	}
	return fmt.Errorf("reserve %s: %w", pair, err)
}

func validateCreate(req CreateSalesOrderRequest) error {
	if req.OrganizationID <= 0 || req.CustomerID <= 0 || req.WarehouseID <= 0 {
		return fmt.Errorf("%w: organization, customer and warehouse required", shared.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if req.Discount.IsNegative() || req.Tax.IsNegative() {
		return fmt.Errorf("%w: discount and tax must not be negative", shared.ErrValidation)
	}
	for i, item := range req.Items {
		if item.ItemID <= 0 {
			return fmt.Errorf("%w: item %d: item_id required", shared.ErrValidation, i+1)
		}
		if !item.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unit price must not be negative", shared.ErrValidation, i+1)
		}
	}
	return nil
}

func distinctItems(items []CreateSalesOrderItemReq) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ItemID]; ok {
			continue
		}
		seen[item.ItemID] = struct{}{}
		ids = append(ids, item.ItemID)
	}
	return ids
}
