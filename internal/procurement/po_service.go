package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	OrganizationID int64
	SupplierID     int64
	OrderNumber    string
	OrderDate      time.Time
	ExpectedDate   *time.Time
	Notes          string
	Items          []POItemInput
}

// POItemInput describes an ordered item. ID refers to a persisted item on updates.
type POItemInput struct {
	ID        int64
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// UpdatePOInput carries optional changes; nil fields are left untouched.
type UpdatePOInput struct {
	Status       *string
	ExpectedDate *time.Time
	Notes        *string
	Items        *[]POItemInput
}

// ReceivedItemInput sets the absolute received quantity of one PO item.
type ReceivedItemInput struct {
	ID               int64
	ReceivedQuantity decimal.Decimal
}

// ReceivePOInput records goods received outside the GRN flow.
type ReceivePOInput struct {
	Items        []ReceivedItemInput
	ReceivedDate time.Time
}

// CreatePurchaseOrder validates references and persists a PENDING purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.OrganizationID <= 0 || input.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: organization and supplier required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if err := validatePOItems(input.Items); err != nil {
		return PurchaseOrder{}, err
	}

	var supplier masterdata.Supplier
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.directory.Organization(gctx, input.OrganizationID)
		return err
	})
	g.Go(func() error {
		var err error
		supplier, err = s.lookupSupplier(gctx, input.SupplierID)
		return err
	})
	g.Go(func() error { return s.lookupItems(gctx, poItemIDs(input.Items)) })
	if err := g.Wait(); err != nil {
		return PurchaseOrder{}, err
	}

	now := s.now().UTC()
	actor := shared.ActorID(ctx)
	po := PurchaseOrder{
		OrganizationID: input.OrganizationID,
		SupplierID:     supplier.ID,
		SupplierName:   supplier.Name,
		Status:         POStatusPending,
		OrderDate:      defaultTime(input.OrderDate, now),
		ExpectedDate:   input.ExpectedDate,
		Notes:          input.Notes,
		CreatedBy:      actor,
		UpdatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, in := range input.Items {
		po.Items = append(po.Items, PurchaseOrderItem{
			ItemID:           in.ItemID,
			Quantity:         in.Quantity,
			UnitPrice:        in.UnitPrice,
			TotalPrice:       lineTotal(in.Quantity, in.UnitPrice),
			ReceivedQuantity: decimal.Zero,
		})
	}
	po.TotalAmount = sumPOItems(po.Items)

	number, err := s.numbers.Assign(ctx, "PO", input.OrderNumber, func(number string) error {
		candidate := po
		candidate.OrderNumber = number
		candidate.Items = append([]PurchaseOrderItem(nil), po.Items...)
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertPO(ctx, candidate)
			if err != nil {
				return err
			}
			candidate.ID = id
			for i := range candidate.Items {
				candidate.Items[i].POID = id
				itemID, err := tx.InsertPOItem(ctx, candidate.Items[i])
				if err != nil {
					return err
				}
				candidate.Items[i].ID = itemID
			}
			po = candidate
			return nil
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.OrderNumber = number

	s.logger.Info("purchase order created", slog.Int64("po_id", po.ID), slog.String("number", po.OrderNumber))
	s.recordAudit(ctx, "PO_CREATE", "purchase_order", strconv.FormatInt(po.ID, 10), map[string]any{"number": po.OrderNumber, "total": po.TotalAmount.String()})
	s.notify(ctx, shared.DocumentEvent{Type: shared.DocumentPurchaseOrder, ID: strconv.FormatInt(po.ID, 10), Number: po.OrderNumber, Status: string(po.Status)})
	return po, nil
}

// UpdatePurchaseOrder applies a status transition and optional header or item changes.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, input UpdatePOInput) (PurchaseOrder, error) {
	var next POStatus
	if input.Status != nil {
		parsed, err := ParsePOStatus(*input.Status)
		if err != nil {
			return PurchaseOrder{}, err
		}
		next = parsed
	}
	if input.Items != nil {
		items := *input.Items
		if len(items) == 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
		}
		if err := validatePOItems(items); err != nil {
			return PurchaseOrder{}, err
		}
		if err := s.lookupItems(ctx, poItemIDs(items)); err != nil {
			return PurchaseOrder{}, err
		}
	}

	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if next != "" && !po.Status.CanTransition(next) {
			return fmt.Errorf("%w: purchase order %s cannot move from %s to %s", shared.ErrInvalidTransition, po.OrderNumber, po.Status, next)
		}
		if input.Items != nil {
			if po.Status != POStatusPending {
				return fmt.Errorf("%w: items of purchase order %s are locked in status %s", shared.ErrConflict, po.OrderNumber, po.Status)
			}
			items, err := s.reconcilePOItems(ctx, tx, po, *input.Items)
			if err != nil {
				return err
			}
			po.Items = items
			po.TotalAmount = sumPOItems(items)
		}
		if next != "" {
			po.Status = next
		}
		if input.ExpectedDate != nil {
			po.ExpectedDate = input.ExpectedDate
		}
		if input.Notes != nil {
			po.Notes = *input.Notes
		}
		po.UpdatedBy = shared.ActorID(ctx)
		po.UpdatedAt = s.now().UTC()
		if err := tx.UpdatePO(ctx, po); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_UPDATE", "purchase_order", strconv.FormatInt(id, 10), map[string]any{"status": string(updated.Status)})
	return updated, nil
}

func (s *Service) reconcilePOItems(ctx context.Context, tx TxRepository, po PurchaseOrder, submitted []POItemInput) ([]PurchaseOrderItem, error) {
	existing := make([]int64, 0, len(po.Items))
	byID := make(map[int64]PurchaseOrderItem, len(po.Items))
	for _, item := range po.Items {
		existing = append(existing, item.ID)
		byID[item.ID] = item
	}
	seen := make(map[int64]struct{}, len(submitted))
	for _, in := range submitted {
		if in.ID == 0 {
			continue
		}
		if _, ok := byID[in.ID]; !ok {
			return nil, fmt.Errorf("%w: item line %d does not belong to purchase order %s", shared.ErrValidation, in.ID, po.OrderNumber)
		}
		if _, dup := seen[in.ID]; dup {
			return nil, fmt.Errorf("%w: item line %d submitted more than once", shared.ErrValidation, in.ID)
		}
		seen[in.ID] = struct{}{}
	}

	patch := shared.Reconcile(existing, submitted, func(in POItemInput) int64 { return in.ID })
	for _, lineID := range patch.Delete {
		if err := tx.DeletePOItem(ctx, po.ID, lineID); err != nil {
			return nil, err
		}
		delete(byID, lineID)
	}
	for _, in := range patch.Update {
		item := byID[in.ID]
		item.ItemID = in.ItemID
		item.Quantity = in.Quantity
		item.UnitPrice = in.UnitPrice
		item.TotalPrice = lineTotal(in.Quantity, in.UnitPrice)
		if err := tx.UpdatePOItem(ctx, item); err != nil {
			return nil, err
		}
		byID[in.ID] = item
	}
	for _, in := range patch.Create {
		item := PurchaseOrderItem{
			POID:             po.ID,
			ItemID:           in.ItemID,
			Quantity:         in.Quantity,
			UnitPrice:        in.UnitPrice,
			TotalPrice:       lineTotal(in.Quantity, in.UnitPrice),
			ReceivedQuantity: decimal.Zero,
		}
		itemID, err := tx.InsertPOItem(ctx, item)
		if err != nil {
			return nil, err
		}
		item.ID = itemID
		byID[itemID] = item
	}

	items := make([]PurchaseOrderItem, 0, len(byID))
	for _, item := range byID {
		items = append(items, item)
	}
	sortPOItems(items)
	return items, nil
}

// ReceivePurchaseOrder records absolute received quantities and derives OPEN or COMPLETED.
// It does not touch the stock ledger; stock arrives through approved goods receipts.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id int64, input ReceivePOInput) (PurchaseOrder, error) {
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: received items required", shared.ErrValidation)
	}
	for _, in := range input.Items {
		if in.ID <= 0 || in.ReceivedQuantity.IsNegative() {
			return PurchaseOrder{}, fmt.Errorf("%w: received items need an id and a non-negative quantity", shared.ErrValidation)
		}
	}

	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !po.Status.Receivable() {
			return fmt.Errorf("%w: purchase order %s cannot receive goods in status %s", shared.ErrInvalidTransition, po.OrderNumber, po.Status)
		}
		index := make(map[int64]int, len(po.Items))
		for i, item := range po.Items {
			index[item.ID] = i
		}
		for _, in := range input.Items {
			i, ok := index[in.ID]
			if !ok {
				return fmt.Errorf("%w: item line %d does not belong to purchase order %s", shared.ErrValidation, in.ID, po.OrderNumber)
			}
			po.Items[i].ReceivedQuantity = in.ReceivedQuantity
			if err := tx.UpdatePOItem(ctx, po.Items[i]); err != nil {
				return err
			}
		}
		applyReceiptStatus(&po, defaultTime(input.ReceivedDate, s.now().UTC()))
		po.UpdatedBy = shared.ActorID(ctx)
		po.UpdatedAt = s.now().UTC()
		if err := tx.UpdatePO(ctx, po); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order received", slog.Int64("po_id", id), slog.String("status", string(updated.Status)))
	s.recordAudit(ctx, "PO_RECEIVE", "purchase_order", strconv.FormatInt(id, 10), map[string]any{"status": string(updated.Status)})
	return updated, nil
}

// DeletePurchaseOrder removes the order and its items. Orders referenced by goods receipts
// are refused by the store.
func (s *Service) DeletePurchaseOrder(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPOForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeletePO(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_DELETE", "purchase_order", strconv.FormatInt(id, 10), nil)
	return nil
}

// GetPurchaseOrder returns one order with items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders returns a page of orders and the total count.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	if filters.Status != "" {
		status, err := ParsePOStatus(filters.Status)
		if err != nil {
			return nil, 0, err
		}
		filters.Status = string(status)
	}
	return s.repo.ListPOs(ctx, filters.normalize())
}

// applyReceiptStatus marks the order COMPLETED once every item is fully received, else OPEN.
func applyReceiptStatus(po *PurchaseOrder, receivedAt time.Time) {
	complete := len(po.Items) > 0
	for _, item := range po.Items {
		if item.ReceivedQuantity.LessThan(item.Quantity) {
			complete = false
			break
		}
	}
	if complete {
		po.Status = POStatusCompleted
		at := receivedAt
		po.ReceivedDate = &at
		return
	}
	po.Status = POStatusOpen
	po.ReceivedDate = nil
}

func validatePOItems(items []POItemInput) error {
	for i, in := range items {
		if in.ItemID <= 0 {
			return fmt.Errorf("%w: item %d: item_id required", shared.ErrValidation, i+1)
		}
		if !in.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if in.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unit price must not be negative", shared.ErrValidation, i+1)
		}
	}
	return nil
}

func poItemIDs(items []POItemInput) []int64 {
	ids := make([]int64, 0, len(items))
	for _, in := range items {
		ids = append(ids, in.ItemID)
	}
	return ids
}

func sumPOItems(items []PurchaseOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}
