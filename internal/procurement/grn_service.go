package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// CreateGRNInput describes a new goods receipt.
type CreateGRNInput struct {
	OrganizationID int64
	GRNNumber      string
	POID           *int64
	SupplierID     int64
	WarehouseID    int64
	ReceivedDate   time.Time
	Remarks        string
	TotalAmount    *decimal.Decimal
	LineItems      []GRNLineInput
}

// GRNLineInput is a submitted line. A zero ID is replaced by the line's natural id.
type GRNLineInput struct {
	ID                uuid.UUID
	ItemID            int64
	OrderedQty        decimal.Decimal
	ReceivedQty       decimal.Decimal
	UnitPrice         decimal.Decimal
	BatchNumber       string
	ManufacturingDate *time.Time
	ExpiryDate        *time.Time
	StorageLocation   string
	Remarks           string
}

// UpdateGRNInput carries optional changes. LineItems, when present, is the complete desired
// set of lines and is reconciled against the persisted lines.
type UpdateGRNInput struct {
	Status      *string
	Remarks     *string
	TotalAmount *decimal.Decimal
	LineItems   *[]GRNLineInput
}

// LineID derives the id of a line from its receipt, item and batch so that resubmitting the
// same payload addresses the same rows.
func LineID(grnID uuid.UUID, itemID int64, batch string) uuid.UUID {
	return uuid.NewSHA1(grnID, []byte(fmt.Sprintf("%d:%s", itemID, batch)))
}

// CreateGRN persists a Draft goods receipt with its lines in one transaction.
func (s *Service) CreateGRN(ctx context.Context, input CreateGRNInput) (GRN, error) {
	if input.OrganizationID <= 0 || input.SupplierID <= 0 || input.WarehouseID <= 0 {
		return GRN{}, fmt.Errorf("%w: organization, supplier and warehouse required", shared.ErrValidation)
	}
	if len(input.LineItems) == 0 {
		return GRN{}, fmt.Errorf("%w: at least one line item required", shared.ErrValidation)
	}
	if input.TotalAmount != nil && input.TotalAmount.IsNegative() {
		return GRN{}, fmt.Errorf("%w: total amount must not be negative", shared.ErrValidation)
	}
	grnID := uuid.New()
	lines, err := normalizeLines(grnID, input.LineItems)
	if err != nil {
		return GRN{}, err
	}

	var (
		supplier  masterdata.Supplier
		warehouse masterdata.Warehouse
	)
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
	g.Go(func() error {
		var err error
		warehouse, err = s.directory.Warehouse(gctx, input.WarehouseID)
		return err
	})
	g.Go(func() error { return s.lookupItems(gctx, grnItemIDs(lines)) })
	if err := g.Wait(); err != nil {
		return GRN{}, err
	}

	now := s.now().UTC()
	actor := shared.ActorID(ctx)
	grn := GRN{
		ID:             grnID,
		OrganizationID: input.OrganizationID,
		POID:           input.POID,
		SupplierID:     supplier.ID,
		SupplierName:   supplier.Name,
		WarehouseID:    warehouse.ID,
		WarehouseName:  warehouse.Name,
		Status:         GRNStatusDraft,
		Remarks:        input.Remarks,
		ReceivedDate:   defaultTime(input.ReceivedDate, now),
		CreatedBy:      actor,
		UpdatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, in := range lines {
		grn.LineItems = append(grn.LineItems, newLine(grnID, in, actor, now))
	}
	if input.TotalAmount != nil {
		grn.TotalAmount = *input.TotalAmount
	} else {
		grn.TotalAmount = sumGRNLines(grn.LineItems)
	}

	number, err := s.numbers.Assign(ctx, "GRN", input.GRNNumber, func(number string) error {
		candidate := grn
		candidate.GRNNumber = number
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if candidate.POID != nil {
				po, err := tx.GetPOForUpdate(ctx, *candidate.POID)
				if err != nil {
					return err
				}
				if !po.Status.AcceptsReceipts() {
					return fmt.Errorf("%w: purchase order %s is %s", shared.ErrConflict, po.OrderNumber, po.Status)
				}
			}
			if err := tx.InsertGRN(ctx, candidate); err != nil {
				return err
			}
			for _, line := range candidate.LineItems {
				if err := tx.InsertGRNLine(ctx, line); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return GRN{}, err
	}
	grn.GRNNumber = number

	s.logger.Info("grn created", slog.String("grn_id", grn.ID.String()), slog.String("number", grn.GRNNumber))
	s.recordAudit(ctx, "GRN_CREATE", "grn", grn.ID.String(), map[string]any{"number": grn.GRNNumber, "lines": len(grn.LineItems)})
	s.notify(ctx, shared.DocumentEvent{Type: shared.DocumentGRN, ID: grn.ID.String(), Number: grn.GRNNumber, Status: string(grn.Status)})
	return grn, nil
}

// UpdateGRN reconciles the submitted lines, updates the header and applies the stock effect
// of the status change, all inside one transaction.
func (s *Service) UpdateGRN(ctx context.Context, id uuid.UUID, input UpdateGRNInput) (GRN, error) {
	var next GRNStatus
	if input.Status != nil {
		parsed, err := ParseGRNStatus(*input.Status)
		if err != nil {
			return GRN{}, err
		}
		next = parsed
	}
	if input.TotalAmount != nil && input.TotalAmount.IsNegative() {
		return GRN{}, fmt.Errorf("%w: total amount must not be negative", shared.ErrValidation)
	}
	var submitted []GRNLineInput
	if input.LineItems != nil {
		if len(*input.LineItems) == 0 {
			return GRN{}, fmt.Errorf("%w: at least one line item required", shared.ErrValidation)
		}
		lines, err := normalizeLines(id, *input.LineItems)
		if err != nil {
			return GRN{}, err
		}
		if err := s.lookupItems(ctx, grnItemIDs(lines)); err != nil {
			return GRN{}, err
		}
		submitted = lines
	}

	var (
		updated  GRN
		previous GRNStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = grn.Status
		if next == "" {
			next = grn.Status
		}
		if !grn.Status.CanTransition(next) {
			return fmt.Errorf("%w: grn %s cannot move from %s to %s", shared.ErrInvalidTransition, grn.GRNNumber, grn.Status, next)
		}

		actor := shared.ActorID(ctx)
		now := s.now().UTC()
		linesChanged := false
		if input.LineItems != nil {
			lines, changed, err := s.applyLinePatch(ctx, tx, grn, submitted, actor, now)
			if err != nil {
				return err
			}
			grn.LineItems = lines
			linesChanged = changed
		}

		headerChanged := linesChanged || next != grn.Status
		if input.Remarks != nil && *input.Remarks != grn.Remarks {
			grn.Remarks = *input.Remarks
			headerChanged = true
		}
		total := grn.TotalAmount
		switch {
		case input.TotalAmount != nil:
			total = *input.TotalAmount
		case linesChanged:
			total = sumGRNLines(grn.LineItems)
		}
		if !total.Equal(grn.TotalAmount) {
			grn.TotalAmount = total
			headerChanged = true
		}

		switch {
		case grn.Status == GRNStatusDraft && next == GRNStatusApproved:
			if err := s.postReceipt(ctx, tx, grn, 1); err != nil {
				return err
			}
		case grn.Status == GRNStatusApproved && next == GRNStatusCancelled:
			if err := s.postReceipt(ctx, tx, grn, -1); err != nil {
				return err
			}
		}

		grn.Status = next
		if headerChanged {
			grn.UpdatedBy = actor
			grn.UpdatedAt = now
			if err := tx.UpdateGRN(ctx, grn); err != nil {
				return err
			}
		}
		updated = grn
		return nil
	})
	if err != nil {
		return GRN{}, err
	}
	if previous != updated.Status {
		s.logger.Info("grn status changed", slog.String("grn_id", id.String()), slog.String("from", string(previous)), slog.String("to", string(updated.Status)))
	}
	s.recordAudit(ctx, "GRN_UPDATE", "grn", id.String(), map[string]any{"status": string(updated.Status), "lines": len(updated.LineItems)})
	return updated, nil
}

// applyLinePatch writes the reconciliation patch and returns the resulting line set.
func (s *Service) applyLinePatch(ctx context.Context, tx TxRepository, grn GRN, submitted []GRNLineInput, actor int64, now time.Time) ([]GRNLineItem, bool, error) {
	existing := make([]uuid.UUID, 0, len(grn.LineItems))
	byID := make(map[uuid.UUID]GRNLineItem, len(grn.LineItems))
	for _, line := range grn.LineItems {
		existing = append(existing, line.ID)
		byID[line.ID] = line
	}

	patch := shared.Reconcile(existing, submitted, func(in GRNLineInput) uuid.UUID { return in.ID })
	changedUpdates := patch.Update[:0:0]
	for _, in := range patch.Update {
		current := byID[in.ID]
		if current.ItemID != in.ItemID {
			return nil, false, fmt.Errorf("%w: line %s cannot change item", shared.ErrValidation, in.ID)
		}
		if lineChanged(current, in) {
			changedUpdates = append(changedUpdates, in)
		}
	}
	patch.Update = changedUpdates
	if patch.Empty() {
		return grn.LineItems, false, nil
	}
	if !grn.Status.LinesEditable() {
		return nil, false, fmt.Errorf("%w: lines of %s grn %s are frozen", shared.ErrConflict, grn.Status, grn.GRNNumber)
	}

	for _, lineID := range patch.Delete {
		if err := tx.DeleteGRNLine(ctx, grn.ID, lineID); err != nil {
			return nil, false, err
		}
		delete(byID, lineID)
	}
	for _, in := range patch.Update {
		line := byID[in.ID]
		line.OrderedQty = in.OrderedQty
		line.ReceivedQty = in.ReceivedQty
		line.UnitPrice = in.UnitPrice
		line.LineTotal = lineTotal(in.ReceivedQty, in.UnitPrice)
		line.BatchNumber = in.BatchNumber
		line.ManufacturingDate = in.ManufacturingDate
		line.ExpiryDate = in.ExpiryDate
		line.StorageLocation = in.StorageLocation
		line.Remarks = in.Remarks
		line.UpdatedBy = actor
		line.UpdatedAt = now
		if err := tx.UpdateGRNLine(ctx, line); err != nil {
			return nil, false, err
		}
		byID[in.ID] = line
	}
	created := make([]GRNLineItem, 0, len(patch.Create))
	for _, in := range patch.Create {
		line := newLine(grn.ID, in, actor, now)
		if err := tx.InsertGRNLine(ctx, line); err != nil {
			return nil, false, err
		}
		created = append(created, line)
	}

	lines := make([]GRNLineItem, 0, len(byID)+len(created))
	for _, id := range existing {
		if line, ok := byID[id]; ok {
			lines = append(lines, line)
		}
	}
	return append(lines, created...), true, nil
}

// postReceipt moves the received quantities into (sign 1) or out of (sign -1) the ledger and
// rolls them into the linked purchase order.
func (s *Service) postReceipt(ctx context.Context, tx TxRepository, grn GRN, sign int64) error {
	stock := s.stock(tx)
	for _, line := range grn.LineItems {
		delta := line.ReceivedQty.Mul(decimal.NewFromInt(sign))
		if _, err := stock.UpsertAdd(ctx, ledger.Pair{WarehouseID: grn.WarehouseID, ItemID: line.ItemID}, delta); err != nil {
			return fmt.Errorf("grn %s line %s: %w", grn.GRNNumber, line.ID, err)
		}
	}
	if grn.POID == nil {
		return nil
	}

	po, err := tx.GetPOForUpdate(ctx, *grn.POID)
	if err != nil {
		return err
	}
	if err := receiptAllowed(po, grn, sign); err != nil {
		return err
	}
	touched := make(map[int]struct{})
	for _, line := range grn.LineItems {
		i := matchPOItem(po.Items, line.ItemID)
		if i < 0 {
			continue
		}
		received := po.Items[i].ReceivedQuantity.Add(line.ReceivedQty.Mul(decimal.NewFromInt(sign)))
		if received.IsNegative() {
			received = decimal.Zero
		}
		po.Items[i].ReceivedQuantity = received
		touched[i] = struct{}{}
	}
	for i := range touched {
		if err := tx.UpdatePOItem(ctx, po.Items[i]); err != nil {
			return err
		}
	}

	if po.Status.Receivable() && (sign > 0 || po.Status == POStatusOpen) {
		applyReceiptStatus(&po, grn.ReceivedDate)
	}
	po.UpdatedBy = shared.ActorID(ctx)
	po.UpdatedAt = s.now().UTC()
	return tx.UpdatePO(ctx, po)
}

// receiptAllowed keeps the linked order inside its own lifecycle: approvals follow the receive
// rule, and reversals are only possible while the order is still receivable. A COMPLETED order
// cannot fall back to OPEN, and CLOSED, CANCELLED or REJECTED orders are frozen.
func receiptAllowed(po PurchaseOrder, grn GRN, sign int64) error {
	if po.Status.Receivable() {
		return nil
	}
	if sign > 0 && po.Status == POStatusCompleted {
		return nil
	}
	action := "receive goods"
	if sign < 0 {
		action = "reverse receipts"
	}
	return fmt.Errorf("%w: purchase order %s is %s and cannot %s from grn %s",
		shared.ErrConflict, po.OrderNumber, po.Status, action, grn.GRNNumber)
}

// DeleteGRN removes a non-approved goods receipt and its lines.
func (s *Service) DeleteGRN(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if grn.Status == GRNStatusApproved {
			return fmt.Errorf("%w: approved grn %s cannot be deleted", shared.ErrConflict, grn.GRNNumber)
		}
		return tx.DeleteGRN(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "GRN_DELETE", "grn", id.String(), nil)
	return nil
}

// GetGRN returns one goods receipt with lines.
func (s *Service) GetGRN(ctx context.Context, id uuid.UUID) (GRN, error) {
	return s.repo.GetGRN(ctx, id)
}

// ListGRNs returns a page of goods receipts and the total count.
func (s *Service) ListGRNs(ctx context.Context, filters ListFilters) ([]GRN, int, error) {
	if filters.Status != "" {
		status, err := ParseGRNStatus(filters.Status)
		if err != nil {
			return nil, 0, err
		}
		filters.Status = string(status)
	}
	return s.repo.ListGRNs(ctx, filters.normalize())
}

func normalizeLines(grnID uuid.UUID, inputs []GRNLineInput) ([]GRNLineInput, error) {
	out := make([]GRNLineInput, 0, len(inputs))
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	for i, in := range inputs {
		if in.ItemID <= 0 {
			return nil, fmt.Errorf("%w: line %d: item_id required", shared.ErrValidation, i+1)
		}
		if !in.ReceivedQty.IsPositive() {
			return nil, fmt.Errorf("%w: line %d: received quantity must be positive", shared.ErrValidation, i+1)
		}
		if in.OrderedQty.IsNegative() || in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d: ordered quantity and price must not be negative", shared.ErrValidation, i+1)
		}
		if in.ManufacturingDate != nil && in.ExpiryDate != nil && in.ExpiryDate.Before(*in.ManufacturingDate) {
			return nil, fmt.Errorf("%w: line %d: expiry date precedes manufacturing date", shared.ErrValidation, i+1)
		}
		if in.ID == uuid.Nil {
			in.ID = LineID(grnID, in.ItemID, in.BatchNumber)
		}
		if _, dup := seen[in.ID]; dup {
			return nil, fmt.Errorf("%w: line %d duplicates item %d batch %q", shared.ErrValidation, i+1, in.ItemID, in.BatchNumber)
		}
		seen[in.ID] = struct{}{}
		out = append(out, in)
	}
	return out, nil
}

func newLine(grnID uuid.UUID, in GRNLineInput, actor int64, now time.Time) GRNLineItem {
	return GRNLineItem{
		ID:                in.ID,
		GRNID:             grnID,
		ItemID:            in.ItemID,
		OrderedQty:        in.OrderedQty,
		ReceivedQty:       in.ReceivedQty,
		UnitPrice:         in.UnitPrice,
		LineTotal:         lineTotal(in.ReceivedQty, in.UnitPrice),
		BatchNumber:       in.BatchNumber,
		ManufacturingDate: in.ManufacturingDate,
		ExpiryDate:        in.ExpiryDate,
		StorageLocation:   in.StorageLocation,
		Remarks:           in.Remarks,
		CreatedBy:         actor,
		UpdatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func lineChanged(current GRNLineItem, in GRNLineInput) bool {
	return !current.OrderedQty.Equal(in.OrderedQty) ||
		!current.ReceivedQty.Equal(in.ReceivedQty) ||
		!current.UnitPrice.Equal(in.UnitPrice) ||
		current.BatchNumber != in.BatchNumber ||
		!sameDate(current.ManufacturingDate, in.ManufacturingDate) ||
		!sameDate(current.ExpiryDate, in.ExpiryDate) ||
		current.StorageLocation != in.StorageLocation ||
		current.Remarks != in.Remarks
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func matchPOItem(items []PurchaseOrderItem, itemID int64) int {
	for i, item := range items {
		if item.ItemID == itemID {
			return i
		}
	}
	return -1
}

func grnItemIDs(lines []GRNLineInput) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, in := range lines {
		ids = append(ids, in.ItemID)
	}
	return ids
}

func sumGRNLines(lines []GRNLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}
