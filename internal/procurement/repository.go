package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository provides PostgreSQL backed persistence for procurement documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q db.Querier
}

// WithTx executes fn inside a read-committed transaction. Driver errors are mapped onto the
// shared error kinds.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
	return db.MapError(err)
}

const poColumns = `id, organization_id, supplier_id, supplier_name, order_number, status, total_amount,
	order_date, expected_date, received_date, notes, created_by, updated_by, created_at, updated_at`

const poItemColumns = `id, po_id, item_id, quantity, unit_price, total_price, received_quantity`

const grnColumns = `id, organization_id, grn_number, po_id, supplier_id, supplier_name, warehouse_id, warehouse_name,
	status, total_amount, remarks, received_date, created_by, updated_by, created_at, updated_at`

const grnLineColumns = `id, grn_id, item_id, ordered_qty, received_qty, unit_price, line_total, batch_number,
	manufacturing_date, expiry_date, storage_location, remarks, created_by, updated_by, created_at, updated_at`

// GetPO loads a purchase order with its items.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, id, false)
}

// GetGRN loads a goods receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, id uuid.UUID) (GRN, error) {
	return getGRN(ctx, r.pool, id, false)
}

// ListPOs returns purchase order headers matching filters.
func (r *Repository) ListPOs(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	where, args := listWhere(filters, "order_number")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset)
	sql := `SELECT ` + poColumns + ` FROM purchase_orders WHERE 1=1` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

// ListGRNs returns goods receipt headers matching filters.
func (r *Repository) ListGRNs(ctx context.Context, filters ListFilters) ([]GRN, int, error) {
	where, args := listWhere(filters, "grn_number")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grns WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset)
	sql := `SELECT ` + grnColumns + ` FROM grns WHERE 1=1` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []GRN
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, grn)
	}
	return out, total, rows.Err()
}

func listWhere(filters ListFilters, numberColumn string) (string, []any) {
	where := ""
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filters.SupplierID > 0 {
		args = append(args, filters.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND ` + numberColumn + ` ILIKE $` + strconv.Itoa(len(args))
	}
	return where, args
}

func (tx *txRepo) Ledger() ledger.Mutator {
	return ledger.NewStore(tx.q)
}

func (tx *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO purchase_orders (organization_id, supplier_id, supplier_name, order_number, status,
		total_amount, order_date, expected_date, received_date, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		po.OrganizationID, po.SupplierID, po.SupplierName, po.OrderNumber, string(po.Status), po.TotalAmount,
		po.OrderDate, po.ExpectedDate, po.ReceivedDate, po.Notes, po.CreatedBy, po.UpdatedBy, po.CreatedAt, po.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, db.MapError(fmt.Errorf("insert purchase order %s: %w", po.OrderNumber, err))
	}
	return id, nil
}

func (tx *txRepo) InsertPOItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	var id int64
	err := tx.q.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, item_id, quantity, unit_price, total_price, received_quantity)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.POID, item.ItemID, item.Quantity, item.UnitPrice, item.TotalPrice, item.ReceivedQuantity).Scan(&id)
	if err != nil {
		return 0, db.MapError(fmt.Errorf("insert purchase order item: %w", err))
	}
	return id, nil
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, tx.q, id, true)
}

func (tx *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.q.Exec(ctx, `UPDATE purchase_orders SET status = $2, total_amount = $3, expected_date = $4,
		received_date = $5, notes = $6, updated_by = $7, updated_at = $8 WHERE id = $1`,
		po.ID, string(po.Status), po.TotalAmount, po.ExpectedDate, po.ReceivedDate, po.Notes, po.UpdatedBy, po.UpdatedAt)
	return db.MapError(err)
}

func (tx *txRepo) UpdatePOItem(ctx context.Context, item PurchaseOrderItem) error {
	_, err := tx.q.Exec(ctx, `UPDATE purchase_order_items SET item_id = $3, quantity = $4, unit_price = $5,
		total_price = $6, received_quantity = $7 WHERE id = $1 AND po_id = $2`,
		item.ID, item.POID, item.ItemID, item.Quantity, item.UnitPrice, item.TotalPrice, item.ReceivedQuantity)
	return db.MapError(err)
}

func (tx *txRepo) DeletePOItem(ctx context.Context, poID, itemID int64) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM purchase_order_items WHERE id = $1 AND po_id = $2`, itemID, poID)
	return db.MapError(err)
}

func (tx *txRepo) DeletePO(ctx context.Context, id int64) error {
	tag, err := tx.q.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return db.MapError(fmt.Errorf("delete purchase order %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (tx *txRepo) InsertGRN(ctx context.Context, grn GRN) error {
	_, err := tx.q.Exec(ctx, `INSERT INTO grns (id, organization_id, grn_number, po_id, supplier_id, supplier_name,
		warehouse_id, warehouse_name, status, total_amount, remarks, received_date, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		grn.ID, grn.OrganizationID, grn.GRNNumber, grn.POID, grn.SupplierID, grn.SupplierName, grn.WarehouseID,
		grn.WarehouseName, string(grn.Status), grn.TotalAmount, grn.Remarks, grn.ReceivedDate, grn.CreatedBy,
		grn.UpdatedBy, grn.CreatedAt, grn.UpdatedAt)
	if err != nil {
		return db.MapError(fmt.Errorf("insert grn %s: %w", grn.GRNNumber, err))
	}
	return nil
}

func (tx *txRepo) InsertGRNLine(ctx context.Context, line GRNLineItem) error {
	_, err := tx.q.Exec(ctx, `INSERT INTO grn_line_items (`+grnLineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		line.ID, line.GRNID, line.ItemID, line.OrderedQty, line.ReceivedQty, line.UnitPrice, line.LineTotal,
		line.BatchNumber, line.ManufacturingDate, line.ExpiryDate, line.StorageLocation, line.Remarks,
		line.CreatedBy, line.UpdatedBy, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return db.MapError(fmt.Errorf("insert grn line %s: %w", line.ID, err))
	}
	return nil
}

func (tx *txRepo) GetGRNForUpdate(ctx context.Context, id uuid.UUID) (GRN, error) {
	return getGRN(ctx, tx.q, id, true)
}

func (tx *txRepo) UpdateGRN(ctx context.Context, grn GRN) error {
	_, err := tx.q.Exec(ctx, `UPDATE grns SET status = $2, remarks = $3, total_amount = $4, updated_by = $5, updated_at = $6
		WHERE id = $1`, grn.ID, string(grn.Status), grn.Remarks, grn.TotalAmount, grn.UpdatedBy, grn.UpdatedAt)
	return db.MapError(err)
}

func (tx *txRepo) UpdateGRNLine(ctx context.Context, line GRNLineItem) error {
	_, err := tx.q.Exec(ctx, `UPDATE grn_line_items SET ordered_qty = $3, received_qty = $4, unit_price = $5,
		line_total = $6, batch_number = $7, manufacturing_date = $8, expiry_date = $9, storage_location = $10,
		remarks = $11, updated_by = $12, updated_at = $13 WHERE id = $1 AND grn_id = $2`,
		line.ID, line.GRNID, line.OrderedQty, line.ReceivedQty, line.UnitPrice, line.LineTotal, line.BatchNumber,
		line.ManufacturingDate, line.ExpiryDate, line.StorageLocation, line.Remarks, line.UpdatedBy, line.UpdatedAt)
	return db.MapError(err)
}

func (tx *txRepo) DeleteGRNLine(ctx context.Context, grnID, lineID uuid.UUID) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM grn_line_items WHERE id = $1 AND grn_id = $2`, lineID, grnID)
	return db.MapError(err)
}

func (tx *txRepo) DeleteGRN(ctx context.Context, id uuid.UUID) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM grns WHERE id = $1`, id)
	return db.MapError(err)
}

func getPO(ctx context.Context, q db.Querier, id int64, lock bool) (PurchaseOrder, error) {
	sql := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	po, err := scanPO(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT `+poItemColumns+` FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ItemID, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.ReceivedQuantity); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

func getGRN(ctx context.Context, q db.Querier, id uuid.UUID, lock bool) (GRN, error) {
	sql := `SELECT ` + grnColumns + ` FROM grns WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	grn, err := scanGRN(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GRN{}, fmt.Errorf("%w: grn %s", shared.ErrNotFound, id)
		}
		return GRN{}, err
	}
	rows, err := q.Query(ctx, `SELECT `+grnLineColumns+` FROM grn_line_items WHERE grn_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return GRN{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l GRNLineItem
		if err := rows.Scan(&l.ID, &l.GRNID, &l.ItemID, &l.OrderedQty, &l.ReceivedQty, &l.UnitPrice, &l.LineTotal,
			&l.BatchNumber, &l.ManufacturingDate, &l.ExpiryDate, &l.StorageLocation, &l.Remarks,
			&l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return GRN{}, err
		}
		grn.LineItems = append(grn.LineItems, l)
	}
	return grn, rows.Err()
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.OrganizationID, &po.SupplierID, &po.SupplierName, &po.OrderNumber, &status,
		&po.TotalAmount, &po.OrderDate, &po.ExpectedDate, &po.ReceivedDate, &po.Notes, &po.CreatedBy,
		&po.UpdatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.Status = POStatus(status)
	return po, err
}

func scanGRN(row pgx.Row) (GRN, error) {
	var grn GRN
	var status string
	err := row.Scan(&grn.ID, &grn.OrganizationID, &grn.GRNNumber, &grn.POID, &grn.SupplierID, &grn.SupplierName,
		&grn.WarehouseID, &grn.WarehouseName, &status, &grn.TotalAmount, &grn.Remarks, &grn.ReceivedDate,
		&grn.CreatedBy, &grn.UpdatedBy, &grn.CreatedAt, &grn.UpdatedAt)
	grn.Status = GRNStatus(status)
	return grn, err
}
