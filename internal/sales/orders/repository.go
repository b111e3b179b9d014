package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

var (
	ErrNotFound = fmt.Errorf("%w: sales order", shared.ErrNotFound)
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// Ledger returns the stock ledger bound to the repository's connection or transaction.
	Ledger() ledger.Mutator
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	GetForUpdate(ctx context.Context, id int64) (*SalesOrder, error)
	List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error)
	Create(ctx context.Context, order SalesOrder) (int64, error)
	InsertItem(ctx context.Context, item SalesOrderItem) (int64, error)
	Update(ctx context.Context, order SalesOrder) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db   db.Querier
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{
		db:   pool,
		pool: pool,
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		repoTx := &repository{
			db:   tx,
			pool: r.pool,
		}
		return fn(ctx, repoTx)
	})
	return db.MapError(err)
}

func (r *repository) Ledger() ledger.Mutator {
	return ledger.NewStore(r.db)
}

const orderColumns = `id, organization_id, customer_id, customer_name, warehouse_id, warehouse_name, order_number,
	status, payment_status, order_date, subtotal, discount, tax, total_amount, amount_paid, outstanding_amount,
	notes, created_by, updated_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return r.get(ctx, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*SalesOrder, error) {
	return r.get(ctx, id, true)
}

func (r *repository) get(ctx context.Context, id int64, lock bool) (*SalesOrder, error) {
	sql := `SELECT ` + orderColumns + ` FROM sales_orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w %d", ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, so_id, item_id, quantity, unit_price, total_price
		FROM sales_order_items WHERE so_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SalesOrderItem
		if err := rows.Scan(&item.ID, &item.SOID, &item.ItemID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	var conditions string
	var args []interface{}

	if req.OrganizationID > 0 {
		args = append(args, req.OrganizationID)
		conditions += " AND organization_id = $" + strconv.Itoa(len(args))
	}
	if req.CustomerID > 0 {
		args = append(args, req.CustomerID)
		conditions += " AND customer_id = $" + strconv.Itoa(len(args))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions += " AND status = $" + strconv.Itoa(len(args))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions += " AND (order_number ILIKE $" + strconv.Itoa(len(args)) + " OR customer_name ILIKE $" + strconv.Itoa(len(args)) + ")"
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders WHERE 1=1"+conditions, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales orders: %w", err)
	}

	args = append(args, req.Limit, req.Offset)
	query := "SELECT " + orderColumns + " FROM sales_orders WHERE 1=1" + conditions +
		" ORDER BY order_date DESC, id DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales orders: %w", err)
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales_orders (organization_id, customer_id, customer_name, warehouse_id,
		warehouse_name, order_number, status, payment_status, order_date, subtotal, discount, tax, total_amount,
		amount_paid, outstanding_amount, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`,
		o.OrganizationID, o.CustomerID, o.CustomerName, o.WarehouseID, o.WarehouseName, o.OrderNumber,
		string(o.Status), string(o.PaymentStatus), o.OrderDate, o.Subtotal, o.Discount, o.Tax, o.TotalAmount,
		o.AmountPaid, o.OutstandingAmount, o.Notes, o.CreatedBy, o.UpdatedBy, o.CreatedAt, o.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, db.MapError(fmt.Errorf("insert sales order %s: %w", o.OrderNumber, err))
	}
	return id, nil
}

func (r *repository) InsertItem(ctx context.Context, item SalesOrderItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales_order_items (so_id, item_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.SOID, item.ItemID, item.Quantity, item.UnitPrice, item.TotalPrice).Scan(&id)
	if err != nil {
		return 0, db.MapError(fmt.Errorf("insert sales order item: %w", err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, o SalesOrder) error {
	_, err := r.db.Exec(ctx, `UPDATE sales_orders SET status = $2, payment_status = $3, discount = $4, tax = $5,
		total_amount = $6, amount_paid = $7, outstanding_amount = $8, notes = $9, updated_by = $10, updated_at = $11
		WHERE id = $1`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.Discount, o.Tax, o.TotalAmount, o.AmountPaid,
		o.OutstandingAmount, o.Notes, o.UpdatedBy, o.UpdatedAt)
	return db.MapError(err)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		return db.MapError(fmt.Errorf("delete sales order %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrNotFound, id)
	}
	return nil
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var (
		o             SalesOrder
		status        string
		paymentStatus string
	)
	err := row.Scan(&o.ID, &o.OrganizationID, &o.CustomerID, &o.CustomerName, &o.WarehouseID, &o.WarehouseName,
		&o.OrderNumber, &status, &paymentStatus, &o.OrderDate, &o.Subtotal, &o.Discount, &o.Tax, &o.TotalAmount,
		&o.AmountPaid, &o.OutstandingAmount, &o.Notes, &o.CreatedBy, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return SalesOrder{}, err
	}
	o.Status = SalesOrderStatus(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	return o, nil
}
