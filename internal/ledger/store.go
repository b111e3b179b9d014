package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const stockColumns = `warehouse_id, item_id, quantity, reserved_stock, updated_at`

const (
	upsertAddSQL = `INSERT INTO warehouse_stock (warehouse_id, item_id, quantity, reserved_stock, updated_at)
VALUES ($1, $2, $3, 0, NOW())
ON CONFLICT (warehouse_id, item_id) DO UPDATE
SET quantity = warehouse_stock.quantity + EXCLUDED.quantity, updated_at = NOW()
RETURNING ` + stockColumns

	subtractSQL = `UPDATE warehouse_stock SET quantity = quantity + $3, updated_at = NOW()
WHERE warehouse_id = $1 AND item_id = $2 AND quantity + $3 >= 0
RETURNING ` + stockColumns

	reserveSQL = `UPDATE warehouse_stock SET quantity = quantity - $3, reserved_stock = reserved_stock + $3, updated_at = NOW()
WHERE warehouse_id = $1 AND item_id = $2 AND quantity >= $3
RETURNING ` + stockColumns

	releaseSQL = `UPDATE warehouse_stock SET quantity = quantity + $3, reserved_stock = reserved_stock - $3, updated_at = NOW()
WHERE warehouse_id = $1 AND item_id = $2 AND reserved_stock >= $3
RETURNING ` + stockColumns

	consumeSQL = `UPDATE warehouse_stock SET reserved_stock = reserved_stock - $3, updated_at = NOW()
WHERE warehouse_id = $1 AND item_id = $2 AND reserved_stock >= $3
RETURNING ` + stockColumns

	setSQL = `UPDATE warehouse_stock SET quantity = $3, reserved_stock = $4, updated_at = NOW()
WHERE warehouse_id = $1 AND item_id = $2
RETURNING ` + stockColumns

	getSQL = `SELECT ` + stockColumns + ` FROM warehouse_stock WHERE warehouse_id = $1 AND item_id = $2`

	listSQL = `SELECT ` + stockColumns + ` FROM warehouse_stock WHERE warehouse_id = $1 ORDER BY item_id`
)

// Store is the Postgres Mutator. Bind it to a pgx.Tx to join the caller's transaction or to
// the pool for single-statement autocommit use.
type Store struct {
	q db.Querier
}

// NewStore binds a Store to q.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

var _ Mutator = (*Store)(nil)

func (s *Store) UpsertAdd(ctx context.Context, pair Pair, delta decimal.Decimal) (WarehouseStock, error) {
	if delta.IsPositive() {
		return s.scanOne(ctx, upsertAddSQL, pair.WarehouseID, pair.ItemID, delta)
	}
	stock, err := s.scanOne(ctx, subtractSQL, pair.WarehouseID, pair.ItemID, delta)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.Get(ctx, pair)
		switch {
		case errors.Is(getErr, shared.ErrNotFound):
			return WarehouseStock{}, insufficient(pair, delta.Neg(), decimal.Zero, "quantity")
		case getErr != nil:
			return WarehouseStock{}, getErr
		}
		return WarehouseStock{}, insufficient(pair, delta.Neg(), current.Quantity, "quantity")
	}
	return stock, err
}

func (s *Store) Reserve(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	stock, err := s.scanOne(ctx, reserveSQL, pair.WarehouseID, pair.ItemID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, s.classify(ctx, pair, qty, func(c WarehouseStock) (decimal.Decimal, string) {
			return c.Quantity, "quantity"
		})
	}
	return stock, err
}

func (s *Store) Release(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	stock, err := s.scanOne(ctx, releaseSQL, pair.WarehouseID, pair.ItemID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, s.classify(ctx, pair, qty, reservedColumn)
	}
	return stock, err
}

func (s *Store) ConsumeReserved(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	stock, err := s.scanOne(ctx, consumeSQL, pair.WarehouseID, pair.ItemID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, s.classify(ctx, pair, qty, reservedColumn)
	}
	return stock, err
}

func (s *Store) Set(ctx context.Context, pair Pair, quantity, reserved decimal.Decimal) (WarehouseStock, error) {
	stock, err := s.scanOne(ctx, setSQL, pair.WarehouseID, pair.ItemID, quantity, reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, notFound(pair)
	}
	return stock, err
}

func (s *Store) Get(ctx context.Context, pair Pair) (WarehouseStock, error) {
	stock, err := s.scanOne(ctx, getSQL, pair.WarehouseID, pair.ItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, notFound(pair)
	}
	return stock, err
}

// List returns every row of a warehouse ordered by item.
func (s *Store) List(ctx context.Context, warehouseID int64) ([]WarehouseStock, error) {
	rows, err := s.q.Query(ctx, listSQL, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list stock: %w", err)
	}
	defer rows.Close()
	var out []WarehouseStock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stock)
	}
	return out, rows.Err()
}

// classify runs after a conditional update matched nothing. It only explains the failure.
func (s *Store) classify(ctx context.Context, pair Pair, want decimal.Decimal, column func(WarehouseStock) (decimal.Decimal, string)) error {
	current, err := s.Get(ctx, pair)
	if err != nil {
		return err
	}
	have, name := column(current)
	return insufficient(pair, want, have, name)
}

func (s *Store) scanOne(ctx context.Context, sql string, args ...any) (WarehouseStock, error) {
	stock, err := scanStock(s.q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseStock{}, err
		}
		return WarehouseStock{}, db.MapError(fmt.Errorf("ledger: %w", err))
	}
	return stock, nil
}

func reservedColumn(c WarehouseStock) (decimal.Decimal, string) {
	return c.ReservedStock, "reserved stock"
}

func scanStock(row pgx.Row) (WarehouseStock, error) {
	var stock WarehouseStock
	err := row.Scan(&stock.WarehouseID, &stock.ItemID, &stock.Quantity, &stock.ReservedStock, &stock.UpdatedAt)
	return stock, err
}
