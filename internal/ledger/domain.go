// Package ledger owns warehouse stock quantities. Every mutation is a single conditional
// statement so concurrent writers on one (warehouse, item) pair are serialised by the row lock.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Pair identifies one ledger row.
type Pair struct {
	WarehouseID int64 `json:"warehouse_id"`
	ItemID      int64 `json:"item_id"`
}

func (p Pair) String() string {
	return fmt.Sprintf("warehouse %d item %d", p.WarehouseID, p.ItemID)
}

// Validate rejects pairs with missing identifiers.
func (p Pair) Validate() error {
	if p.WarehouseID <= 0 || p.ItemID <= 0 {
		return fmt.Errorf("%w: warehouse and item required", shared.ErrValidation)
	}
	return nil
}

// WarehouseStock is the ledger row. Quantity is the unreserved, available stock.
type WarehouseStock struct {
	WarehouseID   int64           `json:"warehouse_id"`
	ItemID        int64           `json:"item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservedStock decimal.Decimal `json:"reserved_stock"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Pair returns the row key.
func (s WarehouseStock) Pair() Pair {
	return Pair{WarehouseID: s.WarehouseID, ItemID: s.ItemID}
}

// Mutator performs atomic ledger operations. Implementations bound to a transaction make the
// mutations part of the caller's unit of work.
type Mutator interface {
	// UpsertAdd creates the row with quantity=delta or adds delta to it.
	UpsertAdd(ctx context.Context, pair Pair, delta decimal.Decimal) (WarehouseStock, error)
	// Reserve moves qty from quantity into reserved_stock.
	Reserve(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error)
	// Release moves qty from reserved_stock back into quantity.
	Release(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error)
	// ConsumeReserved removes qty from reserved_stock when goods leave the warehouse.
	ConsumeReserved(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error)
	// Set overwrites both columns of an existing row.
	Set(ctx context.Context, pair Pair, quantity, reserved decimal.Decimal) (WarehouseStock, error)
	Get(ctx context.Context, pair Pair) (WarehouseStock, error)
}

// Operation names used for metrics and audit.
const (
	OpUpsertAdd = "upsert_add"
	OpReserve   = "reserve"
	OpRelease   = "release"
	OpConsume   = "consume_reserved"
	OpSet       = "set"
)

// Recorder observes ledger mutation outcomes.
type Recorder interface {
	ObserveLedgerMutation(op, outcome string)
}

// OutcomeOK labels successful mutations; failures are labelled with their error kind.
const OutcomeOK = "ok"

func notFound(pair Pair) error {
	return fmt.Errorf("%w: no stock row for %s", shared.ErrNotFound, pair)
}

func insufficient(pair Pair, want, have decimal.Decimal, column string) error {
	return fmt.Errorf("%w: %s needs %s, %s is %s", shared.ErrInsufficientStock, pair, want, column, have)
}
