package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type guarded struct {
	next     Mutator
	recorder Recorder
}

// Guard wraps a Mutator with input validation and outcome recording. Domain services always
// mutate the ledger through a guarded Mutator.
func Guard(next Mutator, recorder Recorder) Mutator {
	return &guarded{next: next, recorder: recorder}
}

func (g *guarded) UpsertAdd(ctx context.Context, pair Pair, delta decimal.Decimal) (WarehouseStock, error) {
	if err := pair.Validate(); err != nil {
		return WarehouseStock{}, g.observe(OpUpsertAdd, err)
	}
	if delta.IsZero() {
		return WarehouseStock{}, g.observe(OpUpsertAdd, fmt.Errorf("%w: delta must be non-zero", shared.ErrValidation))
	}
	stock, err := g.next.UpsertAdd(ctx, pair, delta)
	return stock, g.observe(OpUpsertAdd, err)
}

func (g *guarded) Reserve(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	if err := checkMovement(pair, qty); err != nil {
		return WarehouseStock{}, g.observe(OpReserve, err)
	}
	stock, err := g.next.Reserve(ctx, pair, qty)
	return stock, g.observe(OpReserve, err)
}

func (g *guarded) Release(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	if err := checkMovement(pair, qty); err != nil {
		return WarehouseStock{}, g.observe(OpRelease, err)
	}
	stock, err := g.next.Release(ctx, pair, qty)
	return stock, g.observe(OpRelease, err)
}

func (g *guarded) ConsumeReserved(ctx context.Context, pair Pair, qty decimal.Decimal) (WarehouseStock, error) {
	if err := checkMovement(pair, qty); err != nil {
		return WarehouseStock{}, g.observe(OpConsume, err)
	}
	stock, err := g.next.ConsumeReserved(ctx, pair, qty)
	return stock, g.observe(OpConsume, err)
}

func (g *guarded) Set(ctx context.Context, pair Pair, quantity, reserved decimal.Decimal) (WarehouseStock, error) {
	if err := pair.Validate(); err != nil {
		return WarehouseStock{}, g.observe(OpSet, err)
	}
	if quantity.IsNegative() || reserved.IsNegative() {
		return WarehouseStock{}, g.observe(OpSet, fmt.Errorf("%w: quantity and reserved stock must be >= 0", shared.ErrValidation))
	}
	stock, err := g.next.Set(ctx, pair, quantity, reserved)
	return stock, g.observe(OpSet, err)
}

func (g *guarded) Get(ctx context.Context, pair Pair) (WarehouseStock, error) {
	if err := pair.Validate(); err != nil {
		return WarehouseStock{}, err
	}
	return g.next.Get(ctx, pair)
}

func (g *guarded) observe(op string, err error) error {
	if g.recorder == nil {
		return err
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = shared.KindOf(err)
	}
	g.recorder.ObserveLedgerMutation(op, outcome)
	return err
}

func checkMovement(pair Pair, qty decimal.Decimal) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	return nil
}
