// Package ledgertest provides an in-memory ledger for tests of packages that mutate stock.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Store is a goroutine-safe in-memory ledger.Mutator with the same failure rules as the
// Postgres store. Atomically models a transaction by restoring a snapshot on error.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	rows  map[ledger.Pair]ledger.WarehouseStock
	fails map[ledger.Pair]error
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rows:  make(map[ledger.Pair]ledger.WarehouseStock),
		fails: make(map[ledger.Pair]error),
		now:   time.Now,
	}
}

var _ ledger.Mutator = (*Store)(nil)

// Seed sets a row directly.
func (s *Store) Seed(pair ledger.Pair, quantity, reserved int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[pair] = ledger.WarehouseStock{
		WarehouseID:   pair.WarehouseID,
		ItemID:        pair.ItemID,
		Quantity:      decimal.NewFromInt(quantity),
		ReservedStock: decimal.NewFromInt(reserved),
		UpdatedAt:     s.now(),
	}
}

// FailOn makes every later mutation of pair return err, modelling a store failure.
func (s *Store) FailOn(pair ledger.Pair, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[pair] = err
}

// Row returns the current row for pair.
func (s *Store) Row(pair ledger.Pair) (ledger.WarehouseStock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[pair]
	return row, ok
}

// Snapshot copies every row.
func (s *Store) Snapshot() map[ledger.Pair]ledger.WarehouseStock {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[ledger.Pair]ledger.WarehouseStock, len(s.rows))
	for k, v := range s.rows {
		snap[k] = v
	}
	return snap
}

// Restore replaces every row with snap.
func (s *Store) Restore(snap map[ledger.Pair]ledger.WarehouseStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[ledger.Pair]ledger.WarehouseStock, len(snap))
	for k, v := range snap {
		s.rows[k] = v
	}
}

// Atomically runs fn as one unit of work: concurrent units are serialised and a failing
// unit leaves the rows as they were before it started.
func (s *Store) Atomically(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.Snapshot()
	if err := fn(); err != nil {
		s.Restore(snap)
		return err
	}
	return nil
}

// WithTx satisfies ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Mutator) error) error {
	return s.Atomically(func() error { return fn(ctx, s) })
}

// List satisfies ledger.RepositoryPort.
func (s *Store) List(ctx context.Context, warehouseID int64) ([]ledger.WarehouseStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.WarehouseStock
	for pair, row := range s.rows {
		if pair.WarehouseID == warehouseID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) Get(ctx context.Context, pair ledger.Pair) (ledger.WarehouseStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[pair]
	if !ok {
		return ledger.WarehouseStock{}, shared.ErrNotFound
	}
	return row, nil
}

func (s *Store) UpsertAdd(ctx context.Context, pair ledger.Pair, delta decimal.Decimal) (ledger.WarehouseStock, error) {
	return s.mutate(pair, func(row ledger.WarehouseStock, exists bool) (ledger.WarehouseStock, error) {
		if !exists {
			if delta.IsNegative() {
				return row, shared.ErrInsufficientStock
			}
			row = ledger.WarehouseStock{WarehouseID: pair.WarehouseID, ItemID: pair.ItemID, Quantity: decimal.Zero, ReservedStock: decimal.Zero}
		}
		next := row.Quantity.Add(delta)
		if next.IsNegative() {
			return row, shared.ErrInsufficientStock
		}
		row.Quantity = next
		return row, nil
	})
}

func (s *Store) Reserve(ctx context.Context, pair ledger.Pair, qty decimal.Decimal) (ledger.WarehouseStock, error) {
	return s.mutate(pair, func(row ledger.WarehouseStock, exists bool) (ledger.WarehouseStock, error) {
		if !exists {
			return row, shared.ErrNotFound
		}
		if row.Quantity.LessThan(qty) {
			return row, shared.ErrInsufficientStock
		}
		row.Quantity = row.Quantity.Sub(qty)
		row.ReservedStock = row.ReservedStock.Add(qty)
		return row, nil
	})
}

func (s *Store) Release(ctx context.Context, pair ledger.Pair, qty decimal.Decimal) (ledger.WarehouseStock, error) {
	return s.mutate(pair, func(row ledger.WarehouseStock, exists bool) (ledger.WarehouseStock, error) {
		if !exists {
			return row, shared.ErrNotFound
		}
		if row.ReservedStock.LessThan(qty) {
			return row, shared.ErrInsufficientStock
		}
		row.Quantity = row.Quantity.Add(qty)
		row.ReservedStock = row.ReservedStock.Sub(qty)
		return row, nil
	})
}

func (s *Store) ConsumeReserved(ctx context.Context, pair ledger.Pair, qty decimal.Decimal) (ledger.WarehouseStock, error) {
	return s.mutate(pair, func(row ledger.WarehouseStock, exists bool) (ledger.WarehouseStock, error) {
		if !exists {
			return row, shared.ErrNotFound
		}
		if row.ReservedStock.LessThan(qty) {
			return row, shared.ErrInsufficientStock
		}
		row.ReservedStock = row.ReservedStock.Sub(qty)
		return row, nil
	})
}

func (s *Store) Set(ctx context.Context, pair ledger.Pair, quantity, reserved decimal.Decimal) (ledger.WarehouseStock, error) {
	return s.mutate(pair, func(row ledger.WarehouseStock, exists bool) (ledger.WarehouseStock, error) {
		if !exists {
			return row, shared.ErrNotFound
		}
		row.Quantity = quantity
		row.ReservedStock = reserved
		return row, nil
	})
}

func (s *Store) mutate(pair ledger.Pair, fn func(ledger.WarehouseStock, bool) (ledger.WarehouseStock, error)) (ledger.WarehouseStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[pair]; err != nil {
		return ledger.WarehouseStock{}, err
	}
	row, exists := s.rows[pair]
	next, err := fn(row, exists)
	if err != nil {
		return ledger.WarehouseStock{}, err
	}
	next.UpdatedAt = s.now()
	s.rows[pair] = next
	return next, nil
}
