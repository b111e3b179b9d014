package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes standalone ledger operations, each committed in its own transaction.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	recorder Recorder
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, recorder: recorder, logger: logger}
}

// MovementInput carries a pair and a quantity.
type MovementInput struct {
	Pair
	Quantity decimal.Decimal
}

// SetInput carries absolute values for a stock-count correction.
type SetInput struct {
	Pair
	Quantity      decimal.Decimal
	ReservedStock decimal.Decimal
}

// AddStock adds a signed delta to the pair, creating the row when needed.
func (s *Service) AddStock(ctx context.Context, input MovementInput) (WarehouseStock, error) {
	return s.run(ctx, OpUpsertAdd, input.Pair, input.Quantity, func(ctx context.Context, m Mutator) (WarehouseStock, error) {
		return m.UpsertAdd(ctx, input.Pair, input.Quantity)
	})
}

// UpdateStock overwrites quantity and reserved stock of an existing row.
func (s *Service) UpdateStock(ctx context.Context, input SetInput) (WarehouseStock, error) {
	return s.run(ctx, OpSet, input.Pair, input.Quantity, func(ctx context.Context, m Mutator) (WarehouseStock, error) {
		return m.Set(ctx, input.Pair, input.Quantity, input.ReservedStock)
	})
}

// ReserveStock holds quantity for a later shipment.
func (s *Service) ReserveStock(ctx context.Context, input MovementInput) (WarehouseStock, error) {
	return s.run(ctx, OpReserve, input.Pair, input.Quantity, func(ctx context.Context, m Mutator) (WarehouseStock, error) {
		return m.Reserve(ctx, input.Pair, input.Quantity)
	})
}

// ReleaseStock returns a held quantity to available stock.
func (s *Service) ReleaseStock(ctx context.Context, input MovementInput) (WarehouseStock, error) {
	return s.run(ctx, OpRelease, input.Pair, input.Quantity, func(ctx context.Context, m Mutator) (WarehouseStock, error) {
		return m.Release(ctx, input.Pair, input.Quantity)
	})
}

// GetStock returns one row.
func (s *Service) GetStock(ctx context.Context, pair Pair) (WarehouseStock, error) {
	if err := pair.Validate(); err != nil {
		return WarehouseStock{}, err
	}
	return s.repo.Get(ctx, pair)
}

// ListStock returns all rows of a warehouse.
func (s *Service) ListStock(ctx context.Context, warehouseID int64) ([]WarehouseStock, error) {
	if warehouseID <= 0 {
		return nil, fmt.Errorf("%w: warehouse_id required", shared.ErrValidation)
	}
	return s.repo.List(ctx, warehouseID)
}

func (s *Service) run(ctx context.Context, op string, pair Pair, qty decimal.Decimal, fn func(context.Context, Mutator) (WarehouseStock, error)) (WarehouseStock, error) {
	var stock WarehouseStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, m Mutator) error {
		var err error
		stock, err = fn(ctx, Guard(m, s.recorder))
		return err
	})
	if err != nil {
		return WarehouseStock{}, err
	}
	s.recordAudit(ctx, op, pair, map[string]any{
		"quantity":       qty.String(),
		"available":      stock.Quantity.String(),
		"reserved_stock": stock.ReservedStock.String(),
	})
	return stock, nil
}

func (s *Service) recordAudit(ctx context.Context, op string, pair Pair, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   "STOCK_" + strings.ToUpper(op),
		Entity:   "warehouse_stock",
		EntityID: fmt.Sprintf("%d:%d", pair.WarehouseID, pair.ItemID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("ledger audit", slog.String("op", op), slog.Any("error", err))
	}
}
