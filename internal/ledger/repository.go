package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// RepositoryPort abstracts ledger persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Mutator) error) error
	Get(ctx context.Context, pair Pair) (WarehouseStock, error)
	List(ctx context.Context, warehouseID int64) ([]WarehouseStock, error)
}

// Repository persists ledger rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback with a Mutator bound to a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Mutator) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

func (r *Repository) Get(ctx context.Context, pair Pair) (WarehouseStock, error) {
	return NewStore(r.pool).Get(ctx, pair)
}

func (r *Repository) List(ctx context.Context, warehouseID int64) ([]WarehouseStock, error) {
	return NewStore(r.pool).List(ctx, warehouseID)
}
