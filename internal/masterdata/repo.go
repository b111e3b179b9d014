package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// repo implements Directory against the shared reference tables.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data directory.
func NewRepository(db *pgxpool.Pool) Directory {
	return &repo{db: db}
}

func (r *repo) Organization(ctx context.Context, id int64) (Organization, error) {
	var o Organization
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM organizations WHERE id = $1`, id).Scan(&o.ID, &o.Code, &o.Name)
	return o, lookupErr("organization", id, err)
}

func (r *repo) Supplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, code, name, is_active FROM suppliers WHERE id = $1`, id).Scan(&s.ID, &s.Code, &s.Name, &s.IsActive)
	return s, lookupErr("supplier", id, err)
}

func (r *repo) Customer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, code, name, is_active FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Code, &c.Name, &c.IsActive)
	return c, lookupErr("customer", id, err)
}

func (r *repo) Item(ctx context.Context, id int64) (Item, error) {
	var i Item
	err := r.db.QueryRow(ctx, `SELECT id, sku, name, is_active FROM items WHERE id = $1`, id).Scan(&i.ID, &i.SKU, &i.Name, &i.IsActive)
	return i, lookupErr("item", id, err)
}

func (r *repo) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.Code, &w.Name)
	return w, lookupErr("warehouse", id, err)
}

func lookupErr(entity string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
	}
	return fmt.Errorf("masterdata: get %s %d: %w", entity, id, err)
}
