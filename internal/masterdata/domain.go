// Package masterdata reads the reference entities that fulfillment documents point at.
// The records are maintained by the master-data service; this package never writes them.
package masterdata

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ErrNotFound indicates an unknown reference id.
var ErrNotFound = fmt.Errorf("%w: masterdata", shared.ErrNotFound)

// Organization owns documents.
type Organization struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Supplier is the counterparty of purchase orders and goods receipts.
type Supplier struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Customer is the counterparty of sales orders.
type Customer struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Item is a stock-keeping unit.
type Item struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Warehouse holds stock.
type Warehouse struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Directory looks reference entities up by id.
type Directory interface {
	Organization(ctx context.Context, id int64) (Organization, error)
	Supplier(ctx context.Context, id int64) (Supplier, error)
	Customer(ctx context.Context, id int64) (Customer, error)
	Item(ctx context.Context, id int64) (Item, error)
	Warehouse(ctx context.Context, id int64) (Warehouse, error)
}
