package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/ledger/ledgertest"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryRepo struct {
	stock  *ledgertest.Store
	orders map[int64]SalesOrder
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stock: ledgertest.New(), orders: make(map[int64]SalesOrder)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return r.stock.Atomically(func() error {
		orders := make(map[int64]SalesOrder, len(r.orders))
		for id, o := range r.orders {
			orders[id] = cloneOrder(o)
		}
		nextID := r.nextID
		if err := fn(ctx, r); err != nil {
			r.orders = orders
			r.nextID = nextID
			return err
		}
		return nil
	})
}

func (r *memoryRepo) Ledger() ledger.Mutator { return r.stock }

func (r *memoryRepo) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrNotFound, id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *memoryRepo) GetForUpdate(ctx context.Context, id int64) (*SalesOrder, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepo) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	var out []SalesOrder
	for _, o := range r.orders {
		if req.Status != "" && string(o.Status) != req.Status {
			continue
		}
		if req.CustomerID > 0 && o.CustomerID != req.CustomerID {
			continue
		}
		if req.Search != "" && !strings.Contains(o.OrderNumber, req.Search) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) Create(ctx context.Context, order SalesOrder) (int64, error) {
	for _, existing := range r.orders {
		if existing.OrderNumber == order.OrderNumber {
			return 0, fmt.Errorf("%w: sales_orders_order_number_key", shared.ErrDuplicateKey)
		}
	}
	r.nextID++
	order.ID = r.nextID
	order.Items = nil
	r.orders[order.ID] = order
	return order.ID, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item SalesOrderItem) (int64, error) {
	o := r.orders[item.SOID]
	r.nextID++
	item.ID = r.nextID
	o.Items = append(o.Items, item)
	r.orders[item.SOID] = o
	return item.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, order SalesOrder) error {
	order.Items = r.orders[order.ID].Items
	r.orders[order.ID] = order
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.orders[id]; !ok {
		return fmt.Errorf("%w %d", ErrNotFound, id)
	}
	delete(r.orders, id)
	return nil
}

func cloneOrder(o SalesOrder) SalesOrder {
	o.Items = append([]SalesOrderItem(nil), o.Items...)
	return o
}

type fakeDirectory struct{}

func (fakeDirectory) Organization(ctx context.Context, id int64) (masterdata.Organization, error) {
	if id != 1 {
		return masterdata.Organization{}, fmt.Errorf("%w: organization %d", masterdata.ErrNotFound, id)
	}
	return masterdata.Organization{ID: 1, Name: "Odyssey"}, nil
}

func (fakeDirectory) Customer(ctx context.Context, id int64) (masterdata.Customer, error) {
	switch id {
	case 1:
		return masterdata.Customer{ID: 1, Code: "C-1", Name: "Bluebird Retail", IsActive: true}, nil
	case 2:
		return masterdata.Customer{ID: 2, Code: "C-2", Name: "Closed Account", IsActive: false}, nil
	}
	return masterdata.Customer{}, fmt.Errorf("%w: customer %d", masterdata.ErrNotFound, id)
}

func (fakeDirectory) Item(ctx context.Context, id int64) (masterdata.Item, error) {
	if id < 100 || id > 110 {
		return masterdata.Item{}, fmt.Errorf("%w: item %d", masterdata.ErrNotFound, id)
	}
	return masterdata.Item{ID: id, SKU: fmt.Sprintf("SKU-%d", id), IsActive: true}, nil
}

func (fakeDirectory) Warehouse(ctx context.Context, id int64) (masterdata.Warehouse, error) {
	if id != 1 {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d", masterdata.ErrNotFound, id)
	}
	return masterdata.Warehouse{ID: 1, Code: "MAIN", Name: "Main Warehouse"}, nil
}

type sequence struct {
	n int64
}

func (s *sequence) Next(ctx context.Context, key string) (int64, error) {
	s.n++
	return s.n, nil
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) ObserveLedgerMutation(op, outcome string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[op+"/"+outcome]++
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *countingRecorder) {
	t.Helper()
	repo := newMemoryRepo()
	recorder := &countingRecorder{}
	svc := NewService(repo, fakeDirectory{}, shared.NewNumberer(&sequence{}, 3), Options{Recorder: recorder})
	svc.now = func() time.Time { return time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC) }
	return svc, repo, recorder
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func pair(itemID int64) ledger.Pair {
	return ledger.Pair{WarehouseID: 1, ItemID: itemID}
}

func stockOf(t *testing.T, repo *memoryRepo, itemID int64) (string, string) {
	t.Helper()
	row, ok := repo.stock.Row(pair(itemID))
	if !ok {
		return "missing", "missing"
	}
	return row.Quantity.String(), row.ReservedStock.String()
}

// seedOrder stores an order directly, bypassing reservation.
func seedOrder(repo *memoryRepo, status SalesOrderStatus, items ...SalesOrderItem) SalesOrder {
	repo.nextID++
	o := SalesOrder{
		ID:                repo.nextID,
		OrganizationID:    1,
		CustomerID:        1,
		WarehouseID:       1,
		OrderNumber:       fmt.Sprintf("SO-SEED-%d", repo.nextID),
		Status:            status,
		PaymentStatus:     PaymentStatusUnpaid,
		Subtotal:          dec("100"),
		TotalAmount:       dec("100"),
		AmountPaid:        decimal.Zero,
		OutstandingAmount: dec("100"),
	}
	for _, item := range items {
		repo.nextID++
		item.ID = repo.nextID
		item.SOID = o.ID
		o.Items = append(o.Items, item)
	}
	repo.orders[o.ID] = o
	return cloneOrder(o)
}
