package procurement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/ledger/ledgertest"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryProcRepo struct {
	stock  *ledgertest.Store
	pos    map[int64]PurchaseOrder
	grns   map[uuid.UUID]GRN
	nextID int64

	failLineInsert error
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		stock: ledgertest.New(),
		pos:   make(map[int64]PurchaseOrder),
		grns:  make(map[uuid.UUID]GRN),
	}
}

type procSnapshot struct {
	pos    map[int64]PurchaseOrder
	grns   map[uuid.UUID]GRN
	nextID int64
}

func (r *memoryProcRepo) snapshot() procSnapshot {
	snap := procSnapshot{pos: make(map[int64]PurchaseOrder, len(r.pos)), grns: make(map[uuid.UUID]GRN, len(r.grns)), nextID: r.nextID}
	for id, po := range r.pos {
		snap.pos[id] = clonePO(po)
	}
	for id, grn := range r.grns {
		snap.grns[id] = cloneGRN(grn)
	}
	return snap
}

func (r *memoryProcRepo) restore(snap procSnapshot) {
	r.pos = snap.pos
	r.grns = snap.grns
	r.nextID = snap.nextID
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.stock.Atomically(func() error {
		snap := r.snapshot()
		if err := fn(ctx, &memoryProcTx{repo: r}); err != nil {
			r.restore(snap)
			return err
		}
		return nil
	})
}

func (r *memoryProcRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	return clonePO(po), nil
}

func (r *memoryProcRepo) ListPOs(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range r.pos {
		if filters.Status != "" && string(po.Status) != filters.Status {
			continue
		}
		if filters.SupplierID > 0 && po.SupplierID != filters.SupplierID {
			continue
		}
		if filters.Search != "" && !strings.Contains(po.OrderNumber, filters.Search) {
			continue
		}
		out = append(out, clonePO(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryProcRepo) GetGRN(ctx context.Context, id uuid.UUID) (GRN, error) {
	grn, ok := r.grns[id]
	if !ok {
		return GRN{}, fmt.Errorf("%w: grn %s", shared.ErrNotFound, id)
	}
	return cloneGRN(grn), nil
}

func (r *memoryProcRepo) ListGRNs(ctx context.Context, filters ListFilters) ([]GRN, int, error) {
	var out []GRN
	for _, grn := range r.grns {
		if filters.Status != "" && string(grn.Status) != filters.Status {
			continue
		}
		out = append(out, cloneGRN(grn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GRNNumber < out[j].GRNNumber })
	return out, len(out), nil
}

func (tx *memoryProcTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryProcTx) Ledger() ledger.Mutator {
	return tx.repo.stock
}

func (tx *memoryProcTx) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	for _, existing := range tx.repo.pos {
		if existing.OrderNumber == po.OrderNumber {
			return 0, fmt.Errorf("%w: purchase_orders_order_number_key", shared.ErrDuplicateKey)
		}
	}
	po.ID = tx.nextID()
	po.Items = nil
	tx.repo.pos[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcTx) InsertPOItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	po := tx.repo.pos[item.POID]
	item.ID = tx.nextID()
	po.Items = append(po.Items, item)
	tx.repo.pos[item.POID] = po
	return item.ID, nil
}

func (tx *memoryProcTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return tx.repo.GetPO(ctx, id)
}

func (tx *memoryProcTx) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	current := tx.repo.pos[po.ID]
	po.Items = current.Items
	tx.repo.pos[po.ID] = po
	return nil
}

func (tx *memoryProcTx) UpdatePOItem(ctx context.Context, item PurchaseOrderItem) error {
	po := tx.repo.pos[item.POID]
	for i := range po.Items {
		if po.Items[i].ID == item.ID {
			po.Items[i] = item
		}
	}
	tx.repo.pos[item.POID] = po
	return nil
}

func (tx *memoryProcTx) DeletePOItem(ctx context.Context, poID, itemID int64) error {
	po := tx.repo.pos[poID]
	kept := po.Items[:0]
	for _, item := range po.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	po.Items = kept
	tx.repo.pos[poID] = po
	return nil
}

func (tx *memoryProcTx) DeletePO(ctx context.Context, id int64) error {
	for _, grn := range tx.repo.grns {
		if grn.POID != nil && *grn.POID == id {
			return fmt.Errorf("%w: grns_po_id_fkey", shared.ErrConflict)
		}
	}
	delete(tx.repo.pos, id)
	return nil
}

func (tx *memoryProcTx) InsertGRN(ctx context.Context, grn GRN) error {
	for _, existing := range tx.repo.grns {
		if existing.GRNNumber == grn.GRNNumber {
			return fmt.Errorf("%w: grns_grn_number_key", shared.ErrDuplicateKey)
		}
	}
	grn.LineItems = nil
	tx.repo.grns[grn.ID] = grn
	return nil
}

func (tx *memoryProcTx) InsertGRNLine(ctx context.Context, line GRNLineItem) error {
	if tx.repo.failLineInsert != nil {
		return tx.repo.failLineInsert
	}
	grn := tx.repo.grns[line.GRNID]
	for _, existing := range grn.LineItems {
		if existing.ID == line.ID {
			return fmt.Errorf("%w: grn_line_items_pkey", shared.ErrDuplicateKey)
		}
	}
	grn.LineItems = append(grn.LineItems, line)
	tx.repo.grns[line.GRNID] = grn
	return nil
}

func (tx *memoryProcTx) GetGRNForUpdate(ctx context.Context, id uuid.UUID) (GRN, error) {
	return tx.repo.GetGRN(ctx, id)
}

func (tx *memoryProcTx) UpdateGRN(ctx context.Context, grn GRN) error {
	current := tx.repo.grns[grn.ID]
	grn.LineItems = current.LineItems
	tx.repo.grns[grn.ID] = grn
	return nil
}

func (tx *memoryProcTx) UpdateGRNLine(ctx context.Context, line GRNLineItem) error {
	grn := tx.repo.grns[line.GRNID]
	for i := range grn.LineItems {
		if grn.LineItems[i].ID == line.ID {
			grn.LineItems[i] = line
		}
	}
	tx.repo.grns[line.GRNID] = grn
	return nil
}

func (tx *memoryProcTx) DeleteGRNLine(ctx context.Context, grnID, lineID uuid.UUID) error {
	grn := tx.repo.grns[grnID]
	kept := grn.LineItems[:0]
	for _, line := range grn.LineItems {
		if line.ID != lineID {
			kept = append(kept, line)
		}
	}
	grn.LineItems = kept
	tx.repo.grns[grnID] = grn
	return nil
}

func (tx *memoryProcTx) DeleteGRN(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.grns, id)
	return nil
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Items = append([]PurchaseOrderItem(nil), po.Items...)
	return po
}

func cloneGRN(grn GRN) GRN {
	grn.LineItems = append([]GRNLineItem(nil), grn.LineItems...)
	return grn
}

type fakeDirectory struct {
	mu        sync.Mutex
	suppliers map[int64]masterdata.Supplier
	items     map[int64]masterdata.Item
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		suppliers: map[int64]masterdata.Supplier{
			1: {ID: 1, Code: "SUP-1", Name: "Acme Supplies", IsActive: true},
			2: {ID: 2, Code: "SUP-2", Name: "Dormant Ltd", IsActive: false},
		},
		items: map[int64]masterdata.Item{
			100: {ID: 100, SKU: "BOLT", Name: "Bolt", IsActive: true},
			101: {ID: 101, SKU: "NUT", Name: "Nut", IsActive: true},
			102: {ID: 102, SKU: "WASHER", Name: "Washer", IsActive: true},
			103: {ID: 103, SKU: "SCREW", Name: "Screw", IsActive: true},
			199: {ID: 199, SKU: "OLD", Name: "Retired", IsActive: false},
		},
	}
}

func (d *fakeDirectory) Organization(ctx context.Context, id int64) (masterdata.Organization, error) {
	if id != 1 {
		return masterdata.Organization{}, fmt.Errorf("%w: organization %d", masterdata.ErrNotFound, id)
	}
	return masterdata.Organization{ID: 1, Code: "ORG", Name: "Odyssey"}, nil
}

func (d *fakeDirectory) Supplier(ctx context.Context, id int64) (masterdata.Supplier, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.suppliers[id]
	if !ok {
		return masterdata.Supplier{}, fmt.Errorf("%w: supplier %d", masterdata.ErrNotFound, id)
	}
	return s, nil
}

func (d *fakeDirectory) Item(ctx context.Context, id int64) (masterdata.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[id]
	if !ok {
		return masterdata.Item{}, fmt.Errorf("%w: item %d", masterdata.ErrNotFound, id)
	}
	return item, nil
}

func (d *fakeDirectory) Warehouse(ctx context.Context, id int64) (masterdata.Warehouse, error) {
	if id != 1 && id != 2 {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d", masterdata.ErrNotFound, id)
	}
	return masterdata.Warehouse{ID: id, Code: fmt.Sprintf("WH-%d", id), Name: fmt.Sprintf("Warehouse %d", id)}, nil
}

type counterSequence struct {
	mu sync.Mutex
	n  map[string]int64
}

func (c *counterSequence) Next(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[string]int64)
	}
	c.n[key]++
	return c.n[key], nil
}

type recordingNotifier struct {
	events []shared.DocumentEvent
}

func (n *recordingNotifier) DocumentCreated(ctx context.Context, event shared.DocumentEvent) error {
	n.events = append(n.events, event)
	return nil
}

type testEnv struct {
	svc      *Service
	repo     *memoryProcRepo
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	repo := newMemoryProcRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, newFakeDirectory(), shared.NewNumberer(&counterSequence{}, 5), Options{Notifier: notifier})
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) }
	return testEnv{svc: svc, repo: repo, notifier: notifier}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// seedPO stores a purchase order directly in the given status.
func (e testEnv) seedPO(status POStatus, items ...PurchaseOrderItem) PurchaseOrder {
	e.repo.nextID++
	po := PurchaseOrder{
		ID:             e.repo.nextID,
		OrganizationID: 1,
		SupplierID:     1,
		SupplierName:   "Acme Supplies",
		OrderNumber:    fmt.Sprintf("PO-SEED-%d", e.repo.nextID),
		Status:         status,
	}
	for _, item := range items {
		e.repo.nextID++
		item.ID = e.repo.nextID
		item.POID = po.ID
		po.Items = append(po.Items, item)
	}
	e.repo.pos[po.ID] = po
	return clonePO(po)
}

// seedGRN stores a goods receipt directly in the given status with one line per item.
func (e testEnv) seedGRN(status GRNStatus, poID *int64, lines ...GRNLineInput) GRN {
	id := uuid.New()
	grn := GRN{
		ID:             id,
		OrganizationID: 1,
		GRNNumber:      "GRN-SEED-" + id.String()[:8],
		POID:           poID,
		SupplierID:     1,
		WarehouseID:    1,
		Status:         status,
	}
	normalized, err := normalizeLines(id, lines)
	if err != nil {
		panic(err)
	}
	for _, in := range normalized {
		grn.LineItems = append(grn.LineItems, newLine(id, in, 0, time.Time{}))
	}
	grn.TotalAmount = sumGRNLines(grn.LineItems)
	e.repo.grns[id] = grn
	return cloneGRN(grn)
}
