package procurement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusPending   POStatus = "PENDING"
	POStatusApproved  POStatus = "APPROVED"
	POStatusRejected  POStatus = "REJECTED"
	POStatusCompleted POStatus = "COMPLETED"
	POStatusCancelled POStatus = "CANCELLED"
	POStatusOpen      POStatus = "OPEN"
	POStatusClosed    POStatus = "CLOSED"
)

// GRNStatus is the goods receipt lifecycle status.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "Draft"
	GRNStatusApproved  GRNStatus = "Approved"
	GRNStatusCancelled GRNStatus = "Cancelled"
	GRNStatusClosed    GRNStatus = "Closed"
)

// ErrInvalidStatus reports a status string outside the enumeration.
var ErrInvalidStatus = fmt.Errorf("%w: invalid status", shared.ErrValidation)

// ParsePOStatus maps a client supplied string onto POStatus.
func ParsePOStatus(raw string) (POStatus, error) {
	status := POStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := poTransitions[status]; !ok {
		return "", fmt.Errorf("%w %q for purchase order", ErrInvalidStatus, raw)
	}
	return status, nil
}

// ParseGRNStatus maps a client supplied string onto GRNStatus, ignoring case.
func ParseGRNStatus(raw string) (GRNStatus, error) {
	trimmed := strings.TrimSpace(raw)
	for status := range grnTransitions {
		if strings.EqualFold(string(status), trimmed) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w %q for goods receipt", ErrInvalidStatus, raw)
}

// PurchaseOrder is the PO header with its items.
type PurchaseOrder struct {
	ID             int64               `json:"id"`
	OrganizationID int64               `json:"organization_id"`
	SupplierID     int64               `json:"supplier_id"`
	SupplierName   string              `json:"supplier_name"`
	OrderNumber    string              `json:"order_number"`
	Status         POStatus            `json:"status"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	OrderDate      time.Time           `json:"order_date"`
	ExpectedDate   *time.Time          `json:"expected_date,omitempty"`
	ReceivedDate   *time.Time          `json:"received_date,omitempty"`
	Notes          string              `json:"notes"`
	CreatedBy      int64               `json:"created_by"`
	UpdatedBy      int64               `json:"updated_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Items          []PurchaseOrderItem `json:"items"`
}

// PurchaseOrderItem is one ordered item.
type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	POID             int64           `json:"po_id"`
	ItemID           int64           `json:"item_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
}

// GRN is a goods receipt note.
type GRN struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	GRNNumber      string          `json:"grn_number"`
	POID           *int64          `json:"po_id,omitempty"`
	SupplierID     int64           `json:"supplier_id"`
	SupplierName   string          `json:"supplier_name"`
	WarehouseID    int64           `json:"warehouse_id"`
	WarehouseName  string          `json:"warehouse_name"`
	Status         GRNStatus       `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Remarks        string          `json:"remarks"`
	ReceivedDate   time.Time       `json:"received_date"`
	CreatedBy      int64           `json:"created_by"`
	UpdatedBy      int64           `json:"updated_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LineItems      []GRNLineItem   `json:"line_items"`
}

// GRNLineItem is one received item.
type GRNLineItem struct {
	ID                uuid.UUID       `json:"id"`
	GRNID             uuid.UUID       `json:"grn_id"`
	ItemID            int64           `json:"item_id"`
	OrderedQty        decimal.Decimal `json:"ordered_qty"`
	ReceivedQty       decimal.Decimal `json:"received_qty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	LineTotal         decimal.Decimal `json:"line_total"`
	BatchNumber       string          `json:"batch_number"`
	ManufacturingDate *time.Time      `json:"manufacturing_date,omitempty"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	StorageLocation   string          `json:"storage_location"`
	Remarks           string          `json:"remarks"`
	CreatedBy         int64           `json:"created_by"`
	UpdatedBy         int64           `json:"updated_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ListFilters narrows list queries.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
	Limit      int
	Offset     int
}

func (f ListFilters) normalize() ListFilters {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// lineTotal is quantity * unit price rounded to cents.
func lineTotal(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Round(2)
}

func sortPOItems(items []PurchaseOrderItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
