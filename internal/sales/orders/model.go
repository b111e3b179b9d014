package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type SalesOrderStatus string

const (
	SalesOrderStatusPending   SalesOrderStatus = "PENDING"
	SalesOrderStatusConfirmed SalesOrderStatus = "CONFIRMED"
	SalesOrderStatusShipped   SalesOrderStatus = "SHIPPED"
	SalesOrderStatusDelivered SalesOrderStatus = "DELIVERED"
	SalesOrderStatusCancelled SalesOrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var ErrInvalidStatus = fmt.Errorf("%w: invalid status", shared.ErrValidation)

func ParseStatus(raw string) (SalesOrderStatus, error) {
	status := SalesOrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := transitions[status]; !ok {
		return "", fmt.Errorf("%w %q for sales order", ErrInvalidStatus, raw)
	}
	return status, nil
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusRefunded:
		return status, nil
	}
	return "", fmt.Errorf("%w %q for payment", ErrInvalidStatus, raw)
}

type SalesOrder struct {
	ID                int64            `json:"id" db:"id"`
	OrganizationID    int64            `json:"organization_id" db:"organization_id"`
	CustomerID        int64            `json:"customer_id" db:"customer_id"`
	CustomerName      string           `json:"customer_name" db:"customer_name"`
	WarehouseID       int64            `json:"warehouse_id" db:"warehouse_id"`
	WarehouseName     string           `json:"warehouse_name" db:"warehouse_name"`
	OrderNumber       string           `json:"order_number" db:"order_number"`
	Status            SalesOrderStatus `json:"status" db:"status"`
	PaymentStatus     PaymentStatus    `json:"payment_status" db:"payment_status"`
	OrderDate         time.Time        `json:"order_date" db:"order_date"`
	Subtotal          decimal.Decimal  `json:"subtotal" db:"subtotal"`
	Discount          decimal.Decimal  `json:"discount" db:"discount"`
	Tax               decimal.Decimal  `json:"tax" db:"tax"`
	TotalAmount       decimal.Decimal  `json:"total_amount" db:"total_amount"`
	AmountPaid        decimal.Decimal  `json:"amount_paid" db:"amount_paid"`
	OutstandingAmount decimal.Decimal  `json:"outstanding_amount" db:"outstanding_amount"`
	Notes             string           `json:"notes" db:"notes"`
	CreatedBy         int64            `json:"created_by" db:"created_by"`
	UpdatedBy         int64            `json:"updated_by" db:"updated_by"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
	Items             []SalesOrderItem `json:"items" db:"-"`
}

type SalesOrderItem struct {
	ID         int64           `json:"id" db:"id"`
	SOID       int64           `json:"so_id" db:"so_id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
}
