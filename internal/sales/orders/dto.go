package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateSalesOrderRequest struct {
	OrganizationID int64                     `json:"organization_id" validate:"required,gt=0"`
	CustomerID     int64                     `json:"customer_id" validate:"required,gt=0"`
	WarehouseID    int64                     `json:"warehouse_id" validate:"required,gt=0"`
	OrderNumber    string                    `json:"order_number" validate:"omitempty,max=64"`
	OrderDate      time.Time                 `json:"order_date"`
	Discount       decimal.Decimal           `json:"discount"`
	Tax            decimal.Decimal           `json:"tax"`
	Notes          string                    `json:"notes" validate:"max=2000"`
	Items          []CreateSalesOrderItemReq `json:"items" validate:"required,min=1,dive"`
}

type CreateSalesOrderItemReq struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// UpdateSalesOrderRequest carries optional changes; nil fields are left untouched.
type UpdateSalesOrderRequest struct {
	Status        *string          `json:"status,omitempty"`
	PaymentStatus *string          `json:"payment_status,omitempty"`
	AmountPaid    *decimal.Decimal `json:"amount_paid,omitempty"`
	Discount      *decimal.Decimal `json:"discount,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ListSalesOrdersRequest struct {
	OrganizationID int64  `json:"organization_id"`
	CustomerID     int64  `json:"customer_id"`
	Status         string `json:"status"`
	Search         string `json:"search"`
	Limit          int    `json:"limit" validate:"gte=0,lte=1000"`
	Offset         int    `json:"offset" validate:"gte=0"`
}

func (r ListSalesOrdersRequest) normalize() ListSalesOrdersRequest {
	if r.Limit <= 0 || r.Limit > 200 {
		r.Limit = 50
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	return r
}
