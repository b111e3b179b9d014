package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func createRequest(items ...CreateSalesOrderItemReq) CreateSalesOrderRequest {
	return CreateSalesOrderRequest{
		OrganizationID: 1,
		CustomerID:     1,
		WarehouseID:    1,
		Discount:       dec("1"),
		Tax:            dec("0.5"),
		Items:          items,
	}
}

func TestCreateSalesOrderReservesStock(t *testing.T) {
	svc, repo, recorder := newTestService(t)
	repo.stock.Seed(pair(100), 10, 0)
	repo.stock.Seed(pair(101), 5, 0)

	order, err := svc.CreateSalesOrder(context.Background(), createRequest(
		CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("4"), UnitPrice: dec("2.5")},
		CreateSalesOrderItemReq{ItemID: 101, Quantity: dec("5"), UnitPrice: dec("1")},
	), 7)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusPending, order.Status)
	require.Equal(t, PaymentStatusUnpaid, order.PaymentStatus)
	require.Equal(t, fmt.Sprintf("SO-%d-000001", time.Now().UTC().Year()), order.OrderNumber)
	require.Equal(t, "Bluebird Retail", order.CustomerName)
	require.Equal(t, "15", order.Subtotal.String())
	require.Equal(t, "14.5", order.TotalAmount.String())
	require.Equal(t, "14.5", order.OutstandingAmount.String())
	require.Equal(t, int64(7), order.CreatedBy)

	qty, reserved := stockOf(t, repo, 100)
	require.Equal(t, "6", qty)
	require.Equal(t, "4", reserved)
	qty, reserved = stockOf(t, repo, 101)
	require.Equal(t, "0", qty)
	require.Equal(t, "5", reserved)
	require.Equal(t, 2, recorder.counts["reserve/ok"])

	stored, err := svc.GetSalesOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
}

func TestCreateSalesOrderShortageLeavesNoOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock.Seed(pair(100), 5, 0)
	repo.stock.Seed(pair(101), 5, 0)

	_, err := svc.CreateSalesOrder(context.Background(), createRequest(
		CreateSalesOrderItemReq{ItemID: 101, Quantity: dec("2"), UnitPrice: dec("1")},
		CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("10"), UnitPrice: dec("1")},
	), 7)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.orders)

	qty, reserved := stockOf(t, repo, 101)
	require.Equal(t, "5", qty)
	require.Equal(t, "0", reserved)
}

func TestCreateSalesOrderWithoutStockRow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.CreateSalesOrder(context.Background(), createRequest(
		CreateSalesOrderItemReq{ItemID: 102, Quantity: dec("1"), UnitPrice: dec("1")},
	), 7)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.orders)
}

func TestCreateSalesOrderDuplicateNumberSkipsLedger(t *testing.T) {
	svc, repo, recorder := newTestService(t)
	repo.stock.Seed(pair(100), 10, 0)
	req := createRequest(CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("3"), UnitPrice: dec("1")})
	req.OrderNumber = "SO-WEB-1001"

	_, err := svc.CreateSalesOrder(context.Background(), req, 7)
	require.NoError(t, err)
	_, err = svc.CreateSalesOrder(context.Background(), req, 7)
	require.ErrorIs(t, err, shared.ErrDuplicateKey)

	require.Len(t, repo.orders, 1)
	qty, reserved := stockOf(t, repo, 100)
	require.Equal(t, "7", qty)
	require.Equal(t, "3", reserved)
	require.Equal(t, 1, recorder.counts["reserve/ok"])
}

func TestCreateSalesOrderValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock.Seed(pair(100), 10, 0)
	ctx := context.Background()
	line := CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("1"), UnitPrice: dec("1")}

	_, err := svc.CreateSalesOrder(ctx, createRequest(), 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateSalesOrder(ctx, createRequest(CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("0"), UnitPrice: dec("1")}), 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	req := createRequest(line)
	req.Discount = dec("50")
	_, err = svc.CreateSalesOrder(ctx, req, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = createRequest(line)
	req.CustomerID = 2
	_, err = svc.CreateSalesOrder(ctx, req, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = createRequest(line)
	req.CustomerID = 99
	_, err = svc.CreateSalesOrder(ctx, req, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.orders)
}

func TestSalesOrderTransitionTable(t *testing.T) {
	allowed := map[SalesOrderStatus][]SalesOrderStatus{
		SalesOrderStatusPending:   {SalesOrderStatusPending, SalesOrderStatusConfirmed, SalesOrderStatusCancelled, SalesOrderStatusShipped, SalesOrderStatusDelivered},
		SalesOrderStatusConfirmed: {SalesOrderStatusConfirmed, SalesOrderStatusDelivered, SalesOrderStatusCancelled, SalesOrderStatusShipped},
		SalesOrderStatusShipped:   {SalesOrderStatusShipped, SalesOrderStatusDelivered, SalesOrderStatusCancelled},
		SalesOrderStatusDelivered: {SalesOrderStatusDelivered, SalesOrderStatusCancelled},
		SalesOrderStatusCancelled: {SalesOrderStatusCancelled},
	}
	all := []SalesOrderStatus{SalesOrderStatusPending, SalesOrderStatusConfirmed, SalesOrderStatusShipped, SalesOrderStatusDelivered, SalesOrderStatusCancelled}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				svc, repo, _ := newTestService(t)
				reserved := int64(0)
				if from.HoldsReservation() {
					reserved = 2
				}
				repo.stock.Seed(pair(100), 8, reserved)
				order := seedOrder(repo, from, SalesOrderItem{ItemID: 100, Quantity: dec("2"), UnitPrice: dec("50"), TotalPrice: dec("100")})
				status := string(to)

				_, err := svc.UpdateSalesOrder(context.Background(), order.ID, UpdateSalesOrderRequest{Status: &status}, 3)
				stored, _ := svc.GetSalesOrder(context.Background(), order.ID)
				qty, res := stockOf(t, repo, 100)

				if !contains(allowed[from], to) {
					require.ErrorIs(t, err, shared.ErrInvalidTransition)
					require.Equal(t, from, stored.Status)
					require.Equal(t, "8", qty)
					require.Equal(t, fmt.Sprint(reserved), res)
					return
				}
				require.NoError(t, err)
				require.Equal(t, to, stored.Status)

				wantQty, wantRes := "8", fmt.Sprint(reserved)
				if from.HoldsReservation() && !to.HoldsReservation() {
					wantRes = "0"
					if to == SalesOrderStatusCancelled {
						wantQty = "10"
					}
				}
				require.Equal(t, wantQty, qty)
				require.Equal(t, wantRes, res)
			})
		}
	}
}

func TestUpdateSalesOrderAmounts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	order := seedOrder(repo, SalesOrderStatusConfirmed)

	paid, payment := dec("40"), "partial"
	updated, err := svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{AmountPaid: &paid, PaymentStatus: &payment}, 3)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPartial, updated.PaymentStatus)
	require.Equal(t, "60", updated.OutstandingAmount.String())

	discount, tax := dec("10"), dec("5")
	updated, err = svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{Discount: &discount, Tax: &tax}, 3)
	require.NoError(t, err)
	require.Equal(t, "95", updated.TotalAmount.String())
	require.Equal(t, "55", updated.OutstandingAmount.String())

	tooMuch := dec("95.01")
	_, err = svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{AmountPaid: &tooMuch}, 3)
	require.ErrorIs(t, err, shared.ErrValidation)

	negative := dec("-1")
	_, err = svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{AmountPaid: &negative}, 3)
	require.ErrorIs(t, err, shared.ErrValidation)

	bogus := "OWED"
	_, err = svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{PaymentStatus: &bogus}, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)

	unknown := "RETURNED"
	_, err = svc.UpdateSalesOrder(ctx, order.ID, UpdateSalesOrderRequest{Status: &unknown}, 3)
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, _ := svc.GetSalesOrder(ctx, order.ID)
	require.Equal(t, "40", stored.AmountPaid.String())
	require.Equal(t, int64(3), stored.UpdatedBy)
}

func TestUpdateSalesOrderConsumeFailureRollsBack(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock.Seed(pair(100), 0, 1)
	order := seedOrder(repo, SalesOrderStatusPending, SalesOrderItem{ItemID: 100, Quantity: dec("2")})

	shipped := "SHIPPED"
	_, err := svc.UpdateSalesOrder(context.Background(), order.ID, UpdateSalesOrderRequest{Status: &shipped}, 3)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stored, _ := svc.GetSalesOrder(context.Background(), order.ID)
	require.Equal(t, SalesOrderStatusPending, stored.Status)
	_, reserved := stockOf(t, repo, 100)
	require.Equal(t, "1", reserved)
}

func TestDeleteSalesOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	repo.stock.Seed(pair(100), 10, 0)
	order, err := svc.CreateSalesOrder(ctx, createRequest(CreateSalesOrderItemReq{ItemID: 100, Quantity: dec("4"), UnitPrice: dec("1")}), 7)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSalesOrder(ctx, order.ID, 7))
	qty, reserved := stockOf(t, repo, 100)
	require.Equal(t, "10", qty)
	require.Equal(t, "0", reserved)
	_, err = svc.GetSalesOrder(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	shipped := seedOrder(repo, SalesOrderStatusShipped, SalesOrderItem{ItemID: 100, Quantity: dec("4")})
	require.NoError(t, svc.DeleteSalesOrder(ctx, shipped.ID, 7))
	qty, _ = stockOf(t, repo, 100)
	require.Equal(t, "10", qty)

	require.ErrorIs(t, svc.DeleteSalesOrder(ctx, 999, 7), shared.ErrNotFound)
}

func TestListSalesOrders(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedOrder(repo, SalesOrderStatusPending)
	seedOrder(repo, SalesOrderStatusShipped)

	orders, total, err := svc.ListSalesOrders(context.Background(), ListSalesOrdersRequest{Status: "shipped"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, SalesOrderStatusShipped, orders[0].Status)

	_, _, err = svc.ListSalesOrders(context.Background(), ListSalesOrdersRequest{Status: "lost"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func contains(list []SalesOrderStatus, v SalesOrderStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
