package procurement

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func createPOInput() CreatePOInput {
	return CreatePOInput{
		OrganizationID: 1,
		SupplierID:     1,
		Items: []POItemInput{
			{ItemID: 100, Quantity: dec("10"), UnitPrice: dec("1.255")},
			{ItemID: 101, Quantity: dec("3"), UnitPrice: dec("4")},
		},
	}
}

func TestCreatePurchaseOrderComputesTotals(t *testing.T) {
	env := newTestEnv(t)

	po, err := env.svc.CreatePurchaseOrder(context.Background(), createPOInput())
	require.NoError(t, err)
	require.Equal(t, POStatusPending, po.Status)
	require.Equal(t, "Acme Supplies", po.SupplierName)
	require.Equal(t, fmt.Sprintf("PO-%d-000001", time.Now().UTC().Year()), po.OrderNumber)
	require.Len(t, po.Items, 2)
	require.Equal(t, "12.55", po.Items[0].TotalPrice.String())
	require.Equal(t, "12", po.Items[1].TotalPrice.String())
	require.Equal(t, "24.55", po.TotalAmount.String())

	stored, err := env.repo.GetPO(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, po.OrderNumber, stored.OrderNumber)
	require.Len(t, stored.Items, 2)
	require.Len(t, env.notifier.events, 1)
	require.Equal(t, shared.DocumentPurchaseOrder, env.notifier.events[0].Type)
}

func TestCreatePurchaseOrderRejectsDuplicateNumber(t *testing.T) {
	env := newTestEnv(t)
	input := createPOInput()
	input.OrderNumber = "PO-MANUAL-7"

	_, err := env.svc.CreatePurchaseOrder(context.Background(), input)
	require.NoError(t, err)

	_, err = env.svc.CreatePurchaseOrder(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrDuplicateKey)
	require.Len(t, env.repo.pos, 1)
}

func TestCreatePurchaseOrderSkipsTakenGeneratedNumber(t *testing.T) {
	env := newTestEnv(t)
	taken := createPOInput()
	taken.OrderNumber = fmt.Sprintf("PO-%d-000001", time.Now().UTC().Year())
	_, err := env.svc.CreatePurchaseOrder(context.Background(), taken)
	require.NoError(t, err)

	po, err := env.svc.CreatePurchaseOrder(context.Background(), createPOInput())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("PO-%d-000002", time.Now().UTC().Year()), po.OrderNumber)
}

func TestCreatePurchaseOrderValidatesReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := createPOInput()
	input.SupplierID = 99
	_, err := env.svc.CreatePurchaseOrder(ctx, input)
	require.ErrorIs(t, err, shared.ErrNotFound)

	input = createPOInput()
	input.SupplierID = 2
	_, err = env.svc.CreatePurchaseOrder(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = createPOInput()
	input.Items[1].ItemID = 199
	_, err = env.svc.CreatePurchaseOrder(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = createPOInput()
	input.Items[0].Quantity = dec("0")
	_, err = env.svc.CreatePurchaseOrder(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = createPOInput()
	input.Items = nil
	_, err = env.svc.CreatePurchaseOrder(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, env.repo.pos)
}

func TestPurchaseOrderTransitionTable(t *testing.T) {
	allowed := map[POStatus][]POStatus{
		POStatusPending:   {POStatusPending, POStatusApproved, POStatusRejected, POStatusCancelled},
		POStatusApproved:  {POStatusApproved, POStatusCompleted, POStatusCancelled},
		POStatusRejected:  {POStatusRejected},
		POStatusCompleted: {POStatusCompleted, POStatusClosed},
		POStatusCancelled: {POStatusCancelled},
		POStatusOpen:      {POStatusOpen, POStatusApproved, POStatusRejected, POStatusCancelled},
		POStatusClosed:    {POStatusClosed},
	}
	all := []POStatus{POStatusPending, POStatusApproved, POStatusRejected, POStatusCompleted, POStatusCancelled, POStatusOpen, POStatusClosed}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				env := newTestEnv(t)
				po := env.seedPO(from, PurchaseOrderItem{ItemID: 100, Quantity: dec("1"), UnitPrice: dec("1"), TotalPrice: dec("1")})
				status := string(to)

				updated, err := env.svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdatePOInput{Status: &status})
				stored, _ := env.repo.GetPO(context.Background(), po.ID)
				if contains(allowed[from], to) {
					require.NoError(t, err)
					require.Equal(t, to, updated.Status)
					require.Equal(t, to, stored.Status)
					return
				}
				require.ErrorIs(t, err, shared.ErrInvalidTransition)
				require.Equal(t, from, stored.Status)
			})
		}
	}
}

func TestPurchaseOrderApprovedThenRejectedFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po, err := env.svc.CreatePurchaseOrder(ctx, createPOInput())
	require.NoError(t, err)

	approved := "approved"
	_, err = env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Status: &approved})
	require.NoError(t, err)

	rejected := "REJECTED"
	_, err = env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Status: &rejected})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	stored, _ := env.repo.GetPO(ctx, po.ID)
	require.Equal(t, POStatusApproved, stored.Status)
}

func TestUpdatePurchaseOrderUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	po := env.seedPO(POStatusPending)
	status := "SHIPPED"
	_, err := env.svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdatePOInput{Status: &status})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdatePurchaseOrderItemsReconciledWhilePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po, err := env.svc.CreatePurchaseOrder(ctx, createPOInput())
	require.NoError(t, err)
	first, second := po.Items[0], po.Items[1]

	items := []POItemInput{
		{ID: first.ID, ItemID: first.ItemID, Quantity: dec("2"), UnitPrice: dec("5")},
		{ItemID: 102, Quantity: dec("1"), UnitPrice: dec("0.5")},
	}
	updated, err := env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Items: &items})
	require.NoError(t, err)
	require.Len(t, updated.Items, 2)
	require.Equal(t, "10.5", updated.TotalAmount.String())

	stored, _ := env.repo.GetPO(ctx, po.ID)
	ids := map[int64]bool{}
	for _, item := range stored.Items {
		ids[item.ID] = true
	}
	require.True(t, ids[first.ID])
	require.False(t, ids[second.ID])

	approved := "APPROVED"
	_, err = env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Status: &approved})
	require.NoError(t, err)
	_, err = env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Items: &items})
	require.ErrorIs(t, err, shared.ErrConflict)

	foreign := []POItemInput{{ID: 9999, ItemID: 100, Quantity: dec("1"), UnitPrice: dec("1")}}
	pending := env.seedPO(POStatusPending, PurchaseOrderItem{ItemID: 100, Quantity: dec("1")})
	_, err = env.svc.UpdatePurchaseOrder(ctx, pending.ID, UpdatePOInput{Items: &foreign})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdatePurchaseOrderItemsRejectsDuplicateLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po, err := env.svc.CreatePurchaseOrder(ctx, createPOInput())
	require.NoError(t, err)
	first := po.Items[0]

	items := []POItemInput{
		{ID: first.ID, ItemID: first.ItemID, Quantity: dec("2"), UnitPrice: dec("5")},
		{ID: first.ID, ItemID: first.ItemID, Quantity: dec("7"), UnitPrice: dec("5")},
	}
	_, err = env.svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Items: &items})
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, err := env.repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, len(po.Items))
	require.Equal(t, first.Quantity.String(), stored.Items[0].Quantity.String())
	require.Equal(t, po.TotalAmount.String(), stored.TotalAmount.String())
}

func TestReceivePurchaseOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po := env.seedPO(POStatusApproved,
		PurchaseOrderItem{ItemID: 100, Quantity: dec("10")},
		PurchaseOrderItem{ItemID: 101, Quantity: dec("4")},
	)

	partial, err := env.svc.ReceivePurchaseOrder(ctx, po.ID, ReceivePOInput{Items: []ReceivedItemInput{{ID: po.Items[0].ID, ReceivedQuantity: dec("10")}}})
	require.NoError(t, err)
	require.Equal(t, POStatusOpen, partial.Status)
	require.Nil(t, partial.ReceivedDate)

	done, err := env.svc.ReceivePurchaseOrder(ctx, po.ID, ReceivePOInput{Items: []ReceivedItemInput{{ID: po.Items[1].ID, ReceivedQuantity: dec("5")}}})
	require.NoError(t, err)
	require.Equal(t, POStatusCompleted, done.Status)
	require.NotNil(t, done.ReceivedDate)

	_, err = env.svc.ReceivePurchaseOrder(ctx, po.ID, ReceivePOInput{Items: []ReceivedItemInput{{ID: po.Items[1].ID, ReceivedQuantity: dec("5")}}})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, ok := env.repo.stock.Row(stockPair(100))
	require.False(t, ok)
}

func TestReceivePurchaseOrderRejectedIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	po := env.seedPO(POStatusRejected, PurchaseOrderItem{ItemID: 100, Quantity: dec("1")})
	_, err := env.svc.ReceivePurchaseOrder(context.Background(), po.ID, ReceivePOInput{Items: []ReceivedItemInput{{ID: po.Items[0].ID, ReceivedQuantity: dec("1")}}})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeletePurchaseOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	free := env.seedPO(POStatusPending)
	linked := env.seedPO(POStatusApproved, PurchaseOrderItem{ItemID: 100, Quantity: dec("1")})
	env.seedGRN(GRNStatusDraft, &linked.ID, GRNLineInput{ItemID: 100, ReceivedQty: dec("1")})

	require.NoError(t, env.svc.DeletePurchaseOrder(ctx, free.ID))
	_, err := env.svc.GetPurchaseOrder(ctx, free.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = env.svc.DeletePurchaseOrder(ctx, linked.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = env.svc.GetPurchaseOrder(ctx, linked.ID)
	require.NoError(t, err)
}

func TestListPurchaseOrdersFilters(t *testing.T) {
	env := newTestEnv(t)
	env.seedPO(POStatusPending)
	env.seedPO(POStatusApproved)

	items, total, err := env.svc.ListPurchaseOrders(context.Background(), ListFilters{Status: "pending"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.True(t, strings.HasPrefix(items[0].OrderNumber, "PO-SEED-"))

	_, _, err = env.svc.ListPurchaseOrders(context.Background(), ListFilters{Status: "bogus"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
