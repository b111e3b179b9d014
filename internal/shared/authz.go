package shared

// Fulfillment permissions declared for RBAC.
const (
	// Purchase order permissions
	PermPOView    = "procurement.po.view"
	PermPOCreate  = "procurement.po.create"
	PermPOEdit    = "procurement.po.edit"
	PermPOReceive = "procurement.po.receive"
	PermPODelete  = "procurement.po.delete"

	// Goods receipt permissions
	PermGRNView   = "procurement.grn.view"
	PermGRNCreate = "procurement.grn.create"
	PermGRNEdit   = "procurement.grn.edit"
	PermGRNDelete = "procurement.grn.delete"

	// Sales order permissions
	PermSalesOrderView   = "sales.order.view"
	PermSalesOrderCreate = "sales.order.create"
	PermSalesOrderEdit   = "sales.order.edit"
	PermSalesOrderDelete = "sales.order.delete"

	// Stock ledger permissions
	PermStockView    = "inventory.stock.view"
	PermStockAdjust  = "inventory.stock.adjust"
	PermStockReserve = "inventory.stock.reserve"
)

// FulfillmentScopes lists every permission the fulfillment engine checks.
func FulfillmentScopes() []string {
	return []string{
		PermPOView,
		PermPOCreate,
		PermPOEdit,
		PermPOReceive,
		PermPODelete,
		PermGRNView,
		PermGRNCreate,
		PermGRNEdit,
		PermGRNDelete,
		PermSalesOrderView,
		PermSalesOrderCreate,
		PermSalesOrderEdit,
		PermSalesOrderDelete,
		PermStockView,
		PermStockAdjust,
		PermStockReserve,
	}
}
