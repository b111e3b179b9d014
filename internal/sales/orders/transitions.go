package orders

var transitions = map[SalesOrderStatus][]SalesOrderStatus{
	SalesOrderStatusPending:   {SalesOrderStatusPending, SalesOrderStatusConfirmed, SalesOrderStatusCancelled, SalesOrderStatusShipped, SalesOrderStatusDelivered},
	SalesOrderStatusConfirmed: {SalesOrderStatusConfirmed, SalesOrderStatusDelivered, SalesOrderStatusCancelled, SalesOrderStatusShipped},
	SalesOrderStatusShipped:   {SalesOrderStatusShipped, SalesOrderStatusDelivered, SalesOrderStatusCancelled},
	SalesOrderStatusDelivered: {SalesOrderStatusDelivered, SalesOrderStatusCancelled},
	SalesOrderStatusCancelled: {SalesOrderStatusCancelled},
}

// CanTransition reports whether an order may move from s to next.
func (s SalesOrderStatus) CanTransition(next SalesOrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsReservation reports whether the order's quantities are still reserved in the ledger.
func (s SalesOrderStatus) HoldsReservation() bool {
	return s == SalesOrderStatusPending || s == SalesOrderStatusConfirmed
}
