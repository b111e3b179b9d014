package shared

import "github.com/shopspring/decimal"

// LineTotal returns quantity * unitPrice rounded to cents.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}

// OrderTotals derives the order total and the balance still owed.
func OrderTotals(subtotal, discount, tax, amountPaid decimal.Decimal) (total, outstanding decimal.Decimal) {
	total = subtotal.Sub(discount).Add(tax)
	outstanding = total.Sub(amountPaid)
	return
}
