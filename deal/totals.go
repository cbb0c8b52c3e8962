package deal

import "github.com/shopspring/decimal"

// moneyPlaces is the fixed precision of every money field.
const moneyPlaces = 2

// ComputeLineTotal derives a line item's total from its persisted inputs.
// Client-supplied totals are never trusted.
func ComputeLineTotal(quantity, unitCost decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitCost).Round(moneyPlaces)
}

// RecomputeTotals derives a version's aggregate pricing from all line items
// currently attached to it. Taxes apply the given rate to the subtotal.
func RecomputeTotals(items []LineItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	subtotal = subtotal.Round(moneyPlaces)
	taxes := subtotal.Mul(taxRate).Round(moneyPlaces)
	return Totals{
		Subtotal: subtotal,
		Taxes:    taxes,
		Total:    subtotal.Add(taxes).Round(moneyPlaces),
	}
}
