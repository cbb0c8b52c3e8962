package deal

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeLineTotal(t *testing.T) {
	cases := []struct {
		quantity string
		unitCost string
		want     string
	}{
		{"10", "50", "500"},
		{"2", "200", "400"},
		{"1", "75", "75"},
		{"3", "33.333", "100"},
		{"0.5", "19.99", "10"},
		{"1.5", "10.01", "15.02"},
		{"7", "0", "0"},
	}
	for _, tc := range cases {
		got := ComputeLineTotal(dec(tc.quantity), dec(tc.unitCost))
		if !got.Equal(dec(tc.want)) {
			t.Errorf("ComputeLineTotal(%s, %s) = %s, want %s", tc.quantity, tc.unitCost, got, tc.want)
		}
	}
}

func TestRecomputeTotals_SumsLineTotals(t *testing.T) {
	items := []LineItem{
		{Quantity: dec("10"), UnitCost: dec("50"), LineTotal: ComputeLineTotal(dec("10"), dec("50"))},
		{Quantity: dec("2"), UnitCost: dec("200"), LineTotal: ComputeLineTotal(dec("2"), dec("200"))},
		{Quantity: dec("1"), UnitCost: dec("75"), LineTotal: ComputeLineTotal(dec("1"), dec("75"))},
	}

	totals := RecomputeTotals(items, decimal.Zero)
	if !totals.Subtotal.Equal(dec("975")) {
		t.Errorf("subtotal = %s, want 975", totals.Subtotal)
	}
	if !totals.Taxes.IsZero() {
		t.Errorf("taxes = %s, want 0", totals.Taxes)
	}
	if !totals.Total.Equal(dec("975")) {
		t.Errorf("total = %s, want 975", totals.Total)
	}
}

func TestRecomputeTotals_AppliesTaxRate(t *testing.T) {
	items := []LineItem{
		{LineTotal: dec("100")},
		{LineTotal: dec("23.45")},
	}

	totals := RecomputeTotals(items, dec("0.0825"))
	if !totals.Subtotal.Equal(dec("123.45")) {
		t.Errorf("subtotal = %s, want 123.45", totals.Subtotal)
	}
	// 123.45 * 0.0825 = 10.184625, rounded to cents.
	if !totals.Taxes.Equal(dec("10.18")) {
		t.Errorf("taxes = %s, want 10.18", totals.Taxes)
	}
	if !totals.Total.Equal(dec("133.63")) {
		t.Errorf("total = %s, want 133.63", totals.Total)
	}
}

func TestRecomputeTotals_Empty(t *testing.T) {
	totals := RecomputeTotals(nil, dec("0.10"))
	if !totals.Subtotal.IsZero() || !totals.Taxes.IsZero() || !totals.Total.IsZero() {
		t.Errorf("empty ledger totals = %+v, want all zero", totals)
	}
}
