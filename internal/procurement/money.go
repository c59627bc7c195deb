package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/shared"
)

// Storage scales of the po_items numeric columns.
const (
	qtyScale    int32 = 3
	amountScale int32 = 2
	susutScale  int32 = 4
	marginScale int32 = 6
	pctScale    int32 = 4
)

var (
	hundred = decimal.NewFromInt(100)

	// A line total of maxQty × maxPrice still fits NUMERIC(18,2) ten times over.
	maxQty   = decimal.New(1, 6)
	maxPrice = decimal.New(1, 9)
	// Nominal transfers are bounded by the header total columns.
	maxNominal = decimal.New(1, 15)
)

// checkAmount rejects values with more fractional digits than the column
// stores, or at or above limit.
func checkAmount(field string, v decimal.Decimal, scale int32, limit decimal.Decimal) error {
	if !v.Equal(v.Truncate(scale)) {
		return fmt.Errorf("%w: %s maksimal %d angka di belakang koma", shared.ErrValidation, field, scale)
	}
	if v.Abs().GreaterThanOrEqual(limit) {
		return fmt.Errorf("%w: %s harus kurang dari %s", shared.ErrValidation, field, limit.String())
	}
	return nil
}

// lineTotal is qty × unit price rounded to storage precision.
func lineTotal(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Round(amountScale)
}

// pricing holds the manager-approved sell figures for one item.
type pricing struct {
	Subtotal decimal.Decimal
	Profit   decimal.Decimal
	Margin   decimal.Decimal
}

// priceItem computes subtotal, profit and margin for a sell price against the item's cost basis.
func priceItem(item POItem, hargaJual decimal.Decimal) pricing {
	subtotal := lineTotal(item.QtyEstimasi, hargaJual)
	profit := subtotal.Sub(item.TotalModal)
	margin := decimal.Zero
	if !subtotal.IsZero() {
		margin = profit.Div(subtotal).Round(marginScale)
	}
	return pricing{Subtotal: subtotal, Profit: profit, Margin: margin}
}

// selisihPersen is (real − estimate) / estimate × 100. ok is false when the estimate is zero.
func selisihPersen(estimate, real decimal.Decimal) (decimal.Decimal, bool) {
	if estimate.IsZero() {
		return decimal.Zero, false
	}
	return real.Sub(estimate).Div(estimate).Mul(hundred), true
}

// applyReal fills the real-purchase fields of item.
func applyReal(item *POItem, qty, price decimal.Decimal) {
	subtotal := lineTotal(qty, price)
	item.QtyReal = decimal.NewNullDecimal(qty)
	item.HargaReal = decimal.NewNullDecimal(price)
	item.SubtotalReal = decimal.NewNullDecimal(subtotal)
	if pct, ok := selisihPersen(item.SubtotalEstimasi, subtotal); ok {
		item.SelisihPersen = decimal.NewNullDecimal(pct.Round(pctScale))
	} else {
		item.SelisihPersen = decimal.NullDecimal{}
	}
}

func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
