package tools

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BulkThreshold is the quantity from which the bulk discount applies.
const BulkThreshold = 20

var bulkRate = decimal.RequireFromString("0.05")

// Quote is the priced result of buying quantity units at unit price.
type Quote struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Standard  decimal.Decimal
	Total     decimal.Decimal
	Savings   decimal.Decimal
}

// Discounted reports whether the bulk rate was applied.
func (q Quote) Discounted() bool { return q.Quantity >= BulkThreshold }

// QuoteOrder applies the bulk rule: 5% off price*quantity from BulkThreshold units.
// Amounts are rounded half-up to cents.
func QuoteOrder(price float64, quantity int) Quote {
	unit := decimal.NewFromFloat(price)
	standard := unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	total := standard
	if quantity >= BulkThreshold {
		total = standard.Mul(decimal.NewFromInt(1).Sub(bulkRate)).Round(2)
	}
	return Quote{
		UnitPrice: unit,
		Quantity:  quantity,
		Standard:  standard,
		Total:     total,
		Savings:   standard.Sub(total),
	}
}

// Breakdown renders q for the model. Below the threshold it also shows what
// ordering BulkThreshold units would cost.
func (q Quote) Breakdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unit price: %s\n", q.UnitPrice.StringFixed(2))
	fmt.Fprintf(&b, "Quantity: %d\n", q.Quantity)
	fmt.Fprintf(&b, "Standard total: %s\n", q.Standard.StringFixed(2))
	if q.Discounted() {
		fmt.Fprintf(&b, "Bulk discount (5%% for %d+ units): -%s\n", BulkThreshold, q.Savings.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "No bulk discount below %d units.\n", BulkThreshold)
	}
	fmt.Fprintf(&b, "Discounted total: %s\n", q.Total.StringFixed(2))
	fmt.Fprintf(&b, "Savings: %s", q.Savings.StringFixed(2))

	if !q.Discounted() {
		bulk := QuoteOrder(q.UnitPrice.InexactFloat64(), BulkThreshold)
		fmt.Fprintf(&b, "\nAt %d units the total would be %s, saving %s.",
			BulkThreshold, bulk.Total.StringFixed(2), bulk.Savings.StringFixed(2))
	}
	return b.String()
}
