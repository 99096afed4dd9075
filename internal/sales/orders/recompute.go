package orders

import (
	"github.com/odyssey-erp/sales-discount/internal/sales/shared"
)

// lineDiscounts holds the stacked discounts of a line as stored.
type lineDiscounts struct {
	line     *SalesOrderLine
	discount float64
	second   float64
	third    float64
}

// DiscountSnapshot remembers the stacked discounts of lines whose discount
// fields were collapsed by PrepareDiscounts. It belongs to a single recompute.
type DiscountSnapshot struct {
	entries []lineDiscounts
}

// Len returns the number of distinct lines captured.
func (s *DiscountSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// PrepareDiscounts collapses the stacked discounts of every line into
// DiscountPercent so that single-discount price computation sees the combined
// value. Discount2 and Discount3 are zeroed. Lines are left untouched when any
// of them has an unknown discounting mode. The same line passed twice is
// captured once.
func PrepareDiscounts(lines []*SalesOrderLine) (*DiscountSnapshot, error) {
	finals := make([]float64, len(lines))
	for i, line := range lines {
		final, err := line.FinalDiscount()
		if err != nil {
			return nil, err
		}
		finals[i] = final
	}

	snap := &DiscountSnapshot{entries: make([]lineDiscounts, 0, len(lines))}
	seen := make(map[*SalesOrderLine]struct{}, len(lines))
	for i, line := range lines {
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		snap.entries = append(snap.entries, lineDiscounts{
			line:     line,
			discount: line.DiscountPercent,
			second:   line.Discount2,
			third:    line.Discount3,
		})
		line.DiscountPercent = finals[i]
		line.Discount2 = 0
		line.Discount3 = 0
	}
	return snap, nil
}

// Restore writes the captured discounts back in capture order. Calling it
// more than once is harmless.
func (s *DiscountSnapshot) Restore() {
	if s == nil {
		return
	}
	for _, e := range s.entries {
		e.line.DiscountPercent = e.discount
		e.line.Discount2 = e.second
		e.line.Discount3 = e.third
	}
}

// ComputeAmounts prices every line from its combined discount and leaves the
// stacked discount fields as they were.
func ComputeAmounts(lines []*SalesOrderLine) error {
	snap, err := PrepareDiscounts(lines)
	if err != nil {
		return err
	}
	defer snap.Restore()

	for _, line := range lines {
		computeHostAmounts(line)
	}
	return nil
}

// computeHostAmounts is the single-discount line pricing. It reads only
// DiscountPercent.
func computeHostAmounts(line *SalesOrderLine) {
	totals := shared.CalculateLineTotals(line.Quantity, line.UnitPrice, line.DiscountPercent, line.TaxPercent)
	line.DiscountAmount = totals.DiscountAmount
	line.PriceSubtotal = totals.Subtotal
	line.TaxAmount = totals.TaxAmount
	line.LineTotal = totals.LineTotal
}
