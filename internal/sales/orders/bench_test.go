package orders

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
)

func benchLines(n int) []*SalesOrderLine {
	lines := make([]*SalesOrderLine, n)
	for i := range lines {
		mode := discount.ModeMultiplicative
		if i%2 == 1 {
			mode = discount.ModeAdditive
		}
		lines[i] = &SalesOrderLine{
			ID:              int64(i + 1),
			Quantity:        float64(i%7 + 1),
			UnitPrice:       decimal.NewFromInt(int64(1000 + i)),
			DiscountPercent: 10,
			Discount2:       float64(i % 30),
			Discount3:       5,
			DiscountingMode: mode,
			TaxPercent:      11,
		}
	}
	return lines
}

func BenchmarkComputeAmounts(b *testing.B) {
	for _, n := range []int{1, 50, 500} {
		b.Run(fmt.Sprintf("lines=%d", n), func(b *testing.B) {
			lines := benchLines(n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := ComputeAmounts(lines); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCombine(b *testing.B) {
	for _, mode := range []discount.Mode{discount.ModeAdditive, discount.ModeMultiplicative} {
		b.Run(string(mode), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := discount.Combine(mode, 10, 20, 5); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
