// Package tax computes tax amounts from priced document lines.
package tax

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BaseLine is the tax engine's view of a document line.
type BaseLine struct {
	Reference     string
	CustomerID    int64
	ProductID     int64
	Currency      string
	PriceUnit     decimal.Decimal
	Quantity      float64
	Discount      float64
	TaxPercent    float64
	PriceSubtotal decimal.Decimal
}

// LineResult is the computed tax for one base line.
type LineResult struct {
	Reference string          `json:"reference"`
	Base      decimal.Decimal `json:"base"`
	Tax       decimal.Decimal `json:"tax"`
}

// Totals aggregates tax results across base lines.
type Totals struct {
	Base  decimal.Decimal `json:"base"`
	Tax   decimal.Decimal `json:"tax"`
	Total decimal.Decimal `json:"total"`
	Lines []LineResult    `json:"lines"`
}

// BaseAmount returns the discounted taxable base of the line.
func (l BaseLine) BaseAmount() decimal.Decimal {
	gross := l.PriceUnit.Mul(decimal.NewFromFloat(l.Quantity))
	retained := hundred.Sub(decimal.NewFromFloat(l.Discount)).Div(hundred)
	return gross.Mul(retained).Round(2)
}

// Compute returns the tax per line and the document totals.
func Compute(lines []BaseLine) Totals {
	totals := Totals{
		Base:  decimal.Zero,
		Tax:   decimal.Zero,
		Lines: make([]LineResult, 0, len(lines)),
	}
	for _, line := range lines {
		base := line.BaseAmount()
		amount := base.Mul(decimal.NewFromFloat(line.TaxPercent)).Div(hundred).Round(2)
		totals.Lines = append(totals.Lines, LineResult{Reference: line.Reference, Base: base, Tax: amount})
		totals.Base = totals.Base.Add(base)
		totals.Tax = totals.Tax.Add(amount)
	}
	totals.Total = totals.Base.Add(totals.Tax)
	return totals
}
