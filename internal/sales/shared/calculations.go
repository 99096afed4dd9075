package shared

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotals holds the monetary breakdown of one priced line.
type LineTotals struct {
	Gross          decimal.Decimal `json:"gross"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// CalculateLineTotals prices a line from a single discount percentage.
// Amounts are rounded to two decimals; the subtotal is derived from the rounded
// discount so that gross = discount + subtotal always holds.
func CalculateLineTotals(quantity float64, unitPrice decimal.Decimal, discountPercent, taxPercent float64) LineTotals {
	gross := unitPrice.Mul(decimal.NewFromFloat(quantity)).Round(2)
	discountAmount := gross.Mul(decimal.NewFromFloat(discountPercent)).Div(hundred).Round(2)
	subtotal := gross.Sub(discountAmount)
	taxAmount := subtotal.Mul(decimal.NewFromFloat(taxPercent)).Div(hundred).Round(2)
	return LineTotals{
		Gross:          gross,
		DiscountAmount: discountAmount,
		Subtotal:       subtotal,
		TaxAmount:      taxAmount,
		LineTotal:      subtotal.Add(taxAmount),
	}
}
