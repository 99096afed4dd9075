package orders

import (
	"fmt"

	"github.com/odyssey-erp/sales-discount/internal/ar"
	"github.com/odyssey-erp/sales-discount/internal/tax"
)

// PrepareInvoiceLine converts an order line into an AR invoice line input for
// the given quantity. All three discounts and the mode are copied as stored.
func PrepareInvoiceLine(line *SalesOrderLine, quantity float64) ar.CreateARInvoiceLineInput {
	in := ar.CreateARInvoiceLineInput{
		SOLineID:    line.ID,
		ProductID:   line.ProductID,
		Description: line.DisplayName(),
		Quantity:    quantity,
		UnitPrice:   line.UnitPrice,
		DiscountPct: line.DiscountPercent,
		TaxPct:      line.TaxPercent,
	}
	in.Discount2 = line.Discount2
	in.Discount3 = line.Discount3
	in.DiscountingMode = line.Mode()
	return in
}

// TaxBaseLine builds the tax engine input of a line, carrying the combined
// discount. PriceSubtotal is passed as already computed.
func TaxBaseLine(order *SalesOrder, line *SalesOrderLine) (tax.BaseLine, error) {
	final, err := line.FinalDiscount()
	if err != nil {
		return tax.BaseLine{}, err
	}
	return tax.BaseLine{
		Reference:     fmt.Sprintf("%s/%d", order.DocNumber, line.LineOrder),
		CustomerID:    order.CustomerID,
		ProductID:     line.ProductID,
		Currency:      order.Currency,
		PriceUnit:     line.UnitPrice,
		Quantity:      line.Quantity,
		Discount:      final,
		TaxPercent:    line.TaxPercent,
		PriceSubtotal: line.PriceSubtotal,
	}, nil
}

// TaxBaseLines converts every line of the order.
func TaxBaseLines(order *SalesOrder) ([]tax.BaseLine, error) {
	out := make([]tax.BaseLine, 0, len(order.Lines))
	for i := range order.Lines {
		base, err := TaxBaseLine(order, &order.Lines[i])
		if err != nil {
			return nil, err
		}
		out = append(out, base)
	}
	return out, nil
}
