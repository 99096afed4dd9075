package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
)

type SalesOrderStatus string

const (
	SalesOrderStatusDraft     SalesOrderStatus = "DRAFT"
	SalesOrderStatusConfirmed SalesOrderStatus = "CONFIRMED"
	SalesOrderStatusCancelled SalesOrderStatus = "CANCELLED"
	SalesOrderStatusCompleted SalesOrderStatus = "COMPLETED"
)

type SalesOrder struct {
	ID                   int64            `json:"id"`
	DocNumber            string           `json:"doc_number"`
	CompanyID            int64            `json:"company_id"`
	CustomerID           int64            `json:"customer_id"`
	OrderDate            time.Time        `json:"order_date"`
	ExpectedDeliveryDate *time.Time       `json:"expected_delivery_date,omitempty"`
	Status               SalesOrderStatus `json:"status"`
	Currency             string           `json:"currency"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	TaxAmount            decimal.Decimal  `json:"tax_amount"`
	TotalAmount          decimal.Decimal  `json:"total_amount"`
	Notes                *string          `json:"notes,omitempty"`
	CreatedBy            int64            `json:"created_by"`
	ConfirmedBy          *int64           `json:"confirmed_by,omitempty"`
	ConfirmedAt          *time.Time       `json:"confirmed_at,omitempty"`
	CancelledBy          *int64           `json:"cancelled_by,omitempty"`
	CancelledAt          *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason   *string          `json:"cancellation_reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	Lines                []SalesOrderLine `json:"lines,omitempty"`
}

// SalesOrderLine is one product line of an order. DiscountPercent, Discount2
// and Discount3 are stacked according to DiscountingMode.
type SalesOrderLine struct {
	ID              int64           `json:"id"`
	SalesOrderID    int64           `json:"sales_order_id"`
	ProductID       int64           `json:"product_id"`
	Description     *string         `json:"description,omitempty"`
	Quantity        float64         `json:"quantity"`
	UOM             string          `json:"uom"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent float64         `json:"discount_percent"`
	Discount2       float64         `json:"discount2"`
	Discount3       float64         `json:"discount3"`
	DiscountingMode discount.Mode   `json:"discounting_mode"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      float64         `json:"tax_percent"`
	PriceSubtotal   decimal.Decimal `json:"price_subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	Notes           *string         `json:"notes,omitempty"`
	LineOrder       int             `json:"line_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DisplayName identifies the line in messages.
func (l *SalesOrderLine) DisplayName() string {
	if l.Description != nil && *l.Description != "" {
		return *l.Description
	}
	if l.ID > 0 {
		return fmt.Sprintf("#%d", l.ID)
	}
	return fmt.Sprintf("product %d", l.ProductID)
}

// Mode returns the line's discounting mode, DefaultMode when unset.
func (l *SalesOrderLine) Mode() discount.Mode {
	if l.DiscountingMode == "" {
		return discount.DefaultMode
	}
	return l.DiscountingMode
}

// FinalDiscount combines the three line discounts with the line's mode.
func (l *SalesOrderLine) FinalDiscount() (float64, error) {
	final, err := discount.Combine(l.Mode(), l.DiscountPercent, l.Discount2, l.Discount3)
	if err != nil {
		var modeErr *discount.UnknownModeError
		if errors.As(err, &modeErr) {
			modeErr.Line = l.DisplayName()
		}
		return 0, err
	}
	return final, nil
}

// Summary is the cached totals view of an order.
type Summary struct {
	OrderID     int64            `json:"order_id"`
	Status      SalesOrderStatus `json:"status"`
	Currency    string           `json:"currency"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	TaxAmount   decimal.Decimal  `json:"tax_amount"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Lines       []LineSummary    `json:"lines"`
}

// LineSummary reports the stacked and effective discount of one line.
type LineSummary struct {
	LineID          int64           `json:"line_id"`
	DiscountingMode discount.Mode   `json:"discounting_mode"`
	Discounts       [3]float64      `json:"discounts"`
	FinalDiscount   float64         `json:"final_discount"`
	PriceSubtotal   decimal.Decimal `json:"price_subtotal"`
}
