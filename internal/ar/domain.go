package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
)

// ARInvoiceStatus enumerates AR invoice statuses.
type ARInvoiceStatus string

const (
	ARStatusDraft  ARInvoiceStatus = "DRAFT"
	ARStatusPosted ARInvoiceStatus = "POSTED"
	ARStatusPaid   ARInvoiceStatus = "PAID"
	ARStatusVoid   ARInvoiceStatus = "VOID"
)

// ARInvoice model.
type ARInvoice struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	CustomerID int64           `json:"customer_id"`
	SOID       int64           `json:"so_id"`
	Currency   string          `json:"currency"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
	Status     ARInvoiceStatus `json:"status"`
	DueAt      time.Time       `json:"due_at"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ARInvoiceLine is a priced invoice line. The stacked discounts are stored as
// copied from the originating sales order line.
type ARInvoiceLine struct {
	ID              int64           `json:"id"`
	ARInvoiceID     int64           `json:"ar_invoice_id"`
	SOLineID        int64           `json:"so_line_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Quantity        float64         `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPct     float64         `json:"discount_pct"`
	Discount2       float64         `json:"discount2"`
	Discount3       float64         `json:"discount3"`
	DiscountingMode discount.Mode   `json:"discounting_mode"`
	TaxPct          float64         `json:"tax_pct"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ARInvoiceWithLines bundles an invoice with its lines.
type ARInvoiceWithLines struct {
	ARInvoice
	Lines []ARInvoiceLine `json:"lines"`
}

// CreateARInvoiceInput for creating AR invoices from a sales order.
type CreateARInvoiceInput struct {
	CustomerID     int64
	SOID           int64
	Currency       string
	DueDate        time.Time
	CreatedBy      int64
	IdempotencyKey string
	Lines          []CreateARInvoiceLineInput
}

// CreateARInvoiceLineInput carries the values of one invoice line.
type CreateARInvoiceLineInput struct {
	SOLineID        int64
	ProductID       int64
	Description     string
	Quantity        float64
	UnitPrice       decimal.Decimal
	DiscountPct     float64
	Discount2       float64
	Discount3       float64
	DiscountingMode discount.Mode
	TaxPct          float64
}
