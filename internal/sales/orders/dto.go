package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/internal/shared"
)

type CreateSalesOrderRequest struct {
	CompanyID            int64                     `json:"company_id" validate:"required,gt=0"`
	CustomerID           int64                     `json:"customer_id" validate:"required,gt=0"`
	OrderDate            time.Time                 `json:"order_date" validate:"required"`
	ExpectedDeliveryDate *time.Time                `json:"expected_delivery_date,omitempty"`
	Currency             string                    `json:"currency" validate:"required,len=3"`
	Notes                *string                   `json:"notes,omitempty"`
	Lines                []CreateSalesOrderLineReq `json:"lines" validate:"required,min=1,dive"`
}

// CreateSalesOrderLineReq carries one order line. Discount2 and Discount3 have
// no lower bound.
type CreateSalesOrderLineReq struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Description     *string         `json:"description,omitempty"`
	Quantity        float64         `json:"quantity" validate:"required,gt=0"`
	UOM             string          `json:"uom" validate:"required,max=20"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent float64         `json:"discount_percent" validate:"gte=0,lte=100"`
	Discount2       float64         `json:"discount2" validate:"lte=100"`
	Discount3       float64         `json:"discount3" validate:"lte=100"`
	DiscountingMode discount.Mode   `json:"discounting_mode" validate:"omitempty,oneof=additive multiplicative"`
	TaxPercent      float64         `json:"tax_percent" validate:"gte=0,lte=100"`
	Notes           *string         `json:"notes,omitempty"`
	LineOrder       int             `json:"line_order" validate:"gte=0"`
}

type UpdateSalesOrderRequest struct {
	OrderDate            *time.Time                 `json:"order_date,omitempty"`
	ExpectedDeliveryDate *time.Time                 `json:"expected_delivery_date,omitempty"`
	Notes                *string                    `json:"notes,omitempty"`
	Lines                *[]CreateSalesOrderLineReq `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

// UpdateLineDiscountsRequest edits the stacked discounts of one line. Nil
// fields keep their stored value.
type UpdateLineDiscountsRequest struct {
	DiscountPercent *float64       `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Discount2       *float64       `json:"discount2,omitempty" validate:"omitempty,lte=100"`
	Discount3       *float64       `json:"discount3,omitempty" validate:"omitempty,lte=100"`
	DiscountingMode *discount.Mode `json:"discounting_mode,omitempty" validate:"omitempty,oneof=additive multiplicative"`
}

type ListSalesOrdersRequest struct {
	CompanyID  int64             `json:"company_id" validate:"required,gt=0"`
	CustomerID *int64            `json:"customer_id,omitempty"`
	Status     *SalesOrderStatus `json:"status,omitempty"`
	DateFrom   *time.Time        `json:"date_from,omitempty"`
	DateTo     *time.Time        `json:"date_to,omitempty"`
	Limit      int               `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int               `json:"offset" validate:"gte=0"`
}

type ListSalesOrdersResponse struct {
	Orders     []SalesOrder      `json:"orders"`
	Total      int               `json:"total"`
	Pagination shared.Pagination `json:"pagination"`
}

type CancelSalesOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// InvoiceSalesOrderRequest materializes a confirmed order into an AR invoice.
type InvoiceSalesOrderRequest struct {
	DueDate        time.Time `json:"due_date" validate:"required"`
	IdempotencyKey string    `json:"-"`
}

// PreviewDiscountRequest combines three discounts without touching any order.
type PreviewDiscountRequest struct {
	DiscountingMode discount.Mode `json:"discounting_mode"`
	Discounts       [3]float64    `json:"discounts"`
}

type PreviewDiscountResponse struct {
	DiscountingMode discount.Mode `json:"discounting_mode"`
	Discounts       [3]float64    `json:"discounts"`
	FinalDiscount   float64       `json:"final_discount"`
}
