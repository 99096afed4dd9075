package ar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/internal/sales/shared"
)

const idempotencyModule = "ar.invoice"

// RepositoryPort defines data access methods for AR.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetARInvoice(ctx context.Context, id int64) (*ARInvoiceWithLines, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateARInvoice(ctx context.Context, inv ARInvoice) (int64, error)
	CreateARInvoiceLine(ctx context.Context, line ARInvoiceLine) (int64, error)
}

// IdempotencyGuard rejects replayed invoice requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service handles AR business logic.
type Service struct {
	repo  RepositoryPort
	guard IdempotencyGuard
	now   func() time.Time
}

// NewService builds Service instance. guard may be nil.
func NewService(repo RepositoryPort, guard IdempotencyGuard) *Service {
	return &Service{repo: repo, guard: guard, now: time.Now}
}

// CreateARInvoiceFromSO creates a draft AR invoice with the supplied sales order lines.
func (s *Service) CreateARInvoiceFromSO(ctx context.Context, input CreateARInvoiceInput) (*ARInvoiceWithLines, error) {
	if input.CustomerID == 0 {
		return nil, errors.New("customer ID required")
	}
	if input.SOID == 0 {
		return nil, errors.New("sales order ID required")
	}
	if len(input.Lines) == 0 {
		return nil, errors.New("invoice requires at least one line")
	}

	lines := make([]ARInvoiceLine, 0, len(input.Lines))
	subtotal, taxAmount := decimal.Zero, decimal.Zero
	for _, in := range input.Lines {
		line, err := PriceLine(in)
		if err != nil {
			return nil, err
		}
		subtotal = subtotal.Add(line.Subtotal)
		taxAmount = taxAmount.Add(line.TaxAmount)
		lines = append(lines, line)
	}

	if input.IdempotencyKey != "" && s.guard != nil {
		if err := s.guard.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
	}

	now := s.now()
	inv := ARInvoice{
		Number:     newInvoiceNumber(now),
		CustomerID: input.CustomerID,
		SOID:       input.SOID,
		Currency:   input.Currency,
		Subtotal:   subtotal,
		TaxAmount:  taxAmount,
		Total:      subtotal.Add(taxAmount),
		Status:     ARStatusDraft,
		DueAt:      input.DueDate,
		CreatedBy:  input.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var invoiceID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateARInvoice(ctx, inv)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id
		for _, line := range lines {
			line.ARInvoiceID = id
			if _, err := tx.CreateARInvoiceLine(ctx, line); err != nil {
				return fmt.Errorf("create invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.guard != nil {
			_ = s.guard.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}

	return s.repo.GetARInvoice(ctx, invoiceID)
}

// GetARInvoice returns an invoice with its lines.
func (s *Service) GetARInvoice(ctx context.Context, id int64) (*ARInvoiceWithLines, error) {
	return s.repo.GetARInvoice(ctx, id)
}

// PriceLine computes the amounts of an invoice line from its stacked discounts.
func PriceLine(in CreateARInvoiceLineInput) (ARInvoiceLine, error) {
	mode := in.DiscountingMode
	if mode == "" {
		mode = discount.DefaultMode
	}
	final, err := discount.Combine(mode, in.DiscountPct, in.Discount2, in.Discount3)
	if err != nil {
		var modeErr *discount.UnknownModeError
		if errors.As(err, &modeErr) {
			modeErr.Line = in.Description
		}
		return ARInvoiceLine{}, err
	}
	totals := shared.CalculateLineTotals(in.Quantity, in.UnitPrice, final, in.TaxPct)
	return ARInvoiceLine{
		SOLineID:        in.SOLineID,
		ProductID:       in.ProductID,
		Description:     in.Description,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		DiscountPct:     in.DiscountPct,
		Discount2:       in.Discount2,
		Discount3:       in.Discount3,
		DiscountingMode: mode,
		TaxPct:          in.TaxPct,
		Subtotal:        totals.Subtotal,
		TaxAmount:       totals.TaxAmount,
		Total:           totals.LineTotal,
	}, nil
}

func newInvoiceNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}
