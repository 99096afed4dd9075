package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/ar"
	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/internal/shared"
	"github.com/odyssey-erp/sales-discount/internal/tax"
)

var (
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrInvalidLine indicates line input the validator tags cannot express.
	ErrInvalidLine = errors.New("invalid order line")
)

// Invoicer materializes AR invoices.
type Invoicer interface {
	CreateARInvoiceFromSO(ctx context.Context, input ar.CreateARInvoiceInput) (*ar.ARInvoiceWithLines, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DiscountObserver counts discount combinations per mode.
type DiscountObserver interface {
	ObserveDiscountCombination(mode string)
}

// Deps groups the optional collaborators of Service.
type Deps struct {
	Invoicer Invoicer
	Audit    AuditRecorder
	Cache    *SummaryCache
	Metrics  DiscountObserver
	Logger   *slog.Logger
}

type Service struct {
	repo     Repository
	invoicer Invoicer
	audit    AuditRecorder
	cache    *SummaryCache
	metrics  DiscountObserver
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(repo Repository, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		invoicer: deps.Invoicer,
		audit:    deps.Audit,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req CreateSalesOrderRequest, createdBy int64) (*SalesOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	lines, err := s.buildLines(req.Lines)
	if err != nil {
		return nil, err
	}

	order := SalesOrder{
		CompanyID:            req.CompanyID,
		CustomerID:           req.CustomerID,
		OrderDate:            req.OrderDate,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		Status:               SalesOrderStatusDraft,
		Currency:             req.Currency,
		Notes:                req.Notes,
		CreatedBy:            createdBy,
		Lines:                lines,
	}
	if err := applyTotals(&order); err != nil {
		return nil, err
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		docNumber, err := repo.GenerateNumber(ctx, req.CompanyID, req.OrderDate)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		order.DocNumber = docNumber

		id, err := repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		orderID = id

		for _, line := range lines {
			line.SalesOrderID = id
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sales order created", slog.Int64("order_id", orderID), slog.Int("lines", len(lines)))
	return s.repo.Get(ctx, orderID)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateSalesOrderRequest) (*SalesOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status != SalesOrderStatusDraft {
		return nil, fmt.Errorf("%w: can only update DRAFT orders", ErrInvalidStatus)
	}

	var linesToInsert []SalesOrderLine
	if req.Lines != nil {
		linesToInsert, err = s.buildLines(*req.Lines)
		if err != nil {
			return nil, err
		}
		existing.Lines = linesToInsert
		if err := applyTotals(existing); err != nil {
			return nil, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		upd := OrderUpdate{
			OrderDate:            req.OrderDate,
			ExpectedDeliveryDate: req.ExpectedDeliveryDate,
			Notes:                req.Notes,
		}
		if err := repo.Update(ctx, id, upd); err != nil {
			return err
		}
		if req.Lines == nil {
			return nil
		}
		if err := repo.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range linesToInsert {
			line.SalesOrderID = id
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return repo.UpdateTotals(ctx, id, existing.Subtotal, existing.TaxAmount, existing.TotalAmount)
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	s.bump(ctx, id)
	return s.repo.Get(ctx, id)
}

// UpdateLineDiscounts changes the stacked discounts of one line of a DRAFT
// order and reprices the line and the order.
func (s *Service) UpdateLineDiscounts(ctx context.Context, lineID int64, req UpdateLineDiscountsRequest, actorID int64) (*SalesOrderLine, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	current, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("get order line: %w", err)
	}
	order, err := s.repo.Get(ctx, current.SalesOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != SalesOrderStatusDraft {
		return nil, fmt.Errorf("%w: can only edit discounts of DRAFT orders", ErrInvalidStatus)
	}

	var line *SalesOrderLine
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			line = &order.Lines[i]
			break
		}
	}
	if line == nil {
		return nil, ErrNotFound
	}
	before := discountMeta(line)

	if req.DiscountPercent != nil {
		line.DiscountPercent = *req.DiscountPercent
	}
	if req.Discount2 != nil {
		line.Discount2 = *req.Discount2
	}
	if req.Discount3 != nil {
		line.Discount3 = *req.Discount3
	}
	if req.DiscountingMode != nil {
		line.DiscountingMode = *req.DiscountingMode
	}

	if err := s.price([]*SalesOrderLine{line}); err != nil {
		return nil, err
	}
	if err := applyTotals(order); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateLine(ctx, *line); err != nil {
			return err
		}
		return repo.UpdateTotals(ctx, order.ID, order.Subtotal, order.TaxAmount, order.TotalAmount)
	})
	if err != nil {
		return nil, fmt.Errorf("update line discounts: %w", err)
	}

	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:  actorID,
			Action:   "sales_order_line.discounts_updated",
			Entity:   "sales_order_line",
			EntityID: strconv.FormatInt(lineID, 10),
			Meta:     map[string]any{"before": before, "after": discountMeta(line), "order_id": order.ID},
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit discounts update", slog.Int64("line_id", lineID), slog.Any("error", err))
		}
	}

	s.bump(ctx, order.ID)
	return line, nil
}

func (s *Service) Confirm(ctx context.Context, id int64, userID int64) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if existing.Status != SalesOrderStatusDraft {
		return nil, fmt.Errorf("%w: can only confirm DRAFT orders", ErrInvalidStatus)
	}

	err = s.repo.UpdateStatus(ctx, id, []SalesOrderStatus{SalesOrderStatusDraft}, SalesOrderStatusConfirmed, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("confirm order: %w", err)
	}

	s.bump(ctx, id)
	return s.repo.Get(ctx, id)
}

var cancellable = []SalesOrderStatus{SalesOrderStatusDraft, SalesOrderStatusConfirmed}

func (s *Service) Cancel(ctx context.Context, id int64, cancelledBy int64, reason string) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if existing.Status == SalesOrderStatusCancelled || existing.Status == SalesOrderStatusCompleted {
		return nil, fmt.Errorf("%w: order is already final", ErrInvalidStatus)
	}

	err = s.repo.UpdateStatus(ctx, id, cancellable, SalesOrderStatusCancelled, cancelledBy, &reason)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	s.bump(ctx, id)
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, req)
}

// Recompute reprices every line of an order from its stacked discounts and
// stores the new amounts and totals.
func (s *Service) Recompute(ctx context.Context, id int64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == SalesOrderStatusCancelled {
		return nil, fmt.Errorf("%w: cancelled orders are not recomputed", ErrInvalidStatus)
	}

	lines := make([]*SalesOrderLine, len(order.Lines))
	for i := range order.Lines {
		lines[i] = &order.Lines[i]
	}
	if err := s.price(lines); err != nil {
		return nil, err
	}
	if err := applyTotals(order); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for _, line := range lines {
			if err := repo.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}
		return repo.UpdateTotals(ctx, id, order.Subtotal, order.TaxAmount, order.TotalAmount)
	})
	if err != nil {
		return nil, fmt.Errorf("recompute order: %w", err)
	}

	s.bump(ctx, id)
	return order, nil
}

// Summary returns the cached totals of an order.
func (s *Service) Summary(ctx context.Context, id int64) (*Summary, error) {
	return s.cache.Fetch(ctx, id, func(ctx context.Context) (*Summary, error) {
		order, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return BuildSummary(order)
	})
}

// Invoice materializes a CONFIRMED order into an AR invoice and completes the order.
func (s *Service) Invoice(ctx context.Context, id int64, req InvoiceSalesOrderRequest, actorID int64) (*ar.ARInvoiceWithLines, error) {
	if s.invoicer == nil {
		return nil, errors.New("orders: invoicing not configured")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != SalesOrderStatusConfirmed {
		return nil, fmt.Errorf("%w: can only invoice CONFIRMED orders", ErrInvalidStatus)
	}

	input := ar.CreateARInvoiceInput{
		CustomerID:     order.CustomerID,
		SOID:           order.ID,
		Currency:       order.Currency,
		DueDate:        req.DueDate,
		CreatedBy:      actorID,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          make([]ar.CreateARInvoiceLineInput, 0, len(order.Lines)),
	}
	for i := range order.Lines {
		input.Lines = append(input.Lines, PrepareInvoiceLine(&order.Lines[i], order.Lines[i].Quantity))
	}

	// Completing the order and writing the invoice commit together; the
	// conditional transition lets only one concurrent request through.
	var invoice *ar.ARInvoiceWithLines
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		confirmed := []SalesOrderStatus{SalesOrderStatusConfirmed}
		if err := repo.UpdateStatus(ctx, id, confirmed, SalesOrderStatusCompleted, actorID, nil); err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		inv, err := s.invoicer.CreateARInvoiceFromSO(ctx, input)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bump(ctx, id)
	s.logger.Info("sales order invoiced", slog.Int64("order_id", id), slog.String("invoice", invoice.Number))
	return invoice, nil
}

// PreviewDiscount combines three discounts for a mode. An empty mode uses the default.
func (s *Service) PreviewDiscount(req PreviewDiscountRequest) (PreviewDiscountResponse, error) {
	mode, err := discount.ParseMode(string(req.DiscountingMode))
	if err != nil {
		return PreviewDiscountResponse{}, err
	}
	final, err := discount.Combine(mode, req.Discounts[:]...)
	if err != nil {
		return PreviewDiscountResponse{}, err
	}
	s.observe(mode)
	return PreviewDiscountResponse{DiscountingMode: mode, Discounts: req.Discounts, FinalDiscount: final}, nil
}

func (s *Service) buildLines(reqs []CreateSalesOrderLineReq) ([]SalesOrderLine, error) {
	lines := make([]SalesOrderLine, len(reqs))
	ptrs := make([]*SalesOrderLine, len(reqs))
	for i, req := range reqs {
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d unit price must not be negative", ErrInvalidLine, i+1)
		}
		mode := req.DiscountingMode
		if mode == "" {
			mode = discount.DefaultMode
		}
		lines[i] = SalesOrderLine{
			ProductID:       req.ProductID,
			Description:     req.Description,
			Quantity:        req.Quantity,
			UOM:             req.UOM,
			UnitPrice:       req.UnitPrice,
			DiscountPercent: req.DiscountPercent,
			Discount2:       req.Discount2,
			Discount3:       req.Discount3,
			DiscountingMode: mode,
			TaxPercent:      req.TaxPercent,
			Notes:           req.Notes,
			LineOrder:       req.LineOrder,
		}
		if lines[i].LineOrder == 0 {
			lines[i].LineOrder = i + 1
		}
		ptrs[i] = &lines[i]
	}
	if err := s.price(ptrs); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Service) price(lines []*SalesOrderLine) error {
	if err := ComputeAmounts(lines); err != nil {
		return err
	}
	for _, line := range lines {
		s.observe(line.Mode())
	}
	return nil
}

func (s *Service) observe(mode discount.Mode) {
	if s.metrics != nil {
		s.metrics.ObserveDiscountCombination(string(mode))
	}
}

func (s *Service) bump(ctx context.Context, orderID int64) {
	if err := s.cache.Bump(ctx, orderID); err != nil {
		s.logger.Warn("bump order summary cache", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

// applyTotals sets the order totals from its priced lines. Tax is computed by
// the tax engine over the lines' combined discounts.
func applyTotals(order *SalesOrder) error {
	subtotal := decimal.Zero
	for _, line := range order.Lines {
		subtotal = subtotal.Add(line.PriceSubtotal)
	}
	bases, err := TaxBaseLines(order)
	if err != nil {
		return err
	}
	taxTotals := tax.Compute(bases)
	order.Subtotal = subtotal
	order.TaxAmount = taxTotals.Tax
	order.TotalAmount = subtotal.Add(taxTotals.Tax)
	return nil
}

// BuildSummary reports the order totals and the effective discount per line.
func BuildSummary(order *SalesOrder) (*Summary, error) {
	summary := &Summary{
		OrderID:     order.ID,
		Status:      order.Status,
		Currency:    order.Currency,
		Subtotal:    order.Subtotal,
		TaxAmount:   order.TaxAmount,
		TotalAmount: order.TotalAmount,
		Lines:       make([]LineSummary, 0, len(order.Lines)),
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		final, err := line.FinalDiscount()
		if err != nil {
			return nil, err
		}
		summary.Lines = append(summary.Lines, LineSummary{
			LineID:          line.ID,
			DiscountingMode: line.Mode(),
			Discounts:       [3]float64{line.DiscountPercent, line.Discount2, line.Discount3},
			FinalDiscount:   final,
			PriceSubtotal:   line.PriceSubtotal,
		})
	}
	return summary, nil
}

func discountMeta(line *SalesOrderLine) map[string]any {
	return map[string]any{
		"discount_percent": line.DiscountPercent,
		"discount2":        line.Discount2,
		"discount3":        line.Discount3,
		"discounting_mode": string(line.Mode()),
	}
}
