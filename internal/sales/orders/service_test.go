package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sales-discount/internal/ar"
	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/internal/shared"
)

type fakeInvoicer struct {
	inputs []ar.CreateARInvoiceInput
	err    error
}

func (f *fakeInvoicer) CreateARInvoiceFromSO(ctx context.Context, input ar.CreateARInvoiceInput) (*ar.ARInvoiceWithLines, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	onRollback(ctx, func() { f.inputs = f.inputs[:len(f.inputs)-1] })
	inv := &ar.ARInvoiceWithLines{ARInvoice: ar.ARInvoice{ID: int64(len(f.inputs)), Number: "INV-TEST", SOID: input.SOID, Status: ar.ARStatusDraft}}
	for _, in := range input.Lines {
		line, err := ar.PriceLine(in)
		if err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, line)
		inv.Subtotal = inv.Subtotal.Add(line.Subtotal)
	}
	return inv, nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type countingObserver map[string]int

func (c countingObserver) ObserveDiscountCombination(mode string) { c[mode]++ }

type fixture struct {
	repo     *memoryRepo
	invoicer *fakeInvoicer
	audit    *recordingAudit
	metrics  countingObserver
	redis    *miniredis.Miniredis
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repo:     newMemoryRepo(),
		invoicer: &fakeInvoicer{},
		audit:    &recordingAudit{},
		metrics:  countingObserver{},
		redis:    mr,
	}
	f.service = NewService(f.repo, Deps{
		Invoicer: f.invoicer,
		Audit:    f.audit,
		Cache:    NewSummaryCache(client, time.Minute),
		Metrics:  f.metrics,
	})
	return f
}

func createRequest() CreateSalesOrderRequest {
	return CreateSalesOrderRequest{
		CompanyID:  1,
		CustomerID: 7,
		OrderDate:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		Currency:   "IDR",
		Lines: []CreateSalesOrderLineReq{
			{
				ProductID:       5,
				Description:     strPtr("Widget"),
				Quantity:        2,
				UOM:             "pcs",
				UnitPrice:       decimal.NewFromInt(100),
				DiscountPercent: 50,
				Discount2:       50,
				DiscountingMode: discount.ModeMultiplicative,
				TaxPercent:      10,
			},
			{
				ProductID:       6,
				Description:     strPtr("Gadget"),
				Quantity:        1,
				UOM:             "pcs",
				UnitPrice:       decimal.NewFromInt(200),
				DiscountPercent: 10,
				Discount2:       20,
				Discount3:       5,
				DiscountingMode: discount.ModeAdditive,
			},
		},
	}
}

func TestServiceCreatePricesStackedDiscounts(t *testing.T) {
	f := newFixture(t)

	order, err := f.service.Create(context.Background(), createRequest(), 3)
	require.NoError(t, err)
	require.Equal(t, "SO-2610-0001", order.DocNumber)
	require.Equal(t, SalesOrderStatusDraft, order.Status)
	require.Len(t, order.Lines, 2)

	widget, gadget := order.Lines[0], order.Lines[1]
	require.Equal(t, [3]float64{50, 50, 0}, [3]float64{widget.DiscountPercent, widget.Discount2, widget.Discount3})
	require.Equal(t, [3]float64{10, 20, 5}, [3]float64{gadget.DiscountPercent, gadget.Discount2, gadget.Discount3})
	require.True(t, widget.PriceSubtotal.Equal(decimal.NewFromInt(50)), "widget subtotal %s", widget.PriceSubtotal)
	require.True(t, gadget.PriceSubtotal.Equal(decimal.NewFromInt(130)), "gadget subtotal %s", gadget.PriceSubtotal)

	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(180)), "subtotal %s", order.Subtotal)
	require.True(t, order.TaxAmount.Equal(decimal.NewFromInt(5)), "tax %s", order.TaxAmount)
	require.True(t, order.TotalAmount.Equal(decimal.NewFromInt(185)), "total %s", order.TotalAmount)

	require.Equal(t, 1, f.metrics["multiplicative"])
	require.Equal(t, 1, f.metrics["additive"])
}

func TestServiceCreateValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("discount2 above limit", func(t *testing.T) {
		req := createRequest()
		req.Lines[0].Discount2 = 100.5
		_, err := f.service.Create(context.Background(), req, 3)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		require.Equal(t, "Discount2", verrs[0].Field())
	})

	t.Run("unknown mode", func(t *testing.T) {
		req := createRequest()
		req.Lines[1].DiscountingMode = "tiered"
		_, err := f.service.Create(context.Background(), req, 3)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		require.Equal(t, "oneof", verrs[0].Tag())
	})

	t.Run("negative unit price", func(t *testing.T) {
		req := createRequest()
		req.Lines[0].UnitPrice = decimal.NewFromInt(-1)
		_, err := f.service.Create(context.Background(), req, 3)
		require.ErrorIs(t, err, ErrInvalidLine)
	})

	require.Empty(t, f.repo.orders)
}

func TestServiceCreateAllowsNegativeStackedDiscount(t *testing.T) {
	f := newFixture(t)
	req := createRequest()
	req.Lines = req.Lines[1:]
	req.Lines[0].Discount2 = -40
	req.Lines[0].Discount3 = 0
	req.Lines[0].DiscountingMode = ""

	order, err := f.service.Create(context.Background(), req, 3)
	require.NoError(t, err)
	line := order.Lines[0]
	require.Equal(t, discount.ModeMultiplicative, line.DiscountingMode)
	// 100 - 100*0.9*1.4 = -26
	require.True(t, line.PriceSubtotal.Equal(decimal.NewFromInt(252)), "subtotal %s", line.PriceSubtotal)
}

func TestServiceUpdateLineDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)
	widgetID := order.Lines[0].ID

	mode := discount.ModeAdditive
	line, err := f.service.UpdateLineDiscounts(ctx, widgetID, UpdateLineDiscountsRequest{DiscountingMode: &mode}, 9)
	require.NoError(t, err)
	require.Equal(t, discount.ModeAdditive, line.DiscountingMode)
	require.Equal(t, 50.0, line.Discount2)
	require.True(t, line.PriceSubtotal.IsZero(), "additive 50+50 caps at 100")

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, stored.Subtotal.Equal(decimal.NewFromInt(130)))
	require.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(130)))

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	require.Equal(t, "sales_order_line.discounts_updated", entry.Action)
	require.Equal(t, int64(9), entry.ActorID)
	require.Equal(t, "multiplicative", entry.Meta["before"].(map[string]any)["discounting_mode"])
	require.Equal(t, "additive", entry.Meta["after"].(map[string]any)["discounting_mode"])

	d3 := 101.0
	_, err = f.service.UpdateLineDiscounts(ctx, widgetID, UpdateLineDiscountsRequest{Discount3: &d3}, 9)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	_, err = f.service.UpdateLineDiscounts(ctx, 999, UpdateLineDiscountsRequest{DiscountingMode: &mode}, 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceUpdateLineDiscountsRequiresDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)
	_, err = f.service.Confirm(ctx, order.ID, 3)
	require.NoError(t, err)

	d2 := 10.0
	_, err = f.service.UpdateLineDiscounts(ctx, order.Lines[0].ID, UpdateLineDiscountsRequest{Discount2: &d2}, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestServiceRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	widget := f.repo.lines[order.Lines[0].ID]
	widget.UnitPrice = decimal.NewFromInt(300)
	f.repo.lines[widget.ID] = widget

	recomputed, err := f.service.Recompute(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, recomputed.Lines[0].PriceSubtotal.Equal(decimal.NewFromInt(150)), "subtotal %s", recomputed.Lines[0].PriceSubtotal)
	require.Equal(t, 50.0, recomputed.Lines[0].Discount2)

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, stored.Subtotal.Equal(decimal.NewFromInt(280)), "subtotal %s", stored.Subtotal)
	require.Equal(t, 50.0, stored.Lines[0].Discount2)
}

func TestServiceRecomputeUnknownStoredMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)
	f.repo.setLineMode(order.Lines[1].ID, "legacy")

	_, err = f.service.Recompute(ctx, order.ID)
	require.ErrorIs(t, err, discount.ErrUnknownDiscountingMode)
	require.Contains(t, err.Error(), "Gadget")

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, stored.Lines[0].PriceSubtotal.Equal(decimal.NewFromInt(50)))
	require.Equal(t, 20.0, stored.Lines[1].Discount2)
}

func TestServiceInvoiceCarriesRawDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	due := time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)
	_, err = f.service.Invoice(ctx, order.ID, InvoiceSalesOrderRequest{DueDate: due}, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.service.Confirm(ctx, order.ID, 3)
	require.NoError(t, err)

	inv, err := f.service.Invoice(ctx, order.ID, InvoiceSalesOrderRequest{DueDate: due, IdempotencyKey: "so-1"}, 4)
	require.NoError(t, err)
	require.Len(t, f.invoicer.inputs, 1)
	input := f.invoicer.inputs[0]
	require.Equal(t, "so-1", input.IdempotencyKey)
	require.Equal(t, int64(4), input.CreatedBy)
	require.Equal(t, 50.0, input.Lines[0].Discount2)
	require.Equal(t, 20.0, input.Lines[1].Discount2)
	require.Equal(t, 5.0, input.Lines[1].Discount3)

	for i, line := range inv.Lines {
		require.True(t, line.Subtotal.Equal(order.Lines[i].PriceSubtotal), "line %d", i)
	}

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusCompleted, stored.Status)
}

func confirmedOrder(t *testing.T, f *fixture) *SalesOrder {
	t.Helper()
	order, err := f.service.Create(context.Background(), createRequest(), 3)
	require.NoError(t, err)
	_, err = f.service.Confirm(context.Background(), order.ID, 3)
	require.NoError(t, err)
	return order
}

func TestServiceInvoiceFailedCompletionLeavesNoInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := confirmedOrder(t, f)
	req := InvoiceSalesOrderRequest{DueDate: time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)}

	f.repo.statusErr[SalesOrderStatusCompleted] = errors.New("connection reset")
	_, err := f.service.Invoice(ctx, order.ID, req, 3)
	require.ErrorContains(t, err, "connection reset")
	require.Empty(t, f.invoicer.inputs)

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusConfirmed, stored.Status)

	_, err = f.service.Invoice(ctx, order.ID, req, 3)
	require.NoError(t, err)
	require.Len(t, f.invoicer.inputs, 1)

	_, err = f.service.Invoice(ctx, order.ID, req, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Len(t, f.invoicer.inputs, 1)
}

func TestServiceInvoiceFailureKeepsOrderConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := confirmedOrder(t, f)

	f.invoicer.err = errors.New("ar: insert invoice: deadlock")
	_, err := f.service.Invoice(ctx, order.ID, InvoiceSalesOrderRequest{DueDate: time.Now().Add(24 * time.Hour)}, 3)
	require.ErrorIs(t, err, f.invoicer.err)

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusConfirmed, stored.Status)
}

// staleRepo reports orders as CONFIRMED, as a read racing another invoice would.
type staleRepo struct {
	*memoryRepo
}

func (r staleRepo) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, err := r.memoryRepo.Get(ctx, id)
	if err == nil {
		o.Status = SalesOrderStatusConfirmed
	}
	return o, err
}

func TestServiceInvoiceRacingRequestIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := confirmedOrder(t, f)
	req := InvoiceSalesOrderRequest{DueDate: time.Now().Add(24 * time.Hour)}

	_, err := f.service.Invoice(ctx, order.ID, req, 3)
	require.NoError(t, err)

	racing := NewService(staleRepo{f.repo}, Deps{Invoicer: f.invoicer})
	_, err = racing.Invoice(ctx, order.ID, req, 4)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Len(t, f.invoicer.inputs, 1)
}

func TestServiceSummaryIsCachedUntilWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	summary, err := f.service.Summary(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 75.0, summary.Lines[0].FinalDiscount)
	require.Equal(t, 35.0, summary.Lines[1].FinalDiscount)
	require.True(t, f.redis.Exists("orders:summary:1:1"))

	// direct store edits are invisible until the version moves
	o := f.repo.orders[order.ID]
	o.Subtotal = decimal.NewFromInt(1)
	f.repo.orders[order.ID] = o
	cached, err := f.service.Summary(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, cached.Subtotal.Equal(decimal.NewFromInt(180)))

	d3 := 0.0
	_, err = f.service.UpdateLineDiscounts(ctx, order.Lines[1].ID, UpdateLineDiscountsRequest{Discount3: &d3}, 3)
	require.NoError(t, err)
	fresh, err := f.service.Summary(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 30.0, fresh.Lines[1].FinalDiscount)
	require.True(t, f.redis.Exists("orders:summary:1:2"))
}

func TestServicePreviewDiscount(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.PreviewDiscount(PreviewDiscountRequest{DiscountingMode: discount.ModeAdditive, Discounts: [3]float64{40, 40, 40}})
	require.NoError(t, err)
	require.Equal(t, 100.0, resp.FinalDiscount)

	resp, err = f.service.PreviewDiscount(PreviewDiscountRequest{Discounts: [3]float64{50, 50, 0}})
	require.NoError(t, err)
	require.Equal(t, discount.ModeMultiplicative, resp.DiscountingMode)
	require.Equal(t, 75.0, resp.FinalDiscount)

	_, err = f.service.PreviewDiscount(PreviewDiscountRequest{DiscountingMode: "tiered"})
	require.ErrorIs(t, err, discount.ErrUnknownDiscountingMode)
}

func TestServiceCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.service.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(ctx, order.ID, 5, "customer withdrew")
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusCancelled, cancelled.Status)

	_, err = f.service.Cancel(ctx, order.ID, 5, "again")
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.service.Recompute(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}
