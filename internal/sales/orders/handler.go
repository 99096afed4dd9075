package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sales-discount/internal/ar"
	"github.com/odyssey-erp/sales-discount/internal/platform/httpx"
	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/internal/shared"
)

// IdempotencyHeader carries the client supplied key of an invoice request.
const IdempotencyHeader = "Idempotency-Key"

const defaultListLimit = 50

// RecomputeEnqueuer schedules background recomputes.
type RecomputeEnqueuer interface {
	EnqueueSalesOrderRecompute(ctx context.Context, orderID int64) (*asynq.TaskInfo, error)
}

type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  RecomputeEnqueuer
	rateLimit func(http.Handler) http.Handler
}

func NewHandler(logger *slog.Logger, service *Service, enqueuer RecomputeEnqueuer, rateLimit func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if rateLimit == nil {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, rateLimit: rateLimit}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListSalesOrdersRequest{}
	var err error
	if req.CompanyID, err = parseOptionalInt(q.Get("company_id")); err != nil {
		h.badRequest(w, "company_id", err)
		return
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := parseOptionalInt(raw)
		if err != nil {
			h.badRequest(w, "customer_id", err)
			return
		}
		req.CustomerID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := SalesOrderStatus(strings.ToUpper(raw))
		req.Status = &status
	}
	if req.DateFrom, err = parseDate(q.Get("date_from")); err != nil {
		h.badRequest(w, "date_from", err)
		return
	}
	if req.DateTo, err = parseDate(q.Get("date_to")); err != nil {
		h.badRequest(w, "date_to", err)
		return
	}
	limit, err := parseOptionalInt(q.Get("limit"))
	if err != nil {
		h.badRequest(w, "limit", err)
		return
	}
	offset, err := parseOptionalInt(q.Get("offset"))
	if err != nil {
		h.badRequest(w, "offset", err)
		return
	}
	page, err := parseOptionalInt(q.Get("page"))
	if err != nil {
		h.badRequest(w, "page", err)
		return
	}
	req.Limit, req.Offset = int(limit), int(offset)
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if page > 0 && req.Offset == 0 {
		req.Offset = shared.NewPagination(int(page), req.Limit, 0).Offset()
	}

	orders, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	if orders == nil {
		orders = []SalesOrder{}
	}
	httpx.JSON(w, http.StatusOK, ListSalesOrdersResponse{
		Orders:     orders,
		Total:      total,
		Pagination: shared.NewPagination(req.Offset/req.Limit+1, req.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateSalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateLineDiscounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateLineDiscountsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.UpdateLineDiscounts(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update line discounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, "order summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Confirm(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "confirm order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CancelSalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.fail(w, "recompute order", err)
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
		return
	}
	info, err := h.enqueuer.EnqueueSalesOrderRecompute(r.Context(), id)
	if err != nil {
		h.fail(w, "enqueue recompute", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"order_id": id, "task_id": info.ID, "queue": info.Queue})
}

func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req InvoiceSalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	invoice, err := h.service.Invoice(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "invoice order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) PreviewDiscount(w http.ResponseWriter, r *http.Request) {
	var req PreviewDiscountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.PreviewDiscount(req)
	if err != nil {
		h.fail(w, "preview discount", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) badRequest(w http.ResponseWriter, param string, err error) {
	httpx.Problem(w, http.StatusBadRequest, "Invalid Query", param+": "+err.Error())
}

// fail maps service errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		httpx.ValidationProblem(w, verrs)
	case errors.Is(err, ErrNotFound), errors.Is(err, ar.ErrNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ErrRecomputeLocked):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	case errors.Is(err, discount.ErrUnknownDiscountingMode), errors.Is(err, ErrDiscountLimit):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrInvalidLine):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseOptionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
