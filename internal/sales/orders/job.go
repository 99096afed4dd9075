package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/sales-discount/internal/jobs"
	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
	"github.com/odyssey-erp/sales-discount/jobs"
)

const recomputeLockTTL = 2 * time.Minute

// Recomputer reprices a stored order.
type Recomputer interface {
	Recompute(ctx context.Context, id int64) (*SalesOrder, error)
}

// RecomputeLocker serialises recomputes of the same order across workers.
type RecomputeLocker interface {
	Lock(ctx context.Context, orderID int64, ttl time.Duration) error
	Unlock(ctx context.Context, orderID int64) error
}

// RecomputeJob processes sales order recompute tasks.
type RecomputeJob struct {
	service Recomputer
	locker  RecomputeLocker
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewRecomputeJob constructs a job handler. locker and metrics may be nil.
func NewRecomputeJob(service Recomputer, locker RecomputeLocker, metrics *jobmetrics.Metrics, logger *slog.Logger) *RecomputeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeJob{service: service, locker: locker, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RecomputeJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	payload, err := jobs.DecodeSalesOrderRecomputePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(jobs.TaskSalesOrderRecompute)
	defer func() { err = tracker.End(err) }()

	logger := j.logger.With(slog.Int64("order_id", payload.OrderID))
	if j.locker != nil {
		if err := j.locker.Lock(ctx, payload.OrderID, recomputeLockTTL); err != nil {
			if errors.Is(err, ErrRecomputeLocked) {
				logger.Info("recompute already running, retrying later")
				return fmt.Errorf("%w: %w", jobmetrics.ErrContended, err)
			}
			logger.Warn("recompute lock", slog.Any("error", err))
			return err
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx), payload.OrderID); err != nil {
				logger.Warn("recompute unlock", slog.Any("error", err))
			}
		}()
	}

	order, err := j.service.Recompute(ctx, payload.OrderID)
	if err != nil {
		logger.Error("sales order recompute", slog.Any("error", err))
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidStatus) || errors.Is(err, discount.ErrUnknownDiscountingMode) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.metrics.AddRecomputedLines(order.CompanyID, len(order.Lines))
	logger.Info("sales order recomputed", slog.Int("lines", len(order.Lines)), slog.String("total", order.TotalAmount.String()))
	return nil
}
