package jobs

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSalesOrderRecompute recomputes line amounts and totals of one sales order.
	TaskSalesOrderRecompute = "sales:order.recompute"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "platform:idempotency.cleanup"
)

// SalesOrderRecomputePayload identifies the order to recompute.
type SalesOrderRecomputePayload struct {
	OrderID int64 `json:"order_id"`
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSalesOrderRecomputeTask constructs an Asynq task with a unique task ID.
func NewSalesOrderRecomputeTask(payload SalesOrderRecomputePayload) (*asynq.Task, error) {
	if payload.OrderID <= 0 {
		return nil, errors.New("jobs: order id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSalesOrderRecompute, data, asynq.TaskID(uuid.NewString()), asynq.MaxRetry(5)), nil
}

// DecodeSalesOrderRecomputePayload parses and checks a recompute payload.
func DecodeSalesOrderRecomputePayload(raw []byte) (SalesOrderRecomputePayload, error) {
	var payload SalesOrderRecomputePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, err
	}
	if payload.OrderID <= 0 {
		return payload, errors.New("jobs: order id required")
	}
	return payload, nil
}

// NewIdempotencyCleanupTask constructs the cleanup task used by the scheduler.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
