package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const recomputeTimeout = 2 * time.Minute

// Client enqueues tasks for the worker.
type Client struct {
	client *asynq.Client
}

// NewClient connects lazily; the address is only checked for presence.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	if redisOpts.Addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSalesOrderRecompute schedules a recompute of orderID on the default queue.
func (c *Client) EnqueueSalesOrderRecompute(ctx context.Context, orderID int64) (*asynq.TaskInfo, error) {
	task, err := NewSalesOrderRecomputeTask(SalesOrderRecomputePayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.Timeout(recomputeTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs: enqueue recompute of order %d: %w", orderID, err)
	}
	return info, nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
