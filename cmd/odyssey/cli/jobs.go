package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sales-discount/jobs"
)

// RecomputeEnqueuer schedules order recomputes.
type RecomputeEnqueuer interface {
	EnqueueSalesOrderRecompute(ctx context.Context, orderID int64) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	enqueuer RecomputeEnqueuer
	inspect  func() (jobs.QueueStats, error)
	closers  []io.Closer
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		enqueuer: client,
		inspect:  func() (jobs.QueueStats, error) { return jobs.InspectDefaultQueue(inspector) },
		closers:  []io.Closer{client, inspector},
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// TriggerRecompute enqueues a recompute of the given sales order.
func (c *JobsCLI) TriggerRecompute(ctx context.Context, orderID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.enqueuer.EnqueueSalesOrderRecompute(ctx, orderID)
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspect == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return c.inspect()
}

// RecomputeOptions defines the flags of the recompute command.
type RecomputeOptions struct {
	OrderID int64
	Stdout  io.Writer
	Stderr  io.Writer
}

// RecomputeCommand enqueues a recompute and prints the task ID.
func (c *JobsCLI) RecomputeCommand(ctx context.Context, opts RecomputeOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if opts.OrderID <= 0 {
		_, _ = fmt.Fprintln(stderr, "recompute: -order is required and must be positive")
		return 1
	}
	info, err := c.TriggerRecompute(ctx, opts.OrderID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "recompute: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s for order %d on queue %s\n", info.ID, opts.OrderID, info.Queue)
	return 0
}

// QueueOptions defines the flags of the queue command.
type QueueOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// QueueCommand prints the default queue statistics.
func (c *JobsCLI) QueueCommand(ctx context.Context, opts QueueOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(stderr, "queue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "queue %s: pending=%d active=%d retry=%d archived=%d processed=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Retry, stats.Archived, stats.Processed, stats.Failed)
	return 0
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
