package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/sales-discount/internal/shared"
)

const bumpChannel = "sales.order.bump"

// ErrRecomputeLocked indicates another worker is recomputing the order.
var ErrRecomputeLocked = errors.New("order recompute already running")

// SummaryCache stores order summaries in Redis under a per-order version so a
// write invalidates every cached summary of that order at once.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSummaryCache instantiates the cache. A nil client disables caching.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

// Version returns the current summary version of an order, starting at 1.
func (c *SummaryCache) Version(ctx context.Context, orderID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, shared.OrderSummaryVersionKey(orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *SummaryCache) key(ctx context.Context, orderID int64) (string, error) {
	ver, err := c.Version(ctx, orderID)
	if err != nil {
		return "", err
	}
	return shared.OrderSummaryKey(orderID, ver), nil
}

// Fetch returns the cached summary or builds it with loader. Concurrent
// misses for the same order share a single loader call.
func (c *SummaryCache) Fetch(ctx context.Context, orderID int64, loader func(context.Context) (*Summary, error)) (*Summary, error) {
	if loader == nil {
		return nil, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out Summary
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		summary, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(summary)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return summary, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Summary), nil
	}
}

// Bump invalidates the cached summaries of an order and announces the new version.
func (c *SummaryCache) Bump(ctx context.Context, orderID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := shared.OrderSummaryVersionKey(orderID)
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return err
	}
	ver, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	msg := strconv.FormatInt(orderID, 10) + ":" + strconv.FormatInt(ver, 10)
	return c.client.Publish(ctx, bumpChannel, msg).Err()
}

// Lock takes the recompute lock of an order for ttl.
func (c *SummaryCache) Lock(ctx context.Context, orderID int64, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	ok, err := c.client.SetNX(ctx, shared.OrderRecomputeLockKey(orderID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecomputeLocked
	}
	return nil
}

// Unlock releases the recompute lock of an order.
func (c *SummaryCache) Unlock(ctx context.Context, orderID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, shared.OrderRecomputeLockKey(orderID)).Err()
}
