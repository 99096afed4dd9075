package orders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SummaryCache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute), mr, client
}

func TestSummaryCacheFetchAndBump(t *testing.T) {
	cache, mr, client := newTestCache(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, bumpChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	var loads int32
	loader := func(context.Context) (*Summary, error) {
		n := atomic.AddInt32(&loads, 1)
		return &Summary{OrderID: 4, Subtotal: decimal.NewFromInt(int64(n))}, nil
	}

	first, err := cache.Fetch(ctx, 4, loader)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, 4, loader)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&loads))
	require.True(t, first.Subtotal.Equal(second.Subtotal))
	require.Equal(t, time.Minute, mr.TTL("orders:summary:4:1"))

	require.NoError(t, cache.Bump(ctx, 4))
	ver, err := cache.Version(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "4:2", msg.Payload)

	third, err := cache.Fetch(ctx, 4, loader)
	require.NoError(t, err)
	require.True(t, third.Subtotal.Equal(decimal.NewFromInt(2)))
}

func TestSummaryCacheSharesConcurrentLoads(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	var loads int32
	release := make(chan struct{})
	loader := func(context.Context) (*Summary, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return &Summary{OrderID: 9}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := cache.Fetch(ctx, 9, loader)
			if assert.NoError(t, err) {
				assert.Equal(t, int64(9), s.OrderID)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&loads), int32(5))
	require.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(1))
}

func TestSummaryCacheLoaderError(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	boom := errors.New("db down")
	_, err := cache.Fetch(context.Background(), 2, func(context.Context) (*Summary, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("orders:summary:2:1"))

	_, err = cache.Fetch(context.Background(), 2, nil)
	require.Error(t, err)
}

func TestSummaryCacheRecomputeLock(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Lock(ctx, 3, time.Minute))
	require.ErrorIs(t, cache.Lock(ctx, 3, time.Minute), ErrRecomputeLocked)
	require.True(t, mr.Exists("sales:order:3:recompute:lock"))

	require.NoError(t, cache.Unlock(ctx, 3))
	require.NoError(t, cache.Lock(ctx, 3, time.Minute))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, cache.Lock(ctx, 3, time.Minute))
}

func TestNilSummaryCache(t *testing.T) {
	var cache *SummaryCache
	ctx := context.Background()
	s, err := cache.Fetch(ctx, 1, func(context.Context) (*Summary, error) { return &Summary{OrderID: 1}, nil })
	require.NoError(t, err)
	require.Equal(t, int64(1), s.OrderID)
	require.NoError(t, cache.Bump(ctx, 1))
	require.NoError(t, cache.Lock(ctx, 1, time.Second))
	require.NoError(t, cache.Unlock(ctx, 1))
}
