package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichops/overseer/internal/core/domain"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewClientFromRedis(rdb)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestEnqueueAndPopDueRetry(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	entry := domain.RetryEntry{
		Agent:       domain.AgentCompanyEnrich,
		ParentRunID: "parent-1",
		Attempt:     1,
		Adjustments: domain.Adjustments{ReduceBatchSize: true},
	}

	// Due immediately.
	require.NoError(t, c.EnqueueRetry(ctx, entry, 0))

	depth, err := c.RetryQueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	got, ok, err := c.PopDueRetry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, *got)

	// Queue drained.
	depth, err = c.RetryQueueDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	_, ok, err = c.PopDueRetry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPopDueRetryRespectsDelay(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	entry := domain.RetryEntry{Agent: domain.AgentCRMSync, Attempt: 1}
	require.NoError(t, c.EnqueueRetry(ctx, entry, time.Hour))

	// Not due yet: stays in the queue.
	_, ok, err := c.PopDueRetry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	depth, err := c.RetryQueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestPopDueRetryOrdersByFireTime(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	later := domain.RetryEntry{Agent: domain.AgentCRMSync, ParentRunID: "later"}
	sooner := domain.RetryEntry{Agent: domain.AgentCRMSync, ParentRunID: "sooner"}

	require.NoError(t, c.EnqueueRetry(ctx, later, -time.Minute))
	require.NoError(t, c.EnqueueRetry(ctx, sooner, -time.Hour))

	got, ok, err := c.PopDueRetry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sooner", got.ParentRunID)
}

func TestEnqueueRetryKeepsFirstFireTime(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	entry := domain.RetryEntry{Agent: domain.AgentCRMSync, ParentRunID: "parent-1", Attempt: 1}

	// A supervision pass faster than the delay re-enqueues the same entry;
	// the later re-enqueue must not push the fire time out.
	require.NoError(t, c.EnqueueRetry(ctx, entry, -time.Minute))
	require.NoError(t, c.EnqueueRetry(ctx, entry, time.Hour))

	depth, err := c.RetryQueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	got, ok, err := c.PopDueRetry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, *got)
}

func TestCacheStatsHitRate(t *testing.T) {
	assert.InDelta(t, 1.0, CacheStats{}.HitRate(), 0.001)
	assert.InDelta(t, 0.75, CacheStats{Hits: 3, Misses: 1}.HitRate(), 0.001)
	assert.InDelta(t, 0.0, CacheStats{Misses: 5}.HitRate(), 0.001)
}

func TestHealth(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	mr.Close()
	assert.Error(t, c.Health(ctx))
}
