package redisq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Queue, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewQueue(rdb)
	return NewScheduler(rdb, q), q, rdb, mr
}

func TestScheduleWritesEntryAndBlob(t *testing.T) {
	t.Parallel()
	s, _, rdb, mr := newTestScheduler(t)
	ctx := context.Background()

	due := time.Now().Add(30 * time.Minute)
	sc := domain.ScheduledContext{RetryCount: 1, Reason: "await PCE", Question: "still valid?"}
	require.NoError(t, s.Schedule(ctx, "t1", "SPY 0DTE", due, sc))

	score, err := rdb.ZScore(ctx, KeyScheduled, "t1").Result()
	require.NoError(t, err)
	assert.InDelta(t, float64(due.Unix()), score, 1)

	raw, err := rdb.Get(ctx, keyScheduledData+"t1").Result()
	require.NoError(t, err)
	var got domain.ScheduledContext
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "await PCE", got.Reason)

	// blob outlives the due time by the grace window
	ttl := mr.TTL(keyScheduledData + "t1")
	assert.Greater(t, ttl, 24*time.Hour)
	assert.LessOrEqual(t, ttl, 30*time.Minute+24*time.Hour)
}

func TestReleaseDueRequeuesWithContext(t *testing.T) {
	t.Parallel()
	s, _, rdb, _ := newTestScheduler(t)
	ctx := context.Background()

	due := time.Now().Add(-time.Minute)
	sc := domain.ScheduledContext{RetryCount: 1, Question: "still valid?"}
	require.NoError(t, s.Schedule(ctx, "t1", "SPY 0DTE", due, sc))

	n, err := s.ReleaseDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := rdb.LRange(ctx, KeyPending, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(pending[0]), &task))
	assert.Equal(t, "t1", task.ThreadID)
	require.NotNil(t, task.ScheduledContext)
	assert.Equal(t, 1, task.ScheduledContext.RetryCount)
	assert.Equal(t, "still valid?", task.ScheduledContext.Question)

	// entry and blob are gone
	_, err = rdb.ZScore(ctx, KeyScheduled, "t1").Result()
	assert.ErrorIs(t, err, redis.Nil)
	_, err = rdb.Get(ctx, keyScheduledData+"t1").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestReleaseDueLeavesFutureEntries(t *testing.T) {
	t.Parallel()
	s, _, rdb, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", "SPY 0DTE", time.Now().Add(time.Hour), domain.ScheduledContext{}))

	n, err := s.ReleaseDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, _ := rdb.LLen(ctx, KeyPending).Result()
	assert.EqualValues(t, 0, pending)
	_, err = rdb.ZScore(ctx, KeyScheduled, "t1").Result()
	assert.NoError(t, err)
}

func TestReleaseDueDropsCompletedEntries(t *testing.T) {
	t.Parallel()
	s, _, rdb, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", "SPY 0DTE", time.Now().Add(-time.Minute), domain.ScheduledContext{}))
	require.NoError(t, rdb.SAdd(ctx, KeyCompleted, "t1").Err())

	n, err := s.ReleaseDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, _ := rdb.LLen(ctx, KeyPending).Result()
	assert.EqualValues(t, 0, pending)
	_, err = rdb.ZScore(ctx, KeyScheduled, "t1").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestReleaseDueAscendingOrder(t *testing.T) {
	t.Parallel()
	s, _, rdb, _ := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Schedule(ctx, "late", "", now.Add(-time.Minute), domain.ScheduledContext{}))
	require.NoError(t, s.Schedule(ctx, "early", "", now.Add(-time.Hour), domain.ScheduledContext{}))

	n, err := s.ReleaseDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// LPUSH + BRPOPLPUSH makes pending FIFO tail-first: the earliest-due
	// entry must come off the queue first.
	tail, err := rdb.RPop(ctx, KeyPending).Result()
	require.NoError(t, err)
	assert.Contains(t, tail, "early")
}

func TestScheduledListsAscendingWithContext(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Schedule(ctx, "late", "QQQ 0DTE", now.Add(time.Hour),
		domain.ScheduledContext{RetryCount: 2, Question: "gap filled?"}))
	require.NoError(t, s.Schedule(ctx, "early", "SPY 0DTE", now.Add(10*time.Minute),
		domain.ScheduledContext{RetryCount: 1}))

	entries, err := s.Scheduled(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "early", entries[0].ThreadID)
	assert.Equal(t, "SPY 0DTE", entries[0].ThreadName)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.WithinDuration(t, now.Add(10*time.Minute), entries[0].DueAt, time.Second)

	assert.Equal(t, "late", entries[1].ThreadID)
	assert.Equal(t, 2, entries[1].RetryCount)
	assert.Equal(t, "gap filled?", entries[1].Question)
}

func TestCancelRemovesEntryAndBlob(t *testing.T) {
	t.Parallel()
	s, _, rdb, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", "SPY 0DTE", time.Now().Add(time.Hour), domain.ScheduledContext{}))

	removed, err := s.Cancel(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = rdb.ZScore(ctx, KeyScheduled, "t1").Result()
	assert.ErrorIs(t, err, redis.Nil)
	_, err = rdb.Get(ctx, keyScheduledData+"t1").Result()
	assert.ErrorIs(t, err, redis.Nil)

	removed, err = s.Cancel(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, removed)
}
