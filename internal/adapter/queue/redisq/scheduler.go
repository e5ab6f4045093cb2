package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

const (
	KeyScheduled     = "queue:scheduled"
	keyScheduledData = "scheduled:data:"

	// Context blobs outlive their due time by a day so an operator can
	// inspect what a released task carried.
	scheduledDataGrace = 24 * time.Hour
)

// Scheduler holds delayed-reanalysis entries in a score-ordered set and
// releases due ones back onto the pending queue.
type Scheduler struct {
	rdb   redis.UniversalClient
	queue *Queue
}

var _ domain.Scheduler = (*Scheduler)(nil)

func NewScheduler(rdb redis.UniversalClient, queue *Queue) *Scheduler {
	return &Scheduler{rdb: rdb, queue: queue}
}

type scheduledData struct {
	ThreadName string `json:"thread_name,omitempty"`
	domain.ScheduledContext
}

// Schedule writes the context blob and adds the thread id with score
// dueAt to the scheduled set.
func (s *Scheduler) Schedule(ctx context.Context, threadID, threadName string, dueAt time.Time, sc domain.ScheduledContext) error {
	blob, err := json.Marshal(scheduledData{ThreadName: threadName, ScheduledContext: sc})
	if err != nil {
		return fmt.Errorf("op=redisq.Schedule: %w", err)
	}
	ttl := time.Until(dueAt) + scheduledDataGrace
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyScheduledData+threadID, string(blob), ttl)
	pipe.ZAdd(ctx, KeyScheduled, redis.Z{Score: float64(dueAt.Unix()), Member: threadID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=redisq.Schedule: %w", err)
	}
	slog.Info("scheduled reanalysis",
		slog.String("thread_id", threadID),
		slog.Time("due_at", dueAt),
		slog.Int("retry_count", sc.RetryCount))
	return nil
}

// ReleaseDue re-pushes every entry with score <= now onto pending,
// carrying the saved scheduled context, in ascending due order. Each
// released entry is removed from the set and its blob deleted.
func (s *Scheduler) ReleaseDue(ctx context.Context, now time.Time) (int, error) {
	dueIDs, err := s.rdb.ZRangeByScore(ctx, KeyScheduled, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("op=redisq.ReleaseDue: %w", err)
	}
	released := 0
	for _, threadID := range dueIDs {
		dataKey := keyScheduledData + threadID

		done, err := s.queue.IsCompleted(ctx, threadID)
		if err != nil {
			return released, err
		}
		if done {
			s.rdb.ZRem(ctx, KeyScheduled, threadID)
			s.rdb.Del(ctx, dataKey)
			continue
		}

		var sc scheduledData
		if raw, err := s.rdb.Get(ctx, dataKey).Result(); err == nil {
			if err := json.Unmarshal([]byte(raw), &sc); err != nil {
				slog.Warn("corrupt scheduled context", slog.String("thread_id", threadID))
			}
		}
		task := domain.Task{
			ThreadID:         threadID,
			ThreadName:       sc.ThreadName,
			ScheduledContext: &sc.ScheduledContext,
		}
		if err := s.queue.Push(ctx, task); err != nil {
			return released, err
		}
		s.rdb.ZRem(ctx, KeyScheduled, threadID)
		s.rdb.Del(ctx, dataKey)
		released++
		slog.Info("released scheduled task", slog.String("thread_id", threadID))
	}
	return released, nil
}

// Scheduled lists pending entries in ascending due order, joining each
// thread id with its saved context blob.
func (s *Scheduler) Scheduled(ctx context.Context) ([]domain.ScheduledEntry, error) {
	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, KeyScheduled, &redis.ZRangeBy{
		Min: "0",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisq.Scheduled: %w", err)
	}
	entries := make([]domain.ScheduledEntry, 0, len(zs))
	for _, z := range zs {
		threadID, _ := z.Member.(string)
		entry := domain.ScheduledEntry{
			ThreadID: threadID,
			DueAt:    time.Unix(int64(z.Score), 0).UTC(),
		}
		var sc scheduledData
		if raw, err := s.rdb.Get(ctx, keyScheduledData+threadID).Result(); err == nil {
			if err := json.Unmarshal([]byte(raw), &sc); err == nil {
				entry.ThreadName = sc.ThreadName
				entry.RetryCount = sc.RetryCount
				entry.Question = sc.Question
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Cancel removes a scheduled entry and its context blob.
func (s *Scheduler) Cancel(ctx context.Context, threadID string) (bool, error) {
	removed, err := s.rdb.ZRem(ctx, KeyScheduled, threadID).Result()
	if err != nil {
		return false, fmt.Errorf("op=redisq.Cancel: %w", err)
	}
	s.rdb.Del(ctx, keyScheduledData+threadID)
	if removed > 0 {
		slog.Info("cancelled scheduled task", slog.String("thread_id", threadID))
	}
	return removed > 0, nil
}
