// Package redisq implements the reliable work queue and the delayed
// reanalysis scheduler on Redis primitives.
//
// Queue layout:
//   - pending and processing are lists; BRPOPLPUSH moves one task
//     atomically so a crash never loses an in-flight entry.
//   - completed is a set of thread ids, the dedup authority.
//   - failed is a hash thread_id -> {error_kind, message, timestamp}.
//   - dead_letter is a capped list of unparseable payloads.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

const (
	KeyPending    = "queue:threads:pending"
	KeyProcessing = "queue:threads:processing"
	KeyCompleted  = "queue:threads:completed"
	KeyFailed     = "queue:threads:failed"
	KeyDeadLetter = "queue:threads:dead_letter"
)

const (
	// Dead-letter payloads are truncated and the list is capped so a
	// poison-message flood cannot grow Redis unbounded.
	deadLetterMaxPayload = 1000
	deadLetterMaxItems   = 100

	// Completed-set cleanup thresholds. The set has no per-member age,
	// so over the cap we evict a random slice.
	completedCap       = 10000
	completedEvictSize = 1000
)

// Queue is the Redis-backed reliable work queue.
type Queue struct {
	rdb redis.UniversalClient

	// inflight maps thread id to the exact raw payload sitting in the
	// processing list; LREM needs a byte-exact match.
	mu       sync.Mutex
	inflight map[string]string
}

var _ domain.Queue = (*Queue)(nil)

// NewQueue creates a queue over an established Redis client.
func NewQueue(rdb redis.UniversalClient) *Queue {
	return &Queue{rdb: rdb, inflight: make(map[string]string)}
}

type deadLetterEntry struct {
	RawData   string `json:"raw_data"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Pop atomically moves one task from pending to processing and parses
// it. The bool result is false when no task is available (timeout) or
// when the popped entry was dropped (dedup, dead letter); callers loop.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (domain.Task, bool, error) {
	tr := otel.Tracer("queue.redisq")
	ctx, span := tr.Start(ctx, "queue.pop")
	defer span.End()

	raw, err := q.rdb.BRPopLPush(ctx, KeyPending, KeyProcessing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("op=redisq.Pop: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		q.rdb.LRem(ctx, KeyProcessing, 1, raw)
		_ = q.DeadLetter(ctx, raw, fmt.Sprintf("JSON decode error: %v", err))
		return domain.Task{}, false, nil
	}
	task.ThreadID = strings.TrimSpace(task.ThreadID)
	if task.ThreadID == "" {
		q.rdb.LRem(ctx, KeyProcessing, 1, raw)
		_ = q.DeadLetter(ctx, raw, "missing or empty thread_id")
		return domain.Task{}, false, nil
	}

	// Dedup against completed.
	done, err := q.rdb.SIsMember(ctx, KeyCompleted, task.ThreadID).Result()
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("op=redisq.Pop: %w", err)
	}
	if done {
		slog.Info("skipping already completed task", slog.String("thread_id", task.ThreadID))
		q.rdb.LRem(ctx, KeyProcessing, 1, raw)
		return domain.Task{}, false, nil
	}

	// Dedup against another copy already in processing. We just added
	// one, so more than one occurrence means a duplicate delivery.
	items, err := q.rdb.LRange(ctx, KeyProcessing, 0, -1).Result()
	if err == nil {
		count := 0
		for _, item := range items {
			if extractThreadID(item) == task.ThreadID {
				count++
			}
		}
		if count > 1 {
			slog.Warn("duplicate task in processing", slog.String("thread_id", task.ThreadID))
			q.rdb.LRem(ctx, KeyProcessing, 1, raw)
			return domain.Task{}, false, nil
		}
	}

	q.mu.Lock()
	q.inflight[task.ThreadID] = raw
	q.mu.Unlock()
	return task, true, nil
}

// Complete removes the task from processing and records its thread id
// in the completed set.
func (q *Queue) Complete(ctx context.Context, task domain.Task) error {
	raw := q.takeRaw(task.ThreadID)
	if raw != "" {
		if removed, err := q.rdb.LRem(ctx, KeyProcessing, 1, raw).Result(); err == nil && removed == 0 {
			slog.Warn("task not found in processing list", slog.String("thread_id", task.ThreadID))
		}
	}
	if err := q.rdb.SAdd(ctx, KeyCompleted, task.ThreadID).Err(); err != nil {
		return fmt.Errorf("op=redisq.Complete: %w", err)
	}
	return nil
}

// Fail removes the task from processing and writes a failed record.
func (q *Queue) Fail(ctx context.Context, task domain.Task, kind, msg string) error {
	raw := q.takeRaw(task.ThreadID)
	if raw != "" {
		q.rdb.LRem(ctx, KeyProcessing, 1, raw)
	}
	rec, err := json.Marshal(domain.FailedRecord{
		ErrorKind: kind,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("op=redisq.Fail: %w", err)
	}
	if err := q.rdb.HSet(ctx, KeyFailed, task.ThreadID, string(rec)).Err(); err != nil {
		return fmt.Errorf("op=redisq.Fail: %w", err)
	}
	return nil
}

// DeadLetter records an unparseable payload, truncated and capped.
func (q *Queue) DeadLetter(ctx context.Context, raw string, cause string) error {
	if len(raw) > deadLetterMaxPayload {
		raw = raw[:deadLetterMaxPayload]
	}
	entry, err := json.Marshal(deadLetterEntry{
		RawData:   raw,
		Reason:    cause,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("op=redisq.DeadLetter: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, KeyDeadLetter, string(entry))
	pipe.LTrim(ctx, KeyDeadLetter, 0, deadLetterMaxItems-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=redisq.DeadLetter: %w", err)
	}
	slog.Warn("moved payload to dead letter", slog.String("reason", cause))
	return nil
}

// IsCompleted reports whether thread id is in the completed set.
func (q *Queue) IsCompleted(ctx context.Context, threadID string) (bool, error) {
	ok, err := q.rdb.SIsMember(ctx, KeyCompleted, threadID).Result()
	if err != nil {
		return false, fmt.Errorf("op=redisq.IsCompleted: %w", err)
	}
	return ok, nil
}

// Reclaim drains stale processing entries left by a previous crash
// back into pending, oldest first, skipping already-completed ids.
// It must run before the consumer starts popping.
func (q *Queue) Reclaim(ctx context.Context) (int, error) {
	items, err := q.rdb.LRange(ctx, KeyProcessing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("op=redisq.Reclaim: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	slog.Warn("stale items found in processing", slog.Int("count", len(items)))

	requeued := 0
	for i := len(items) - 1; i >= 0; i-- {
		raw := items[i]
		threadID := extractThreadID(raw)
		if threadID != "" {
			done, err := q.rdb.SIsMember(ctx, KeyCompleted, threadID).Result()
			if err != nil {
				return requeued, fmt.Errorf("op=redisq.Reclaim: %w", err)
			}
			if done {
				q.rdb.LRem(ctx, KeyProcessing, 1, raw)
				continue
			}
		}
		q.rdb.LRem(ctx, KeyProcessing, 1, raw)
		if err := q.rdb.RPush(ctx, KeyPending, raw).Err(); err != nil {
			return requeued, fmt.Errorf("op=redisq.Reclaim: %w", err)
		}
		requeued++
	}
	return requeued, nil
}

// Push enqueues a task onto pending. Used by the scheduler release
// path and operational re-enqueues.
func (q *Queue) Push(ctx context.Context, task domain.Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("op=redisq.Push: %w", err)
	}
	if err := q.rdb.LPush(ctx, KeyPending, string(b)).Err(); err != nil {
		return fmt.Errorf("op=redisq.Push: %w", err)
	}
	return nil
}

// CleanupCompleted bounds the completed set. The set carries no ages,
// so over the cap a random slice is evicted.
func (q *Queue) CleanupCompleted(ctx context.Context) error {
	n, err := q.rdb.SCard(ctx, KeyCompleted).Result()
	if err != nil {
		return fmt.Errorf("op=redisq.CleanupCompleted: %w", err)
	}
	if n <= completedCap {
		return nil
	}
	members, err := q.rdb.SRandMemberN(ctx, KeyCompleted, completedEvictSize).Result()
	if err != nil || len(members) == 0 {
		return err
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := q.rdb.SRem(ctx, KeyCompleted, args...).Err(); err != nil {
		return fmt.Errorf("op=redisq.CleanupCompleted: %w", err)
	}
	slog.Info("evicted old completed entries", slog.Int("count", len(members)))
	return nil
}

// Stats reports queue depths for the ops surface.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, KeyPending)
	processing := pipe.LLen(ctx, KeyProcessing)
	scheduled := pipe.ZCard(ctx, KeyScheduled)
	completed := pipe.SCard(ctx, KeyCompleted)
	failed := pipe.HLen(ctx, KeyFailed)
	dead := pipe.LLen(ctx, KeyDeadLetter)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("op=redisq.Stats: %w", err)
	}
	return map[string]int64{
		"pending":     pending.Val(),
		"processing":  processing.Val(),
		"scheduled":   scheduled.Val(),
		"completed":   completed.Val(),
		"failed":      failed.Val(),
		"dead_letter": dead.Val(),
	}, nil
}

func (q *Queue) takeRaw(threadID string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	raw := q.inflight[threadID]
	delete(q.inflight, threadID)
	return raw
}

func extractThreadID(raw string) string {
	var t struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return ""
	}
	return strings.TrimSpace(t.ThreadID)
}
