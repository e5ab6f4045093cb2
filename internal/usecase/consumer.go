package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// Consumer drives the queue: reclaim once at startup, then pop tasks
// and hand them to the processor under bounded concurrency. Queue
// errors back off exponentially instead of spinning.
type Consumer struct {
	Queue     domain.Queue
	Processor SignalProcessor

	PopTimeout  time.Duration
	Concurrency int

	BackoffInitialInterval time.Duration
	BackoffMaxInterval     time.Duration
}

// NewConsumer constructs a Consumer.
func NewConsumer(q domain.Queue, p SignalProcessor, popTimeout time.Duration, concurrency int, boInitial, boMax time.Duration) Consumer {
	return Consumer{
		Queue:                  q,
		Processor:              p,
		PopTimeout:             popTimeout,
		Concurrency:            concurrency,
		BackoffInitialInterval: boInitial,
		BackoffMaxInterval:     boMax,
	}
}

// Run blocks until ctx is cancelled. Reclaim must happen before the
// first pop so crashed-over tasks re-enter pending.
func (c Consumer) Run(ctx domain.Context) {
	if n, err := c.Queue.Reclaim(ctx); err != nil {
		slog.Error("reclaim failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Info("reclaimed in-flight tasks", slog.Int("count", n))
	}

	workers := c.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.BackoffInitialInterval
	bo.MaxInterval = c.BackoffMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			break
		}
		task, ok, err := c.Queue.Pop(ctx, c.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wait := bo.NextBackOff()
			slog.Error("queue pop failed",
				slog.Any("error", err),
				slog.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		if !ok {
			continue
		}
		sem <- struct{}{}
		go func(task domain.Task) {
			defer func() { <-sem }()
			// Shutdown must not cancel in-flight work mid-task; the
			// processor's own deadline bounds it, and the drain below
			// waits for it.
			c.Processor.Process(context.WithoutCancel(ctx), task)
		}(task)
	}

	// Drain the pool before returning so shutdown waits for in-flight
	// tasks up to their own deadlines.
	for i := 0; i < workers; i++ {
		sem <- struct{}{}
	}
	slog.Info("consumer stopped")
}

// ScheduleReleaser polls the scheduled set and re-queues due tasks.
type ScheduleReleaser struct {
	Scheduler domain.Scheduler
	Interval  time.Duration
	Now       func() time.Time
}

// NewScheduleReleaser constructs a ScheduleReleaser.
func NewScheduleReleaser(s domain.Scheduler, interval time.Duration) ScheduleReleaser {
	return ScheduleReleaser{Scheduler: s, Interval: interval, Now: time.Now}
}

// Run blocks until ctx is cancelled.
func (r ScheduleReleaser) Run(ctx domain.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n, err := r.Scheduler.ReleaseDue(ctx, r.Now())
		if err != nil {
			slog.Warn("scheduled release failed", slog.Any("error", err))
			continue
		}
		if n > 0 {
			slog.Info("released scheduled tasks", slog.Int("count", n))
		}
	}
}
