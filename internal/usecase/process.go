package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// maxReanalysisRetries caps how many times one thread may loop through
// schedule_reanalysis before it is forced to a terminal skip.
const maxReanalysisRetries = 2

// SignalProcessor is the per-task state machine: preconditions, then
// prefetch, prompt, one LLM call, dispatch, persistence. It is also the
// only layer that maps errors to the queue's complete/fail surfaces.
type SignalProcessor struct {
	Queue     domain.Queue
	Signals   domain.SignalRepository
	Trades    domain.TradeRepository
	Settings  domain.Settings
	AI        domain.AIClient
	Scheduler domain.Scheduler
	Market    domain.MarketData
	Broker    domain.Broker

	Prefetch  Prefetcher
	Assembler PromptAssembler
	Executor  TradeExecutor
	Checks    []Check

	TaskDeadline time.Duration
	Now          func() time.Time
}

// NewSignalProcessor wires the pipeline. checks defaults to the full
// chain when nil.
func NewSignalProcessor(
	q domain.Queue,
	signals domain.SignalRepository,
	trades domain.TradeRepository,
	settings domain.Settings,
	ai domain.AIClient,
	sched domain.Scheduler,
	market domain.MarketData,
	broker domain.Broker,
	prefetch Prefetcher,
	assembler PromptAssembler,
	executor TradeExecutor,
	taskDeadline time.Duration,
) SignalProcessor {
	return SignalProcessor{
		Queue:        q,
		Signals:      signals,
		Trades:       trades,
		Settings:     settings,
		AI:           ai,
		Scheduler:    sched,
		Market:       market,
		Broker:       broker,
		Prefetch:     prefetch,
		Assembler:    assembler,
		Executor:     executor,
		Checks:       PreconditionChain(),
		TaskDeadline: taskDeadline,
		Now:          time.Now,
	}
}

// Process runs one task to a terminal state: completed (with a
// persisted envelope), failed (with an error-kind record) or dropped as
// a duplicate. It never returns an error; every outcome is absorbed
// into the queue's bookkeeping.
func (p SignalProcessor) Process(ctx domain.Context, task domain.Task) {
	observability.StartTask()
	tctx, cancel := context.WithTimeout(ctx, p.TaskDeadline)
	defer cancel()

	if done, err := p.Queue.IsCompleted(tctx, task.ThreadID); err == nil && done {
		slog.Info("duplicate delivery, completing without work", slog.String("thread_id", task.ThreadID))
		_ = p.Queue.Complete(tctx, task)
		observability.CompleteTask("duplicate")
		return
	}

	act, err := p.run(tctx, task)
	if err != nil {
		kind := errorKind(tctx, err)
		slog.Error("task failed",
			slog.String("thread_id", task.ThreadID),
			slog.String("kind", kind),
			slog.Any("error", err))
		observability.FailTask(kind)
		// The task deadline may already be spent; give the failure
		// write its own short budget.
		fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer fcancel()
		_ = p.Queue.Fail(fctx, task, kind, err.Error())
		return
	}
	observability.CompleteTask(act)
}

// run executes the pipeline and returns the terminal act. Errors
// propagate up from every stage; Process maps them.
func (p SignalProcessor) run(ctx domain.Context, task domain.Task) (string, error) {
	cfg, err := p.Settings.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("op=usecase.run: settings snapshot: %w", err)
	}
	sig, err := p.Signals.Get(ctx, task.ThreadID)
	if err != nil {
		return "", fmt.Errorf("op=usecase.run: load signal %s: %w", task.ThreadID, err)
	}

	in := CheckInput{
		Signal: sig,
		Ticker: sig.Parsed.Ticker,
		Config: cfg,
		Market: p.Market,
		Broker: p.Broker,
		Trades: p.Trades,
	}
	decision, checkName, decided := RunPreconditions(ctx, p.Checks, in)

	var meta domain.AIMeta
	if !decided {
		bundle := p.Prefetch.Gather(ctx, sig)
		system, user, rerr := p.Assembler.Render(ctx, bundle, cfg, task.ScheduledContext)
		if rerr != nil {
			slog.Error("prompt rendering failed", slog.String("thread_id", task.ThreadID), slog.Any("error", rerr))
			decision = domain.NewSkip(domain.SkipOther, "template_error: "+rerr.Error())
		} else {
			decision, meta, err = p.AI.Decide(ctx, cfg.CurrentLLMModel, system, user)
			if err != nil {
				return "", fmt.Errorf("op=usecase.run: decide %s: %w", task.ThreadID, err)
			}
		}
	} else {
		slog.Info("short-circuited before LLM",
			slog.String("thread_id", task.ThreadID),
			slog.String("check", checkName))
	}

	env, err := p.dispatch(ctx, task, sig, cfg, decision, meta)
	if err != nil {
		return "", err
	}
	if err := p.Signals.SaveResult(ctx, task.ThreadID, env); err != nil {
		return "", fmt.Errorf("op=usecase.run: save result %s: %w: %v", task.ThreadID, domain.ErrStoreWrite, err)
	}
	if err := p.Queue.Complete(ctx, task); err != nil {
		slog.Warn("complete mark failed, task may redeliver",
			slog.String("thread_id", task.ThreadID), slog.Any("error", err))
	}
	slog.Info("task completed",
		slog.String("thread_id", task.ThreadID),
		slog.String("act", env.Act),
		slog.String("decision", decision.Summary()))
	return env.Act, nil
}

// dispatch applies the side effects of the decision and builds the
// envelope that SaveResult persists.
func (p SignalProcessor) dispatch(ctx domain.Context, task domain.Task, sig domain.Signal, cfg domain.RuntimeConfig, decision domain.Decision, meta domain.AIMeta) (domain.DecisionEnvelope, error) {
	switch decision.Kind {
	case domain.DecisionExecute:
		if !decision.Execute.BracketValid() {
			e := decision.Execute
			decision = domain.NewSkip(domain.SkipOther, fmt.Sprintf(
				"invalid_bracket: %s entry %.2f tp %.2f sl %.2f", e.Side, e.EntryPrice, e.TakeProfit, e.StopLoss))
		}
	case domain.DecisionDelay:
		retries := 0
		if task.ScheduledContext != nil {
			retries = task.ScheduledContext.RetryCount
		}
		if retries >= maxReanalysisRetries {
			decision = domain.NewSkip(domain.SkipTiming,
				fmt.Sprintf("reanalysis retry limit reached after %d attempts", retries))
		}
	}

	env := domain.DecisionEnvelope{
		Act:       decision.Kind.Act(),
		Reasoning: meta.Reasoning,
		Decision:  decision,
		ModelUsed: meta.Model,
		Timestamp: p.Now().UTC(),
		TraceID:   meta.TraceID,
	}

	switch decision.Kind {
	case domain.DecisionExecute:
		tr, err := p.Executor.Execute(ctx, sig, *decision.Execute, cfg, env.ModelUsed)
		if err != nil {
			return domain.DecisionEnvelope{}, err
		}
		env.TradeResult = &tr
	case domain.DecisionDelay:
		d := decision.Delay
		retries := 0
		if task.ScheduledContext != nil {
			retries = task.ScheduledContext.RetryCount
		}
		dueAt := p.Now().Add(time.Duration(d.DelayMinutes) * time.Minute).UTC()
		sc := domain.ScheduledContext{
			RetryCount:      retries + 1,
			PreviousSummary: decision.Summary(),
			Reason:          d.Reason,
			Question:        d.Question,
			KeyLevels:       d.KeyLevels,
			ScheduledAt:     p.Now().UTC(),
		}
		threadName := task.ThreadName
		if threadName == "" {
			threadName = sig.ThreadName
		}
		if err := p.Scheduler.Schedule(ctx, task.ThreadID, threadName, dueAt, sc); err != nil {
			return domain.DecisionEnvelope{}, fmt.Errorf("op=usecase.dispatch: schedule %s: %w", task.ThreadID, err)
		}
		env.ScheduledReanalysis = &domain.ScheduledReanalysis{
			DueAt:        dueAt,
			DelayMinutes: d.DelayMinutes,
			Question:     d.Question,
		}
		observability.TasksScheduledTotal.Inc()
	}
	return env, nil
}

// errorKind folds an error into the failed-record taxonomy.
func errorKind(ctx domain.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(err, context.Canceled)):
		return "deadline_exceeded"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "llm_timeout"
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrUpstreamStatus):
		return "llm_transport"
	case errors.Is(err, domain.ErrBrokerUnreachable):
		return "broker_unreachable"
	case errors.Is(err, domain.ErrBrokerRejected):
		return "broker_rejected"
	case errors.Is(err, domain.ErrStoreWrite):
		return "store_write_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
