package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrParse             = errors.New("parse error")
	ErrTemplate          = errors.New("template error")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamStatus    = errors.New("upstream error status")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrContractNotFound  = errors.New("contract not found")
	ErrBrokerRejected    = errors.New("broker rejected")
	ErrBrokerUnreachable = errors.New("broker unreachable")
	ErrStoreWrite        = errors.New("store write error")
	ErrInternal          = errors.New("internal error")
)

//go:generate mockery --name=SignalRepository --with-expecter --filename=signal_repository_mock.go
//go:generate mockery --name=TradeRepository --with-expecter --filename=trade_repository_mock.go
//go:generate mockery --name=PromptRepository --with-expecter --filename=prompt_repository_mock.go
//go:generate mockery --name=Queue --with-expecter --filename=queue_mock.go
//go:generate mockery --name=AIClient --with-expecter --filename=aiclient_mock.go

// Message is one forum post inside a signal thread.
type Message struct {
	Content   string
	Timestamp time.Time
	// Meta carries upstream-AI annotations verbatim; the core never
	// interprets them beyond echoing into the prompt.
	Meta map[string]any
}

// ParsedSignal holds the best-effort structured fields extracted
// upstream. Nil/empty means the field was not derivable; downstream
// surfaces that as "NOT SPECIFIED" rather than guessing.
type ParsedSignal struct {
	Ticker      string
	Direction   string // CALL, PUT, BUY or SELL
	Strike      *float64
	Expiry      string // YYYY-MM-DD
	EntryPrice  *float64
	TargetPrice *float64
	StopLoss    *float64
	Confidence  *float64 // [0,1]
}

// Signal is one queued work unit, keyed by thread id.
type Signal struct {
	ThreadID   string
	ThreadName string
	Messages   []Message
	Parsed     ParsedSignal
	CreatedAt  time.Time

	AIProcessed   bool
	AIProcessedAt *time.Time
	AIResult      *DecisionEnvelope
}

// RawContent concatenates message bodies in arrival order.
func (s Signal) RawContent() string {
	out := ""
	for i, m := range s.Messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// ScheduledContext travels with a task that re-enters the queue after
// a Delay decision. RetryCount is monotonic across re-entries.
type ScheduledContext struct {
	RetryCount      int       `json:"retry_count"`
	PreviousSummary string    `json:"previous_summary,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Question        string    `json:"question,omitempty"`
	KeyLevels       []float64 `json:"key_levels,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at,omitempty"`
}

// Task is a queue entry pointing at a Signal.
type Task struct {
	ThreadID         string            `json:"thread_id"`
	ThreadName       string            `json:"thread_name,omitempty"`
	ScheduledContext *ScheduledContext `json:"scheduled_context,omitempty"`
}

// TradeStatus enumerates the trade lifecycle.
type TradeStatus string

const (
	TradeOpen          TradeStatus = "open"
	TradeClosedTP      TradeStatus = "closed_tp"
	TradeClosedSL      TradeStatus = "closed_sl"
	TradeClosedManual  TradeStatus = "closed_manual"
	TradeClosedExpired TradeStatus = "closed_expired"
)

// Trade is materialized only when an Execute decision succeeds.
// ID is core-assigned; OrderID is the broker parent order id
// (or "sim-<uuid>" in dry-run).
type Trade struct {
	ID         string      `json:"id"`
	ThreadID   string      `json:"thread_id"`
	OrderID    string      `json:"order_id"`
	OCCSymbol  string      `json:"occ_symbol"`
	ConID      int64       `json:"conid,omitempty"`
	Ticker     string      `json:"ticker"`
	Direction  string      `json:"direction"` // CALL or PUT
	Side       string      `json:"side"`      // BUY or SELL
	Quantity   int         `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	TakeProfit float64     `json:"take_profit"`
	StopLoss   float64     `json:"stop_loss"`
	Model      string      `json:"model"`
	Confidence float64     `json:"confidence"`
	Status     TradeStatus `json:"status"`
	Simulated  bool        `json:"simulated"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   *time.Time  `json:"exit_time,omitempty"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	PnL        *float64    `json:"pnl,omitempty"`
	ExitReason string      `json:"exit_reason,omitempty"`
}

// TradeResult is the execution outcome attached to the decision
// envelope. Success=false with a non-empty Error means the broker
// round-trip completed but the order was not accepted.
type TradeResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id,omitempty"`
	TradeID   string `json:"trade_id,omitempty"`
	Simulated bool   `json:"simulated"`
	Error     string `json:"error,omitempty"`
}

// ScheduledReanalysis marks a signal that will re-enter the pipeline.
type ScheduledReanalysis struct {
	DueAt        time.Time `json:"due_at"`
	DelayMinutes int       `json:"delay_minutes"`
	Question     string    `json:"question,omitempty"`
}

// DecisionEnvelope is the terminal record written onto the signal.
type DecisionEnvelope struct {
	Act                  string               `json:"act"` // execute | skip | schedule
	Reasoning            string               `json:"reasoning,omitempty"`
	Decision             Decision             `json:"decision"`
	TradeResult          *TradeResult         `json:"trade_result,omitempty"`
	ScheduledReanalysis  *ScheduledReanalysis `json:"scheduled_reanalysis,omitempty"`
	ModelUsed            string               `json:"model_used,omitempty"`
	Timestamp            time.Time            `json:"timestamp"`
	TraceID              string               `json:"trace_id,omitempty"`
}

// FailedRecord is the operational surface for tasks that could not be
// processed; keyed by thread id in the queue's failed hash.
type FailedRecord struct {
	ErrorKind string    `json:"error_kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PromptKind selects one of the two active prompt-store records.
type PromptKind string

const (
	PromptSystem       PromptKind = "system_prompt"
	PromptUserTemplate PromptKind = "user_template"
)

// Prompt is one stored prompt-store row.
type Prompt struct {
	ID        string
	Kind      PromptKind
	Content   string
	IsActive  bool
	UpdatedAt time.Time
}

// Repositories (ports)

type SignalRepository interface {
	Get(ctx Context, threadID string) (Signal, error)
	// SaveResult upserts the decision envelope by thread id; replays
	// with the same envelope leave the record unchanged.
	SaveResult(ctx Context, threadID string, env DecisionEnvelope) error
}

type TradeRepository interface {
	Insert(ctx Context, t Trade) error
	GetByOrderID(ctx Context, orderID string) (Trade, error)
	ListOpen(ctx Context) ([]Trade, error)
	ListRecent(ctx Context, limit int) ([]Trade, error)
	OpenExistsForTicker(ctx Context, ticker string) (bool, error)
	Close(ctx Context, id string, status TradeStatus, exitPrice float64, exitTime time.Time, pnl float64, reason string) error
}

type PromptRepository interface {
	GetActive(ctx Context, kind PromptKind) (Prompt, error)
	Upsert(ctx Context, p Prompt) error
}

// Queue (port): reliable work queue with atomic pending→processing
// moves, a completed set for dedup, a failed hash and a dead letter.

type Queue interface {
	Pop(ctx Context, timeout time.Duration) (Task, bool, error)
	Complete(ctx Context, task Task) error
	Fail(ctx Context, task Task, kind, msg string) error
	DeadLetter(ctx Context, raw string, cause string) error
	IsCompleted(ctx Context, threadID string) (bool, error)
	Reclaim(ctx Context) (int, error)
	Push(ctx Context, task Task) error
}

// Scheduler (port): timestamp-keyed deferred re-queue.

// ScheduledEntry is one pending reanalysis as shown on the ops surface.
type ScheduledEntry struct {
	ThreadID   string    `json:"thread_id"`
	ThreadName string    `json:"thread_name,omitempty"`
	DueAt      time.Time `json:"due_at"`
	RetryCount int       `json:"retry_count"`
	Question   string    `json:"question,omitempty"`
}

type Scheduler interface {
	Schedule(ctx Context, threadID, threadName string, dueAt time.Time, sc ScheduledContext) error
	// ReleaseDue re-pushes every due entry onto pending and returns
	// how many were released.
	ReleaseDue(ctx Context, now time.Time) (int, error)
	// Scheduled lists entries in ascending due order.
	Scheduled(ctx Context) ([]ScheduledEntry, error)
	// Cancel removes a scheduled entry. It reports whether one existed.
	Cancel(ctx Context, threadID string) (bool, error)
}

// Settings (port): the dashboard-owned runtime config. Snapshot is
// re-read on every task so edits take effect without restart.

type Settings interface {
	Snapshot(ctx Context) (RuntimeConfig, error)
	Set(ctx Context, key string, value string) error
}

// AIClient (port): single-shot chat completion with required tool choice.

type AIClient interface {
	Decide(ctx Context, model, systemPrompt, userPrompt string) (Decision, AIMeta, error)
}

// AIMeta carries provenance for the envelope.
type AIMeta struct {
	Model            string
	Reasoning        string
	TraceID          string
	PromptTokens     int
	CompletionTokens int
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through.
type Context = context.Context
