package domain

import (
	"fmt"
	"strings"
)

// SkipCategory buckets skip decisions for the dashboard.
type SkipCategory string

const (
	SkipNoSignal       SkipCategory = "no_signal"
	SkipMarketClosed   SkipCategory = "market_closed"
	SkipBadRR          SkipCategory = "bad_rr"
	SkipLowConfidence  SkipCategory = "low_confidence"
	SkipTiming         SkipCategory = "timing"
	SkipPositionExists SkipCategory = "position_exists"
	SkipOther          SkipCategory = "other"
)

// DecisionKind discriminates the three terminal actions.
type DecisionKind string

const (
	DecisionSkip    DecisionKind = "skip"
	DecisionExecute DecisionKind = "execute"
	DecisionDelay   DecisionKind = "delay"
)

// Act maps a kind to the envelope act field.
func (k DecisionKind) Act() string {
	if k == DecisionDelay {
		return "schedule"
	}
	return string(k)
}

// Delay bounds in minutes. Out-of-range delays degrade to a format-error skip.
const (
	MinDelayMinutes = 5
	MaxDelayMinutes = 240
)

// SkipDecision carries the reason a signal was not acted on.
type SkipDecision struct {
	Reason   string       `json:"reason"`
	Category SkipCategory `json:"category"`
}

// ExecuteDecision is a fully specified bracket order.
type ExecuteDecision struct {
	Ticker     string  `json:"ticker" validate:"required"`
	Expiry     string  `json:"expiry" validate:"required,datetime=2006-01-02"`
	Strike     float64 `json:"strike" validate:"gt=0"`
	Direction  string  `json:"direction" validate:"required,oneof=CALL PUT"`
	Side       string  `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity   int     `json:"quantity" validate:"gte=1"`
	EntryPrice float64 `json:"entry_price" validate:"gt=0"`
	TakeProfit float64 `json:"take_profit" validate:"gt=0"`
	StopLoss   float64 `json:"stop_loss" validate:"gt=0"`
}

// DelayDecision defers the signal for later reanalysis.
type DelayDecision struct {
	DelayMinutes int       `json:"delay_minutes" validate:"required"`
	Reason       string    `json:"reason"`
	Question     string    `json:"question"`
	KeyLevels    []float64 `json:"key_levels,omitempty"`
}

// Decision is the LLM's terminal choice: exactly one variant is set,
// matching Kind. Parse the tool call into this sum type once, then
// pattern-match; untyped argument maps stop here.
type Decision struct {
	Kind    DecisionKind     `json:"kind"`
	Skip    *SkipDecision    `json:"skip,omitempty"`
	Execute *ExecuteDecision `json:"execute,omitempty"`
	Delay   *DelayDecision   `json:"delay,omitempty"`
}

func NewSkip(category SkipCategory, reason string) Decision {
	return Decision{Kind: DecisionSkip, Skip: &SkipDecision{Reason: reason, Category: category}}
}

func NewExecute(e ExecuteDecision) Decision {
	return Decision{Kind: DecisionExecute, Execute: &e}
}

func NewDelay(d DelayDecision) Decision {
	return Decision{Kind: DecisionDelay, Delay: &d}
}

// BracketValid reports whether the entry/TP/SL ordering is coherent for
// the chosen side. Long brackets need SL < entry < TP; shorts mirror.
func (e ExecuteDecision) BracketValid() bool {
	if e.Side == "SELL" {
		return e.TakeProfit < e.EntryPrice && e.EntryPrice < e.StopLoss
	}
	return e.StopLoss < e.EntryPrice && e.EntryPrice < e.TakeProfit
}

// ExitSide is the order side that closes the position.
func (e ExecuteDecision) ExitSide() string {
	if e.Side == "BUY" {
		return "SELL"
	}
	return "BUY"
}

// Right is the OCC right letter for the option direction.
func (e ExecuteDecision) Right() string {
	if strings.EqualFold(e.Direction, "PUT") {
		return "P"
	}
	return "C"
}

// Summary renders a one-line description for logs and scheduled context.
func (d Decision) Summary() string {
	switch d.Kind {
	case DecisionExecute:
		if d.Execute != nil {
			e := d.Execute
			return fmt.Sprintf("execute %s %s %s %.2f exp %s @ %.2f tp %.2f sl %.2f",
				e.Side, e.Ticker, e.Direction, e.Strike, e.Expiry, e.EntryPrice, e.TakeProfit, e.StopLoss)
		}
	case DecisionDelay:
		if d.Delay != nil {
			return fmt.Sprintf("delay %dm: %s", d.Delay.DelayMinutes, d.Delay.Reason)
		}
	case DecisionSkip:
		if d.Skip != nil {
			return fmt.Sprintf("skip (%s): %s", d.Skip.Category, d.Skip.Reason)
		}
	}
	return string(d.Kind)
}
