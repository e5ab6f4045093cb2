// Package usecase contains the signal-processing pipeline: precondition
// gating, prefetch, prompt assembly, the single-shot decision runner,
// trade execution and the consumer loop that drives them.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// Outcome is the result of one precondition check: pass, or a terminal
// skip that short-circuits the rest of the chain without an LLM call.
type Outcome struct {
	Pass     bool
	Reason   string
	Category domain.SkipCategory
}

func pass() Outcome { return Outcome{Pass: true} }

func failCheck(cat domain.SkipCategory, format string, args ...any) Outcome {
	return Outcome{Category: cat, Reason: fmt.Sprintf(format, args...)}
}

// CheckInput is the read-only context handed to every check.
type CheckInput struct {
	Signal domain.Signal
	Ticker string
	Config domain.RuntimeConfig
	Market domain.MarketData
	Broker domain.Broker
	Trades domain.TradeRepository
}

// Check is one entry in the ordered chain. LiveOnly checks are skipped
// entirely when execute_orders is false, so dry-run needs no broker
// connectivity.
type Check struct {
	Name     string
	LiveOnly bool
	Run      func(ctx domain.Context, in CheckInput) Outcome
}

// PreconditionChain returns the mandatory checks in evaluation order.
// The order is load-bearing: the first failing check becomes the final
// decision, so cheap config checks come before anything that touches
// the network.
func PreconditionChain() []Check {
	return []Check{
		{Name: "emergency_stop", Run: checkEmergencyStop},
		{Name: "ticker_present", Run: checkTickerPresent},
		{Name: "whitelist", Run: checkWhitelist},
		{Name: "blacklist", Run: checkBlacklist},
		{Name: "min_confidence", Run: checkMinConfidence},
		{Name: "vix_ceiling", LiveOnly: true, Run: checkVIXCeiling},
		{Name: "max_positions", LiveOnly: true, Run: checkMaxPositions},
		{Name: "duplicate_position", LiveOnly: true, Run: checkDuplicatePosition},
	}
}

// RunPreconditions walks the chain in order and returns the first
// failing outcome as a Skip decision, plus the name of the check that
// produced it. decided=false means every check passed and the task
// proceeds to the LLM.
func RunPreconditions(ctx domain.Context, checks []Check, in CheckInput) (domain.Decision, string, bool) {
	for _, c := range checks {
		if c.LiveOnly && !in.Config.ExecuteOrders {
			continue
		}
		out := c.Run(ctx, in)
		if out.Pass {
			continue
		}
		slog.Info("precondition failed",
			slog.String("check", c.Name),
			slog.String("thread_id", in.Signal.ThreadID),
			slog.String("reason", out.Reason))
		return domain.NewSkip(out.Category, out.Reason), c.Name, true
	}
	return domain.Decision{}, "", false
}

func checkEmergencyStop(_ domain.Context, in CheckInput) Outcome {
	if in.Config.EmergencyStop {
		return failCheck(domain.SkipOther, "emergency stop is active")
	}
	return pass()
}

func checkTickerPresent(_ domain.Context, in CheckInput) Outcome {
	if in.Ticker == "" && strings.TrimSpace(in.Signal.RawContent()) == "" {
		return failCheck(domain.SkipNoSignal, "no parsed ticker and no message content to analyze")
	}
	return pass()
}

// checkWhitelist lets a signal without a parsed ticker through: the
// model still sees the raw content and can name the ticker itself.
func checkWhitelist(_ domain.Context, in CheckInput) Outcome {
	if in.Ticker == "" {
		return pass()
	}
	if !in.Config.Whitelisted(in.Ticker) {
		return failCheck(domain.SkipOther, "ticker %s not in whitelist", in.Ticker)
	}
	return pass()
}

func checkBlacklist(_ domain.Context, in CheckInput) Outcome {
	if in.Ticker != "" && in.Config.Blacklisted(in.Ticker) {
		return failCheck(domain.SkipOther, "ticker %s is blacklisted", in.Ticker)
	}
	return pass()
}

func checkMinConfidence(_ domain.Context, in CheckInput) Outcome {
	c := in.Signal.Parsed.Confidence
	if c != nil && *c < in.Config.MinAIConfidenceScore {
		return failCheck(domain.SkipLowConfidence,
			"parsed confidence %.2f below floor %.2f", *c, in.Config.MinAIConfidenceScore)
	}
	return pass()
}

// checkVIXCeiling never blocks on a missing quote; the prompt surfaces
// the gap as uncertainty instead.
func checkVIXCeiling(ctx domain.Context, in CheckInput) Outcome {
	v, err := in.Market.VIX(ctx)
	if err != nil {
		slog.Warn("vix unavailable for precondition", slog.Any("error", err))
		return pass()
	}
	if v.Level >= in.Config.MaxVIXLevel {
		return failCheck(domain.SkipOther,
			"VIX %.1f (%s) at or above ceiling %.1f", v.Level, v.Band, in.Config.MaxVIXLevel)
	}
	return pass()
}

// checkMaxPositions fails closed: a ceiling that cannot be verified is
// treated as hit, since this check only runs when orders go live.
func checkMaxPositions(ctx domain.Context, in CheckInput) Outcome {
	positions, err := in.Broker.Positions(ctx)
	if err != nil {
		return failCheck(domain.SkipOther, "cannot verify open positions: %v", err)
	}
	if len(positions) >= in.Config.MaxConcurrentPositions {
		return failCheck(domain.SkipOther,
			"%d open positions at or above limit %d", len(positions), in.Config.MaxConcurrentPositions)
	}
	return pass()
}

// checkDuplicatePosition consults both the trade store and the live
// broker positions; either one holding the ticker blocks a second entry.
func checkDuplicatePosition(ctx domain.Context, in CheckInput) Outcome {
	if in.Ticker == "" {
		return pass()
	}
	exists, err := in.Trades.OpenExistsForTicker(ctx, in.Ticker)
	if err != nil {
		return failCheck(domain.SkipOther, "cannot verify open trades: %v", err)
	}
	if exists {
		return failCheck(domain.SkipPositionExists, "open trade for %s already exists", in.Ticker)
	}
	positions, err := in.Broker.Positions(ctx)
	if err != nil {
		return failCheck(domain.SkipOther, "cannot verify open positions: %v", err)
	}
	for _, p := range positions {
		if strings.EqualFold(p.Ticker, in.Ticker) {
			return failCheck(domain.SkipPositionExists, "broker reports an open %s position", in.Ticker)
		}
	}
	return pass()
}
