package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"text/template"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
	"github.com/fairyhunter13/ai-signal-executor/pkg/textx"
)

// chainStrikesPerSide bounds how many rows of each side the prompt
// carries; a full chain would dwarf the rest of the context.
const chainStrikesPerSide = 8

// PromptAssembler renders the system and user prompts from the active
// prompt-store records, falling back to the embedded defaults. The
// template sees a view struct that exposes nil for unavailable
// sub-reads, so templates branch instead of erroring.
type PromptAssembler struct {
	Prompts domain.PromptRepository
}

// NewPromptAssembler constructs a PromptAssembler.
func NewPromptAssembler(p domain.PromptRepository) PromptAssembler {
	return PromptAssembler{Prompts: p}
}

var promptFuncs = template.FuncMap{
	"fptr": func(p *float64) string {
		if p == nil {
			return "NOT SPECIFIED"
		}
		return fmt.Sprintf("%.2f", *p)
	},
	"sdef": func(s string) string {
		if s == "" {
			return "NOT SPECIFIED"
		}
		return s
	},
	"ftime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05 MST")
	},
	"ftimep": func(t *time.Time) string {
		if t == nil {
			return "NOT SPECIFIED"
		}
		return t.Format("2006-01-02 15:04:05 MST")
	},
	"pct": func(f float64) float64 { return f * 100 },
}

type signalView struct {
	ThreadID    string
	ThreadName  string
	RawContent  string
	CreatedAt   time.Time
	Ticker      string
	Direction   string
	Strike      *float64
	Expiry      string
	EntryPrice  *float64
	TargetPrice *float64
	StopLoss    *float64
	Confidence  *float64
}

type chainView struct {
	Ticker          string
	Expiry          string
	UnderlyingPrice float64
	Calls           []domain.OptionContract
	Puts            []domain.OptionContract
	Expiries        []string
}

type riskView struct {
	ExecuteOrders                 bool
	MaxLossPerTradePercent        float64
	MaxDailyTrades                int
	MaxLossPerDayPercent          float64
	DefaultStopLossPercent        float64
	DefaultTakeProfitPercent      float64
	TrailingStopEnabled           bool
	TrailingStopActivationPercent float64
	TrailingStopDistancePercent   float64
	MaxPositionSizePercent        float64
	MaxConcurrentPositions        int
}

type promptView struct {
	Signal      signalView
	Time        *domain.TimeInfo
	VIX         *domain.VIXInfo
	Chain       *chainView
	Account     *domain.AccountInfo
	Positions   []domain.Position
	Unavailable []domain.Unavailable
	Risk        riskView
	Scheduled   *domain.ScheduledContext
}

// Render loads both prompt records and executes the user template over
// the bundle. Any loading or rendering problem is wrapped in
// domain.ErrTemplate; the caller degrades it to a skip.
func (a PromptAssembler) Render(ctx domain.Context, bundle domain.PrefetchBundle, cfg domain.RuntimeConfig, sc *domain.ScheduledContext) (string, string, error) {
	system := a.load(ctx, domain.PromptSystem, defaultSystemPrompt)
	userTmpl := a.load(ctx, domain.PromptUserTemplate, defaultUserTemplate)

	tmpl, err := template.New("user").Funcs(promptFuncs).Parse(userTmpl)
	if err != nil {
		return "", "", fmt.Errorf("op=usecase.Render: parse user template: %w: %v", domain.ErrTemplate, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildView(bundle, cfg, sc)); err != nil {
		return "", "", fmt.Errorf("op=usecase.Render: execute user template: %w: %v", domain.ErrTemplate, err)
	}
	return system, buf.String(), nil
}

func (a PromptAssembler) load(ctx domain.Context, kind domain.PromptKind, fallback string) string {
	p, err := a.Prompts.GetActive(ctx, kind)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("prompt store read failed, using embedded default",
				slog.String("kind", string(kind)), slog.Any("error", err))
		}
		return fallback
	}
	if p.Content == "" {
		return fallback
	}
	return p.Content
}

func buildView(bundle domain.PrefetchBundle, cfg domain.RuntimeConfig, sc *domain.ScheduledContext) promptView {
	v := promptView{
		Time:        bundle.Time,
		VIX:         bundle.VIX,
		Account:     bundle.Account,
		Positions:   bundle.Positions,
		Unavailable: bundle.Failures,
		Scheduled:   sc,
		Risk: riskView{
			ExecuteOrders:                 cfg.ExecuteOrders,
			MaxLossPerTradePercent:        cfg.MaxLossPerTradePercent,
			MaxDailyTrades:                cfg.MaxDailyTrades,
			MaxLossPerDayPercent:          cfg.MaxLossPerDayPercent,
			DefaultStopLossPercent:        cfg.DefaultStopLossPercent,
			DefaultTakeProfitPercent:      cfg.DefaultTakeProfitPercent,
			TrailingStopEnabled:           cfg.TrailingStopEnabled,
			TrailingStopActivationPercent: cfg.TrailingStopActivationPercent,
			TrailingStopDistancePercent:   cfg.TrailingStopDistancePercent,
			MaxPositionSizePercent:        cfg.MaxPositionSizePercent,
			MaxConcurrentPositions:        cfg.MaxConcurrentPositions,
		},
	}
	if s := bundle.Signal; s != nil {
		v.Signal = signalView{
			ThreadID:    s.ThreadID,
			ThreadName:  s.ThreadName,
			RawContent:  textx.SanitizeText(s.RawContent()),
			CreatedAt:   s.CreatedAt,
			Ticker:      s.Parsed.Ticker,
			Direction:   s.Parsed.Direction,
			Strike:      s.Parsed.Strike,
			Expiry:      s.Parsed.Expiry,
			EntryPrice:  s.Parsed.EntryPrice,
			TargetPrice: s.Parsed.TargetPrice,
			StopLoss:    s.Parsed.StopLoss,
			Confidence:  s.Parsed.Confidence,
		}
	}
	if c := bundle.OptionChain; c != nil {
		target := c.UnderlyingPrice
		if bundle.Signal != nil && bundle.Signal.Parsed.Strike != nil {
			target = *bundle.Signal.Parsed.Strike
		}
		v.Chain = &chainView{
			Ticker:          c.Ticker,
			Expiry:          c.Expiry,
			UnderlyingPrice: c.UnderlyingPrice,
			Calls:           nearestStrikes(c.Calls, target, chainStrikesPerSide),
			Puts:            nearestStrikes(c.Puts, target, chainStrikesPerSide),
			Expiries:        c.Expiries,
		}
	}
	return v
}

// nearestStrikes keeps the n rows closest to target, ordered by strike
// ascending to keep rendering deterministic.
func nearestStrikes(rows []domain.OptionContract, target float64, n int) []domain.OptionContract {
	out := make([]domain.OptionContract, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Strike-target, out[j].Strike-target
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})
	if len(out) > n {
		out = out[:n]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}
