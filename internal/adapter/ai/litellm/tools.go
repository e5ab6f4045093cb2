package litellm

import (
	"encoding/json"

	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

const (
	toolSkip     = "skip_signal"
	toolExecute  = "place_bracket_order"
	toolSchedule = "schedule_reanalysis"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// toolSchemas returns the three decision tools. The model must call
// exactly one of them.
func toolSchemas() []map[string]any {
	return []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        toolSkip,
				"description": "Skip this signal - do not trade",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{"type": "string", "description": "Why skipping"},
						"category": map[string]any{
							"type": "string",
							"enum": []string{
								string(domain.SkipNoSignal), string(domain.SkipMarketClosed),
								string(domain.SkipBadRR), string(domain.SkipLowConfidence),
								string(domain.SkipTiming), string(domain.SkipPositionExists),
								string(domain.SkipOther),
							},
						},
					},
					"required": []string{"reason", "category"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        toolExecute,
				"description": "Execute this trade with a bracket order",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"ticker":      map[string]any{"type": "string", "description": "Underlying ticker"},
						"expiry":      map[string]any{"type": "string", "description": "Option expiry YYYY-MM-DD"},
						"strike":      map[string]any{"type": "number", "description": "Strike price"},
						"direction":   map[string]any{"type": "string", "enum": []string{"CALL", "PUT"}},
						"side":        map[string]any{"type": "string", "enum": []string{"BUY", "SELL"}},
						"quantity":    map[string]any{"type": "integer", "description": "Number of contracts"},
						"entry_price": map[string]any{"type": "number", "description": "Limit entry price"},
						"take_profit": map[string]any{"type": "number", "description": "Take profit price"},
						"stop_loss":   map[string]any{"type": "number", "description": "Stop loss price"},
						"reasoning":   map[string]any{"type": "string", "description": "Why executing"},
					},
					"required": []string{
						"ticker", "expiry", "strike", "direction", "side",
						"quantity", "entry_price", "take_profit", "stop_loss",
					},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        toolSchedule,
				"description": "Schedule this signal for later reanalysis (e.g. market opens soon, waiting for an event)",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"delay_minutes": map[string]any{
							"type":        "integer",
							"description": "Minutes to wait before reanalysis (5-240)",
						},
						"reason":   map[string]any{"type": "string", "description": "Why scheduling for later"},
						"question": map[string]any{"type": "string", "description": "Question to answer on reanalysis"},
						"key_levels": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "number"},
							"description": "Price levels to watch",
						},
					},
					"required": []string{"delay_minutes", "reason", "question"},
				},
			},
		},
	}
}

// formatErrorSkip is the terminal decision for model output the runner
// cannot honor.
func formatErrorSkip(detail string) domain.Decision {
	return domain.NewSkip(domain.SkipOther, "ai_format_error: "+detail)
}

// parseToolCall converts one tool invocation into a Decision. Unknown
// tools, unparseable arguments and schema violations all degrade to a
// format-error skip rather than failing the task.
func parseToolCall(name string, args []byte) domain.Decision {
	switch name {
	case toolSkip:
		var sd domain.SkipDecision
		if err := json.Unmarshal(args, &sd); err != nil || sd.Reason == "" {
			slog.Warn("unparseable skip arguments", slog.String("args", string(args)))
			return formatErrorSkip("bad skip_signal arguments")
		}
		if !knownCategory(sd.Category) {
			sd.Category = domain.SkipOther
		}
		return domain.Decision{Kind: domain.DecisionSkip, Skip: &sd}

	case toolExecute:
		var ed domain.ExecuteDecision
		if err := json.Unmarshal(args, &ed); err != nil {
			slog.Warn("unparseable execute arguments", slog.String("args", string(args)))
			return formatErrorSkip("bad place_bracket_order arguments")
		}
		if err := validate.Struct(ed); err != nil {
			slog.Warn("execute arguments failed validation", slog.Any("error", err))
			return formatErrorSkip("invalid place_bracket_order arguments")
		}
		return domain.NewExecute(ed)

	case toolSchedule:
		var dd domain.DelayDecision
		if err := json.Unmarshal(args, &dd); err != nil {
			slog.Warn("unparseable schedule arguments", slog.String("args", string(args)))
			return formatErrorSkip("bad schedule_reanalysis arguments")
		}
		if dd.DelayMinutes < domain.MinDelayMinutes || dd.DelayMinutes > domain.MaxDelayMinutes {
			slog.Warn("delay out of bounds", slog.Int("delay_minutes", dd.DelayMinutes))
			return formatErrorSkip("delay_minutes out of bounds")
		}
		return domain.NewDelay(dd)

	default:
		slog.Warn("unknown tool call", slog.String("tool", name))
		return formatErrorSkip("unknown tool " + name)
	}
}

func knownCategory(c domain.SkipCategory) bool {
	switch c {
	case domain.SkipNoSignal, domain.SkipMarketClosed, domain.SkipBadRR,
		domain.SkipLowConfidence, domain.SkipTiming, domain.SkipPositionExists,
		domain.SkipOther:
		return true
	}
	return false
}
