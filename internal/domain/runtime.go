package domain

// RuntimeConfig is the dashboard-owned state bag. The core re-reads a
// fresh snapshot on every task; it never writes except through the
// Settings port on behalf of an operator.
type RuntimeConfig struct {
	EmergencyStop          bool     `json:"emergency_stop"`
	ExecuteOrders          bool     `json:"execute_orders"`
	MaxConcurrentPositions int      `json:"max_concurrent_positions"`
	MaxVIXLevel            float64  `json:"max_vix_level"`
	MinAIConfidenceScore   float64  `json:"min_ai_confidence_score"`
	WhitelistTickers       []string `json:"whitelist_tickers"`
	BlacklistTickers       []string `json:"blacklist_tickers"`

	MaxLossPerTradePercent        float64 `json:"max_loss_per_trade_percent"`
	MaxDailyTrades                int     `json:"max_daily_trades"`
	MaxLossPerDayPercent          float64 `json:"max_loss_per_day_percent"`
	DefaultStopLossPercent        float64 `json:"default_stop_loss_percent"`
	DefaultTakeProfitPercent      float64 `json:"default_take_profit_percent"`
	TrailingStopEnabled           bool    `json:"trailing_stop_enabled"`
	TrailingStopActivationPercent float64 `json:"trailing_stop_activation_percent"`
	TrailingStopDistancePercent   float64 `json:"trailing_stop_distance_percent"`
	MaxPositionSizePercent        float64 `json:"max_position_size_percent"`

	CurrentLLMModel string `json:"current_llm_model"`
}

// RuntimeConfigKeys lists every settable option, in the wire-key form
// shared by the settings store and the ops surface.
var RuntimeConfigKeys = []string{
	"emergency_stop", "execute_orders", "max_concurrent_positions",
	"max_vix_level", "min_ai_confidence_score",
	"whitelist_tickers", "blacklist_tickers",
	"max_loss_per_trade_percent", "max_daily_trades", "max_loss_per_day_percent",
	"default_stop_loss_percent", "default_take_profit_percent",
	"trailing_stop_enabled", "trailing_stop_activation_percent", "trailing_stop_distance_percent",
	"max_position_size_percent", "current_llm_model",
}

// IsRuntimeConfigKey reports whether key is a settable option.
func IsRuntimeConfigKey(key string) bool {
	for _, k := range RuntimeConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultRuntimeConfig returns the documented defaults; unset keys in
// the settings store fall back to these.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		EmergencyStop:                 false,
		ExecuteOrders:                 false,
		MaxConcurrentPositions:        5,
		MaxVIXLevel:                   25,
		MinAIConfidenceScore:          0.5,
		WhitelistTickers:              []string{"SPY", "QQQ"},
		BlacklistTickers:              nil,
		MaxLossPerTradePercent:        0.1,
		MaxDailyTrades:                10,
		MaxLossPerDayPercent:          0.1,
		DefaultStopLossPercent:        0.3,
		DefaultTakeProfitPercent:      0.5,
		TrailingStopEnabled:           false,
		TrailingStopActivationPercent: 0.2,
		TrailingStopDistancePercent:   0.1,
		MaxPositionSizePercent:        0.2,
		CurrentLLMModel:               "deepseek/deepseek-reasoner",
	}
}

// Whitelisted reports whether ticker passes the whitelist. An empty
// whitelist allows everything.
func (c RuntimeConfig) Whitelisted(ticker string) bool {
	if len(c.WhitelistTickers) == 0 {
		return true
	}
	for _, t := range c.WhitelistTickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// Blacklisted reports whether ticker is hard-blocked.
func (c RuntimeConfig) Blacklisted(ticker string) bool {
	for _, t := range c.BlacklistTickers {
		if t == ticker {
			return true
		}
	}
	return false
}
