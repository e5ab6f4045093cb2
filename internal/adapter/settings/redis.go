// Package settings reads the dashboard-owned runtime config from Redis.
//
// Every recognized option lives under one prefixed key. Bools are the
// strings "true"/"false", lists are JSON arrays, numbers are plain
// strings. Unset keys fall back to documented defaults, so a fresh
// Redis yields a safe dry-run configuration.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

const keyPrefix = "config:trading:"

// Store implements domain.Settings over Redis.
type Store struct {
	rdb redis.UniversalClient
}

var _ domain.Settings = (*Store)(nil)

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Snapshot reads every option in one round-trip. Callers take a fresh
// snapshot per task; nothing is cached here.
func (s *Store) Snapshot(ctx context.Context) (domain.RuntimeConfig, error) {
	keys := domain.RuntimeConfigKeys
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("op=settings.Snapshot: %w", err)
	}

	raw := make(map[string]string, len(keys))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			raw[keys[i]] = str
		}
	}

	cfg := domain.DefaultRuntimeConfig()
	getBool(raw, "emergency_stop", &cfg.EmergencyStop)
	getBool(raw, "execute_orders", &cfg.ExecuteOrders)
	getInt(raw, "max_concurrent_positions", &cfg.MaxConcurrentPositions)
	getFloat(raw, "max_vix_level", &cfg.MaxVIXLevel)
	getFloat(raw, "min_ai_confidence_score", &cfg.MinAIConfidenceScore)
	getList(raw, "whitelist_tickers", &cfg.WhitelistTickers)
	getList(raw, "blacklist_tickers", &cfg.BlacklistTickers)
	getFloat(raw, "max_loss_per_trade_percent", &cfg.MaxLossPerTradePercent)
	getInt(raw, "max_daily_trades", &cfg.MaxDailyTrades)
	getFloat(raw, "max_loss_per_day_percent", &cfg.MaxLossPerDayPercent)
	getFloat(raw, "default_stop_loss_percent", &cfg.DefaultStopLossPercent)
	getFloat(raw, "default_take_profit_percent", &cfg.DefaultTakeProfitPercent)
	getBool(raw, "trailing_stop_enabled", &cfg.TrailingStopEnabled)
	getFloat(raw, "trailing_stop_activation_percent", &cfg.TrailingStopActivationPercent)
	getFloat(raw, "trailing_stop_distance_percent", &cfg.TrailingStopDistancePercent)
	getFloat(raw, "max_position_size_percent", &cfg.MaxPositionSizePercent)
	if v, ok := raw["current_llm_model"]; ok && v != "" {
		cfg.CurrentLLMModel = v
	}
	return cfg, nil
}

// Set writes one option. The value uses the wire encoding described in
// the package comment.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	if !domain.IsRuntimeConfigKey(key) {
		return fmt.Errorf("op=settings.Set: key %q: %w", key, domain.ErrInvalidArgument)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("op=settings.Set: %w", err)
	}
	slog.Info("runtime config updated", slog.String("key", key), slog.String("value", value))
	return nil
}

// InitDefaults writes the documented default for every unset key so the
// dashboard sees a fully populated config on first boot. Existing values
// are never overwritten.
func (s *Store) InitDefaults(ctx context.Context) error {
	def := domain.DefaultRuntimeConfig()
	wl, _ := json.Marshal(def.WhitelistTickers)
	bl, _ := json.Marshal(def.BlacklistTickers)
	defaults := map[string]string{
		"emergency_stop":                   strconv.FormatBool(def.EmergencyStop),
		"execute_orders":                   strconv.FormatBool(def.ExecuteOrders),
		"max_concurrent_positions":         strconv.Itoa(def.MaxConcurrentPositions),
		"max_vix_level":                    formatFloat(def.MaxVIXLevel),
		"min_ai_confidence_score":          formatFloat(def.MinAIConfidenceScore),
		"whitelist_tickers":                string(wl),
		"blacklist_tickers":                string(bl),
		"max_loss_per_trade_percent":       formatFloat(def.MaxLossPerTradePercent),
		"max_daily_trades":                 strconv.Itoa(def.MaxDailyTrades),
		"max_loss_per_day_percent":         formatFloat(def.MaxLossPerDayPercent),
		"default_stop_loss_percent":        formatFloat(def.DefaultStopLossPercent),
		"default_take_profit_percent":      formatFloat(def.DefaultTakeProfitPercent),
		"trailing_stop_enabled":            strconv.FormatBool(def.TrailingStopEnabled),
		"trailing_stop_activation_percent": formatFloat(def.TrailingStopActivationPercent),
		"trailing_stop_distance_percent":   formatFloat(def.TrailingStopDistancePercent),
		"max_position_size_percent":        formatFloat(def.MaxPositionSizePercent),
		"current_llm_model":                def.CurrentLLMModel,
	}
	written := 0
	for key, value := range defaults {
		ok, err := s.rdb.SetNX(ctx, keyPrefix+key, value, 0).Result()
		if err != nil {
			return fmt.Errorf("op=settings.InitDefaults: %w", err)
		}
		if ok {
			written++
		}
	}
	if written > 0 {
		slog.Info("initialized runtime config defaults", slog.Int("keys", written))
	}
	return nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func getBool(raw map[string]string, key string, dst *bool) {
	if v, ok := raw[key]; ok {
		*dst = v == "true"
	}
}

func getInt(raw map[string]string, key string, dst *int) {
	if v, ok := raw[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func getFloat(raw map[string]string, key string, dst *float64) {
	if v, ok := raw[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func getList(raw map[string]string, key string, dst *[]string) {
	if v, ok := raw[key]; ok {
		var list []string
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			*dst = list
		}
	}
}
