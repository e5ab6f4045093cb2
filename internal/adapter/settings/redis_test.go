package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestSnapshotDefaultsOnEmptyStore(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	cfg, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRuntimeConfig(), cfg)
}

func TestSnapshotReadsStoredValues(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	mr.Set(keyPrefix+"emergency_stop", "true")
	mr.Set(keyPrefix+"execute_orders", "true")
	mr.Set(keyPrefix+"max_concurrent_positions", "3")
	mr.Set(keyPrefix+"max_vix_level", "30.5")
	mr.Set(keyPrefix+"whitelist_tickers", `["SPY","IWM"]`)
	mr.Set(keyPrefix+"blacklist_tickers", `["TSLA"]`)
	mr.Set(keyPrefix+"current_llm_model", "openai/gpt-4o")

	cfg, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.EmergencyStop)
	assert.True(t, cfg.ExecuteOrders)
	assert.Equal(t, 3, cfg.MaxConcurrentPositions)
	assert.InDelta(t, 30.5, cfg.MaxVIXLevel, 1e-9)
	assert.Equal(t, []string{"SPY", "IWM"}, cfg.WhitelistTickers)
	assert.Equal(t, []string{"TSLA"}, cfg.BlacklistTickers)
	assert.Equal(t, "openai/gpt-4o", cfg.CurrentLLMModel)
	// untouched keys keep their defaults
	assert.InDelta(t, 0.5, cfg.MinAIConfidenceScore, 1e-9)
}

func TestSnapshotIgnoresMalformedValues(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	mr.Set(keyPrefix+"max_vix_level", "not-a-number")
	mr.Set(keyPrefix+"whitelist_tickers", "not-json")

	cfg, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0, cfg.MaxVIXLevel, 1e-9)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.WhitelistTickers)
}

func TestSetRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "min_ai_confidence_score", "0.7"))
	cfg, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.MinAIConfidenceScore, 1e-9)
}

func TestInitDefaultsPopulatesUnsetKeys(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitDefaults(ctx))

	v, err := mr.Get(keyPrefix + "max_vix_level")
	require.NoError(t, err)
	assert.Equal(t, "25", v)
	v, err = mr.Get(keyPrefix + "whitelist_tickers")
	require.NoError(t, err)
	assert.Equal(t, `["SPY","QQQ"]`, v)

	cfg, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRuntimeConfig(), cfg)
}

func TestInitDefaultsKeepsExistingValues(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	ctx := context.Background()
	mr.Set(keyPrefix+"emergency_stop", "true")

	require.NoError(t, s.InitDefaults(ctx))

	cfg, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.EmergencyStop)
}

func TestSetRejectsUnknownKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	err := s.Set(context.Background(), "favorite_color", "blue")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
