package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	t.Parallel()
	c := DefaultRuntimeConfig()
	assert.False(t, c.EmergencyStop)
	assert.False(t, c.ExecuteOrders)
	assert.Equal(t, 5, c.MaxConcurrentPositions)
	assert.InDelta(t, 25.0, c.MaxVIXLevel, 1e-9)
	assert.InDelta(t, 0.5, c.MinAIConfidenceScore, 1e-9)
	assert.Equal(t, []string{"SPY", "QQQ"}, c.WhitelistTickers)
	assert.Empty(t, c.BlacklistTickers)
	assert.Equal(t, "deepseek/deepseek-reasoner", c.CurrentLLMModel)
}

func TestWhitelisted(t *testing.T) {
	t.Parallel()
	c := RuntimeConfig{WhitelistTickers: []string{"SPY"}}
	assert.True(t, c.Whitelisted("SPY"))
	assert.False(t, c.Whitelisted("NVDA"))

	// empty whitelist allows everything
	c.WhitelistTickers = nil
	assert.True(t, c.Whitelisted("NVDA"))
}

func TestBlacklisted(t *testing.T) {
	t.Parallel()
	c := RuntimeConfig{BlacklistTickers: []string{"TSLA"}}
	assert.True(t, c.Blacklisted("TSLA"))
	assert.False(t, c.Blacklisted("SPY"))
}
