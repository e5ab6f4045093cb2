package marketdata

import (
	"sync"

	"log/slog"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// PriceSource is the slice of the brokerage feed the composite needs.
type PriceSource interface {
	Health(ctx domain.Context) error
	UnderlyingPrice(ctx domain.Context, ticker string) (float64, error)
}

// Composite prefers the brokerage feed for underlying prices and falls
// back to the public provider when the feed is down or has no quote.
// VIX and chains always come from the public provider; the brokerage
// feed has no free index quote and its chain lookups are a heavier
// secdef flow than decision prompts need.
type Composite struct {
	primary  PriceSource
	fallback *YahooProvider

	mu      sync.Mutex
	checked bool
	healthy bool
}

var _ domain.MarketData = (*Composite)(nil)

// NewComposite wires the brokerage feed in front of the public provider.
func NewComposite(primary PriceSource, fallback *YahooProvider) *Composite {
	return &Composite{primary: primary, fallback: fallback}
}

// usable reports whether the brokerage feed answered its one-time health
// probe. A failed probe pins the composite to the fallback.
func (c *Composite) usable(ctx domain.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.checked {
		c.checked = true
		c.healthy = c.primary.Health(ctx) == nil
		if !c.healthy {
			slog.Warn("brokerage feed unhealthy, using public quotes")
		}
	}
	return c.healthy
}

// UnderlyingPrice returns the feed price, falling back on any error.
func (c *Composite) UnderlyingPrice(ctx domain.Context, ticker string) (float64, error) {
	if c.usable(ctx) {
		price, err := c.primary.UnderlyingPrice(ctx, ticker)
		if err == nil {
			return price, nil
		}
		slog.Debug("feed price unavailable, falling back",
			slog.String("ticker", ticker), slog.Any("error", err))
	}
	return c.fallback.UnderlyingPrice(ctx, ticker)
}

// VIX always comes from the public provider.
func (c *Composite) VIX(ctx domain.Context) (domain.VIXInfo, error) {
	return c.fallback.VIX(ctx)
}

// OptionChain always comes from the public provider.
func (c *Composite) OptionChain(ctx domain.Context, ticker, expiry string) (domain.OptionChain, error) {
	return c.fallback.OptionChain(ctx, ticker, expiry)
}
