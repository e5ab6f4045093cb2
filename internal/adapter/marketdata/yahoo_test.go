package marketdata

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func newTestProvider(t *testing.T, h http.Handler) *YahooProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewYahoo(config.Config{MarketDataBaseURL: srv.URL})
}

func chartBody(price float64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":%g}}]}}`, price)
}

func TestUnderlyingPrice(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SPY", r.URL.Path)
		assert.NotContains(t, r.Header.Get("User-Agent"), "Go-http-client")
		_, _ = w.Write([]byte(chartBody(605.21)))
	}))
	price, err := p.UnderlyingPrice(t.Context(), "spy")
	require.NoError(t, err)
	assert.InDelta(t, 605.21, price, 1e-9)
}

func TestUnderlyingPriceIndexPrefix(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/^VIX", r.URL.Path)
		_, _ = w.Write([]byte(chartBody(18.4)))
	}))
	price, err := p.UnderlyingPrice(t.Context(), "VIX")
	require.NoError(t, err)
	assert.InDelta(t, 18.4, price, 1e-9)
}

func TestUnderlyingPriceNoQuote(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[]}}`))
	}))
	_, err := p.UnderlyingPrice(t.Context(), "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVIXBandsFromQuote(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chartBody(27.3)))
	}))
	vix, err := p.VIX(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 27.3, vix.Level, 1e-9)
	assert.Equal(t, domain.VIXHigh, vix.Band)
}

// chainPage covers two expiries: 2024-12-09 (1733702400) and 2024-12-11
// (1733875200); the undated page carries the first one.
func chainPage(dates string, spot float64, calls, puts string) string {
	return fmt.Sprintf(`{"optionChain":{"result":[{
		"expirationDates":[%s],
		"quote":{"regularMarketPrice":%g},
		"options":[{"calls":[%s],"puts":[%s]}]
	}]}}`, dates, spot, calls, puts)
}

func TestOptionChainFiltersStrikesAndDeadQuotes(t *testing.T) {
	t.Parallel()
	calls := `{"strike":605,"bid":1.7,"ask":1.8,"lastPrice":1.75,"volume":1200,"openInterest":800,"impliedVolatility":0.21,"inTheMoney":false},
		{"strike":700,"bid":0.1,"ask":0.2},
		{"strike":600,"bid":0,"ask":0}`
	puts := `{"strike":600,"bid":1.1,"ask":1.2,"inTheMoney":false}`
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/options/SPY", r.URL.Path)
		_, _ = w.Write([]byte(chainPage("1733702400,1733875200", 605, calls, puts)))
	}))
	chain, err := p.OptionChain(t.Context(), "SPY", "2024-12-09")
	require.NoError(t, err)
	assert.Equal(t, "SPY", chain.Ticker)
	assert.Equal(t, "2024-12-09", chain.Expiry)
	assert.InDelta(t, 605, chain.UnderlyingPrice, 1e-9)
	assert.Equal(t, []string{"2024-12-09", "2024-12-11"}, chain.Expiries)
	// 700 is outside ±10% of 605; the zero-bid zero-ask row is dropped.
	require.Len(t, chain.Calls, 1)
	assert.InDelta(t, 605, chain.Calls[0].Strike, 1e-9)
	assert.InDelta(t, 1.75, chain.Calls[0].Mid, 1e-9)
	require.Len(t, chain.Puts, 1)
}

func TestOptionChainFetchesRequestedExpiry(t *testing.T) {
	t.Parallel()
	var datedCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/options/SPY", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "1733875200" {
			datedCalls++
			_, _ = w.Write([]byte(chainPage("1733702400,1733875200", 606,
				`{"strike":606,"bid":2.0,"ask":2.2}`, "")))
			return
		}
		_, _ = w.Write([]byte(chainPage("1733702400,1733875200", 605,
			`{"strike":605,"bid":1.7,"ask":1.8}`, "")))
	})
	p := newTestProvider(t, mux)
	chain, err := p.OptionChain(t.Context(), "SPY", "2024-12-11")
	require.NoError(t, err)
	assert.Equal(t, 1, datedCalls)
	assert.Equal(t, "2024-12-11", chain.Expiry)
	require.Len(t, chain.Calls, 1)
	assert.InDelta(t, 606, chain.Calls[0].Strike, 1e-9)
}

func TestOptionChainUnknownExpiryUsesNearest(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(chainPage("1733702400", 605, `{"strike":605,"bid":1.7,"ask":1.8}`, "")))
	}))
	chain, err := p.OptionChain(t.Context(), "SPY", "2030-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-12-09", chain.Expiry)
}
