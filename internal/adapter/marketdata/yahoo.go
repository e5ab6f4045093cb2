// Package marketdata provides VIX, option chains and underlying prices,
// from a public quote provider with an optional brokerage-feed primary.
package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// indexSymbols are quoted with a caret prefix by the provider.
var indexSymbols = map[string]bool{
	"SPX": true, "NDX": true, "RUT": true, "VIX": true, "DJX": true,
}

// chain rows outside ±10% of spot carry no decision value and bloat the
// prompt, so they are dropped; so are rows with no bid and no ask.
const strikeWindow = 0.10

const maxExpiries = 5

// YahooProvider implements domain.MarketData over public quote endpoints.
type YahooProvider struct {
	baseURL string
	hc      *http.Client
}

var _ domain.MarketData = (*YahooProvider)(nil)

// NewYahoo constructs the fallback provider.
func NewYahoo(cfg config.Config) *YahooProvider {
	return &YahooProvider{
		baseURL: strings.TrimRight(cfg.MarketDataBaseURL, "/"),
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func quoteSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if indexSymbols[t] {
		return "^" + t
	}
	return t
}

func (p *YahooProvider) getJSON(ctx domain.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	// The provider rejects the default Go user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	resp, err := p.hc.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// UnderlyingPrice returns the regular-market price for one symbol.
func (p *YahooProvider) UnderlyingPrice(ctx domain.Context, ticker string) (float64, error) {
	sym := quoteSymbol(ticker)
	var out struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	path := "/v8/finance/chart/" + url.PathEscape(sym) + "?range=1d&interval=1m"
	if err := p.getJSON(ctx, path, &out); err != nil {
		return 0, fmt.Errorf("op=marketdata.YahooProvider.UnderlyingPrice: %s: %w", ticker, err)
	}
	if len(out.Chart.Result) == 0 || out.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return 0, fmt.Errorf("op=marketdata.YahooProvider.UnderlyingPrice: no quote for %s: %w", ticker, domain.ErrNotFound)
	}
	return out.Chart.Result[0].Meta.RegularMarketPrice, nil
}

// VIX returns the current volatility index level with its band.
func (p *YahooProvider) VIX(ctx domain.Context) (domain.VIXInfo, error) {
	level, err := p.UnderlyingPrice(ctx, "VIX")
	if err != nil {
		return domain.VIXInfo{}, fmt.Errorf("op=marketdata.YahooProvider.VIX: %w", err)
	}
	return domain.VIXInfo{Level: level, Band: domain.VIXBand(level)}, nil
}

type yahooOption struct {
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	LastPrice         float64 `json:"lastPrice"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	InTheMoney        bool    `json:"inTheMoney"`
}

type yahooChainPage struct {
	OptionChain struct {
		Result []struct {
			ExpirationDates []int64 `json:"expirationDates"`
			Quote           struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			Options []struct {
				Calls []yahooOption `json:"calls"`
				Puts  []yahooOption `json:"puts"`
			} `json:"options"`
		} `json:"result"`
	} `json:"optionChain"`
}

// OptionChain returns the chain for the requested expiry, or the nearest
// available one when that date is not listed.
func (p *YahooProvider) OptionChain(ctx domain.Context, ticker, expiry string) (domain.OptionChain, error) {
	sym := quoteSymbol(ticker)
	base := "/v7/finance/options/" + url.PathEscape(sym)

	var page yahooChainPage
	if err := p.getJSON(ctx, base, &page); err != nil {
		return domain.OptionChain{}, fmt.Errorf("op=marketdata.YahooProvider.OptionChain: %s: %w", ticker, err)
	}
	if len(page.OptionChain.Result) == 0 {
		return domain.OptionChain{}, fmt.Errorf("op=marketdata.YahooProvider.OptionChain: no options for %s: %w", ticker, domain.ErrNotFound)
	}
	res := page.OptionChain.Result[0]
	if len(res.ExpirationDates) == 0 {
		return domain.OptionChain{}, fmt.Errorf("op=marketdata.YahooProvider.OptionChain: no expiries for %s: %w", ticker, domain.ErrNotFound)
	}

	target := res.ExpirationDates[0]
	if want, err := time.Parse("2006-01-02", expiry); err == nil {
		for _, epoch := range res.ExpirationDates {
			if time.Unix(epoch, 0).UTC().Format("2006-01-02") == want.Format("2006-01-02") {
				target = epoch
				break
			}
		}
	}

	// The undated page already carries the nearest expiry; anything else
	// needs a second fetch.
	if target != res.ExpirationDates[0] {
		var dated yahooChainPage
		if err := p.getJSON(ctx, fmt.Sprintf("%s?date=%d", base, target), &dated); err != nil {
			return domain.OptionChain{}, fmt.Errorf("op=marketdata.YahooProvider.OptionChain: %s date=%d: %w", ticker, target, err)
		}
		if len(dated.OptionChain.Result) == 0 {
			return domain.OptionChain{}, fmt.Errorf("op=marketdata.YahooProvider.OptionChain: empty dated page for %s: %w", ticker, domain.ErrNotFound)
		}
		res.Options = dated.OptionChain.Result[0].Options
		if dated.OptionChain.Result[0].Quote.RegularMarketPrice != 0 {
			res.Quote = dated.OptionChain.Result[0].Quote
		}
	}

	spot := res.Quote.RegularMarketPrice
	chain := domain.OptionChain{
		Ticker:          strings.ToUpper(strings.TrimSpace(ticker)),
		Expiry:          time.Unix(target, 0).UTC().Format("2006-01-02"),
		UnderlyingPrice: spot,
	}
	for i, epoch := range res.ExpirationDates {
		if i == maxExpiries {
			break
		}
		chain.Expiries = append(chain.Expiries, time.Unix(epoch, 0).UTC().Format("2006-01-02"))
	}
	if len(res.Options) > 0 {
		chain.Calls = filterContracts(res.Options[0].Calls, spot)
		chain.Puts = filterContracts(res.Options[0].Puts, spot)
	}
	slog.Debug("option chain fetched",
		slog.String("ticker", chain.Ticker), slog.String("expiry", chain.Expiry),
		slog.Int("calls", len(chain.Calls)), slog.Int("puts", len(chain.Puts)))
	return chain, nil
}

func filterContracts(rows []yahooOption, spot float64) []domain.OptionContract {
	lo, hi := 0.0, 0.0
	if spot > 0 {
		lo, hi = spot*(1-strikeWindow), spot*(1+strikeWindow)
	}
	out := make([]domain.OptionContract, 0, len(rows))
	for _, r := range rows {
		if r.Bid == 0 && r.Ask == 0 {
			continue
		}
		if spot > 0 && (r.Strike < lo || r.Strike > hi) {
			continue
		}
		out = append(out, domain.OptionContract{
			Strike: r.Strike,
			Bid:    r.Bid,
			Ask:    r.Ask,
			Last:   r.LastPrice,
			Mid:    (r.Bid + r.Ask) / 2,
			Volume: r.Volume,
			OI:     r.OpenInterest,
			IV:     r.ImpliedVolatility,
			ITM:    r.InTheMoney,
		})
	}
	return out
}
