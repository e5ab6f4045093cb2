package ibkr

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// Client talks to an IBKR Client Portal gateway. The gateway terminates
// TLS with a self-signed certificate on localhost, so verification is
// disabled the same way the ibeam deployment does it.
type Client struct {
	baseURL string
	hc      *http.Client
	breaker *observability.CircuitBreaker

	mu        sync.Mutex
	accountID string
	// primed is set after the first /portfolio/accounts call; the
	// gateway requires it before any other portfolio endpoint.
	primed bool
}

var _ domain.Broker = (*Client)(nil)

// New constructs a gateway client. One Client is shared across the
// process; session priming and breaker state are guarded internally.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.IBKRBaseURL, "/"),
		accountID: cfg.IBKRAccountID,
		hc: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local gateway, self-signed
			},
		},
		breaker: observability.NewCircuitBreaker("ibkr", 5, 30*time.Second),
	}
}

func (c *Client) doJSON(ctx domain.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	err = c.breaker.Call(func() error {
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrBrokerUnreachable, err)
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read body: %v", domain.ErrBrokerUnreachable, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(data)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("gateway non-2xx", slog.String("path", path), slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return fmt.Errorf("%w: %s %s status %d", domain.ErrBrokerRejected, method, path, resp.StatusCode)
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}
		return nil
	})
	// An open breaker is the dead-gateway case: classify it the same as
	// a failed dial so the task fails retriable instead of completing
	// as a rejection.
	if errors.Is(err, observability.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnreachable, err)
	}
	return err
}

// Health pings the gateway session keepalive endpoint.
func (c *Client) Health(ctx domain.Context) error {
	if err := c.doJSON(ctx, http.MethodGet, "/tickle", nil, nil); err != nil {
		return fmt.Errorf("op=ibkr.Client.Health: %w", err)
	}
	return nil
}

// ensureAccount primes the portfolio session and discovers the account
// id when none was configured.
func (c *Client) ensureAccount(ctx domain.Context) (string, error) {
	c.mu.Lock()
	primed, acct := c.primed, c.accountID
	c.mu.Unlock()
	if primed && acct != "" {
		return acct, nil
	}

	var accounts []struct {
		ID        string `json:"id"`
		AccountID string `json:"accountId"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/portfolio/accounts", nil, &accounts); err != nil {
		return "", err
	}
	if acct == "" {
		for _, a := range accounts {
			if a.AccountID != "" {
				acct = a.AccountID
				break
			}
			if a.ID != "" {
				acct = a.ID
				break
			}
		}
	}
	if acct == "" {
		return "", fmt.Errorf("%w: no accounts returned", domain.ErrBrokerRejected)
	}
	c.mu.Lock()
	c.primed = true
	c.accountID = acct
	c.mu.Unlock()
	return acct, nil
}

type summaryAmount struct {
	Amount float64 `json:"amount"`
}

// Account returns the ledger summary for the configured account.
func (c *Client) Account(ctx domain.Context) (domain.AccountInfo, error) {
	acct, err := c.ensureAccount(ctx)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("op=ibkr.Client.Account: %w", err)
	}
	var summary struct {
		AvailableFunds summaryAmount `json:"availablefunds"`
		BuyingPower    summaryAmount `json:"buyingpower"`
		NetLiquidation summaryAmount `json:"netliquidation"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/portfolio/"+acct+"/summary", nil, &summary); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("op=ibkr.Client.Account: %w", err)
	}
	return domain.AccountInfo{
		AccountID:      acct,
		CashAvailable:  summary.AvailableFunds.Amount,
		BuyingPower:    summary.BuyingPower.Amount,
		NetLiquidation: summary.NetLiquidation.Amount,
		// Paper accounts carry the DU prefix, live accounts U.
		Simulated: strings.HasPrefix(acct, "DU"),
	}, nil
}

// Positions returns the account's open positions.
func (c *Client) Positions(ctx domain.Context) ([]domain.Position, error) {
	acct, err := c.ensureAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=ibkr.Client.Positions: %w", err)
	}
	var raw []struct {
		Ticker        string  `json:"ticker"`
		ContractDesc  string  `json:"contractDesc"`
		Position      float64 `json:"position"`
		AvgCost       float64 `json:"avgCost"`
		MktValue      float64 `json:"mktValue"`
		UnrealizedPnl float64 `json:"unrealizedPnl"`
		RealizedPnl   float64 `json:"realizedPnl"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/portfolio/"+acct+"/positions/0", nil, &raw); err != nil {
		return nil, fmt.Errorf("op=ibkr.Client.Positions: %w", err)
	}
	out := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		ticker := p.Ticker
		if ticker == "" {
			// Options report the underlying in the description prefix.
			ticker = strings.Fields(p.ContractDesc + " ")[0]
		}
		out = append(out, domain.Position{
			Ticker:        ticker,
			ContractDesc:  p.ContractDesc,
			Quantity:      p.Position,
			AvgCost:       p.AvgCost,
			MarketValue:   p.MktValue,
			UnrealizedPnL: p.UnrealizedPnl,
			RealizedPnL:   p.RealizedPnl,
		})
	}
	return out, nil
}

// LiveOrders returns all currently working or recently transitioned orders.
func (c *Client) LiveOrders(ctx domain.Context) ([]domain.OrderState, error) {
	var raw struct {
		Orders []struct {
			OrderID   flexID  `json:"orderId"`
			ParentID  flexID  `json:"parentId"`
			Status    string  `json:"status"`
			Side      string  `json:"side"`
			OrderType string  `json:"orderType"`
			Price     flexNum `json:"price"`
			FilledQty flexNum `json:"filledQuantity"`
			AvgPrice  flexNum `json:"avgPrice"`
		} `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/iserver/account/orders", nil, &raw); err != nil {
		return nil, fmt.Errorf("op=ibkr.Client.LiveOrders: %w", err)
	}
	out := make([]domain.OrderState, 0, len(raw.Orders))
	for _, o := range raw.Orders {
		out = append(out, domain.OrderState{
			OrderID:      o.OrderID.String(),
			ParentID:     o.ParentID.String(),
			Status:       o.Status,
			Side:         o.Side,
			OrderType:    o.OrderType,
			Price:        float64(o.Price),
			FilledQty:    float64(o.FilledQty),
			AvgFillPrice: float64(o.AvgPrice),
		})
	}
	return out, nil
}

// Executions returns fills after since, at day granularity (the gateway
// only filters by whole days).
func (c *Client) Executions(ctx domain.Context, since time.Time) ([]domain.Execution, error) {
	days := int(time.Since(since).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	if days > 7 {
		days = 7
	}
	var raw []struct {
		OrderRef  string  `json:"order_ref"`
		Symbol    string  `json:"symbol"`
		Side      string  `json:"side"`
		Price     flexNum `json:"price"`
		Size      flexNum `json:"size"`
		TradeTime string  `json:"trade_time"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/iserver/account/trades?days=%d", days), nil, &raw); err != nil {
		return nil, fmt.Errorf("op=ibkr.Client.Executions: %w", err)
	}
	out := make([]domain.Execution, 0, len(raw))
	for _, e := range raw {
		ts, err := time.Parse("20060102-15:04:05", e.TradeTime)
		if err != nil {
			slog.Warn("unparseable trade_time", slog.String("trade_time", e.TradeTime))
			continue
		}
		if ts.Before(since) {
			continue
		}
		side := e.Side
		switch strings.ToUpper(side) {
		case "B":
			side = "BUY"
		case "S":
			side = "SELL"
		}
		out = append(out, domain.Execution{
			OrderID: e.OrderRef,
			Symbol:  e.Symbol,
			Side:    side,
			Price:   float64(e.Price),
			Qty:     float64(e.Size),
			Time:    ts,
		})
	}
	return out, nil
}

// CancelOrder cancels one working order.
func (c *Client) CancelOrder(ctx domain.Context, orderID string) error {
	acct, err := c.ensureAccount(ctx)
	if err != nil {
		return fmt.Errorf("op=ibkr.Client.CancelOrder: %w", err)
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/iserver/account/"+acct+"/order/"+orderID, nil, nil); err != nil {
		return fmt.Errorf("op=ibkr.Client.CancelOrder: order=%s: %w", orderID, err)
	}
	return nil
}

// flexID decodes gateway identifiers that arrive either bare or quoted.
type flexID string

// UnmarshalJSON accepts both `123` and `"123"`.
func (id *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*id = flexID(s)
	return nil
}

func (id flexID) String() string { return string(id) }

func (id flexID) Int64() int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}

// flexNum decodes gateway numbers that arrive either bare or quoted.
type flexNum float64

// UnmarshalJSON accepts both `1.75` and `"1.75"`. Placeholder values the
// gateway emits before a quote arrives ("N/A", "") decode as zero.
func (n *flexNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexNum(f)
	return nil
}
