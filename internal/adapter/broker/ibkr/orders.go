package ibkr

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// maxConfirmations bounds the reply loop for order-submission prompts
// (price percentage constraint, order value limit, missing market data,
// stop order risks). Every prompt is acknowledged affirmatively.
const maxConfirmations = 5

// ResolveContract maps (ticker, expiry, strike, right) to a gateway
// contract id: underlying lookup first, then option definitions for the
// expiry month filtered down to the exact contract.
func (c *Client) ResolveContract(ctx domain.Context, ticker, expiry string, strike float64, right string) (int64, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	right = strings.ToUpper(right)

	underlying, err := c.searchUnderlying(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("op=ibkr.Client.ResolveContract: %w", err)
	}

	month, err := monthCode(expiry)
	if err != nil {
		return 0, fmt.Errorf("op=ibkr.Client.ResolveContract: %w", err)
	}
	maturity := strings.ReplaceAll(expiry, "-", "")

	var defs []struct {
		Conid        flexID  `json:"conid"`
		MaturityDate string  `json:"maturityDate"`
		Right        string  `json:"right"`
		Strike       flexNum `json:"strike"`
	}
	q := url.Values{
		"conid":   {fmt.Sprintf("%d", underlying)},
		"sectype": {"OPT"},
		"month":   {month},
		"strike":  {fmt.Sprintf("%g", strike)},
		"right":   {right},
	}
	if err := c.doJSON(ctx, http.MethodGet, "/iserver/secdef/info?"+q.Encode(), nil, &defs); err != nil {
		return 0, fmt.Errorf("op=ibkr.Client.ResolveContract: secdef info %s: %w", ticker, err)
	}

	var conid int64
	matches := 0
	for _, d := range defs {
		if d.MaturityDate != maturity {
			continue
		}
		if d.Right != "" && !strings.EqualFold(d.Right, right) {
			continue
		}
		if s := float64(d.Strike); s != 0 && math.Abs(s-strike) > 1e-6 {
			continue
		}
		conid = d.Conid.Int64()
		matches++
	}
	if matches != 1 || conid == 0 {
		slog.Warn("contract filter did not yield a single match",
			slog.String("ticker", ticker), slog.String("expiry", expiry),
			slog.Float64("strike", strike), slog.String("right", right),
			slog.Int("matches", matches))
		return 0, fmt.Errorf("op=ibkr.Client.ResolveContract: %s %s %s %v: %w",
			ticker, expiry, right, strike, domain.ErrContractNotFound)
	}
	return conid, nil
}

// searchUnderlying finds the stock contract id for a ticker, preferring
// the exact symbol match over partials like SPYG for SPY.
func (c *Client) searchUnderlying(ctx domain.Context, ticker string) (int64, error) {
	var candidates []struct {
		Conid  flexID `json:"conid"`
		Symbol string `json:"symbol"`
	}
	q := url.Values{"symbol": {ticker}, "secType": {"STK"}}
	if err := c.doJSON(ctx, http.MethodGet, "/iserver/secdef/search?"+q.Encode(), nil, &candidates); err != nil {
		return 0, fmt.Errorf("search %s: %w", ticker, err)
	}
	var underlying int64
	for _, cand := range candidates {
		if strings.EqualFold(cand.Symbol, ticker) {
			underlying = cand.Conid.Int64()
			break
		}
	}
	if underlying == 0 && len(candidates) > 0 {
		underlying = candidates[0].Conid.Int64()
	}
	if underlying == 0 {
		return 0, fmt.Errorf("underlying %s: %w", ticker, domain.ErrContractNotFound)
	}
	return underlying, nil
}

type orderAck struct {
	OrderID      string   `json:"order_id"`
	LocalOrderID string   `json:"local_order_id"`
	OrderStatus  string   `json:"order_status"`
	ID           string   `json:"id"`
	Message      []string `json:"message"`
}

// PlaceBracket submits a three-order bracket: parent LIMIT entry (DAY),
// child take-profit LIMIT and child stop-loss STOP (both GTC), the two
// children linked to the parent by its client order id and to each other
// as a single OCA group. Confirmation prompts from the gateway are
// acknowledged until an order id comes back.
func (c *Client) PlaceBracket(ctx domain.Context, b domain.BracketOrder) (domain.PlacedBracket, error) {
	acct, err := c.ensureAccount(ctx)
	if err != nil {
		return domain.PlacedBracket{}, fmt.Errorf("op=ibkr.Client.PlaceBracket: %w", err)
	}

	ts := time.Now().Unix()
	parentCoid := fmt.Sprintf("parent_%d_%d", b.ConID, ts)
	exitSide := "SELL"
	if strings.EqualFold(b.Side, "SELL") {
		exitSide = "BUY"
	}

	parent := map[string]any{
		"acctId":    acct,
		"conid":     b.ConID,
		"cOID":      parentCoid,
		"orderType": "LMT",
		"price":     b.EntryPrice,
		"side":      strings.ToUpper(b.Side),
		"tif":       "DAY",
		"quantity":  b.Quantity,
	}
	takeProfit := map[string]any{
		"acctId":        acct,
		"conid":         b.ConID,
		"parentId":      parentCoid,
		"isSingleGroup": true,
		"orderType":     "LMT",
		"price":         b.TakeProfit,
		"side":          exitSide,
		"tif":           "GTC",
		"quantity":      b.Quantity,
	}
	stopLoss := map[string]any{
		"acctId":        acct,
		"conid":         b.ConID,
		"parentId":      parentCoid,
		"isSingleGroup": true,
		"orderType":     "STP",
		"auxPrice":      b.StopLoss,
		"side":          exitSide,
		"tif":           "GTC",
		"quantity":      b.Quantity,
	}

	var acks []orderAck
	err = c.doJSON(ctx, http.MethodPost, "/iserver/account/"+acct+"/orders",
		map[string]any{"orders": []map[string]any{parent, takeProfit, stopLoss}}, &acks)
	if err != nil {
		return domain.PlacedBracket{}, fmt.Errorf("op=ibkr.Client.PlaceBracket: submit: %w", err)
	}

	for i := 0; i < maxConfirmations; i++ {
		if len(acks) == 0 {
			return domain.PlacedBracket{}, fmt.Errorf("op=ibkr.Client.PlaceBracket: empty response: %w", domain.ErrBrokerRejected)
		}
		first := acks[0]
		if first.OrderID != "" {
			slog.Info("bracket placed",
				slog.String("parent_order_id", first.OrderID),
				slog.String("coid", parentCoid),
				slog.Int64("conid", b.ConID),
				slog.String("occ_symbol", b.OCCSymbol))
			return domain.PlacedBracket{ParentOrderID: first.OrderID, LocalOrderID: parentCoid}, nil
		}
		if first.ID == "" {
			break
		}
		slog.Debug("acknowledging order prompt", slog.String("reply_id", first.ID), slog.Any("message", first.Message))
		acks = acks[:0]
		if err := c.doJSON(ctx, http.MethodPost, "/iserver/reply/"+first.ID,
			map[string]any{"confirmed": true}, &acks); err != nil {
			return domain.PlacedBracket{}, fmt.Errorf("op=ibkr.Client.PlaceBracket: reply: %w", err)
		}
	}
	return domain.PlacedBracket{}, fmt.Errorf("op=ibkr.Client.PlaceBracket: no order id after confirmations: %w", domain.ErrBrokerRejected)
}
