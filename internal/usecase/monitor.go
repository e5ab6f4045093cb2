package usecase

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// optionMultiplier is the shares-per-contract factor for equity options.
const optionMultiplier = 100

// FillMonitor reconciles open trades against broker order state on a
// fixed poll. Matching is by the parent order id stored at placement;
// any state that does not map to a take-profit or stop-loss fill closes
// the trade as closed_manual.
type FillMonitor struct {
	Broker   domain.Broker
	Trades   domain.TradeRepository
	Interval time.Duration
	Now      func() time.Time
}

// NewFillMonitor constructs a FillMonitor.
func NewFillMonitor(b domain.Broker, t domain.TradeRepository, interval time.Duration) FillMonitor {
	return FillMonitor{Broker: b, Trades: t, Interval: interval, Now: time.Now}
}

// Run blocks until ctx is cancelled.
func (m FillMonitor) Run(ctx domain.Context) {
	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		m.reconcile(ctx)
	}
}

func (m FillMonitor) reconcile(ctx domain.Context) {
	open, err := m.Trades.ListOpen(ctx)
	if err != nil {
		slog.Warn("monitor: list open trades failed", slog.Any("error", err))
		return
	}
	var live []domain.Trade
	for _, t := range open {
		if !t.Simulated {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return
	}

	orders, err := m.Broker.LiveOrders(ctx)
	if err != nil {
		slog.Warn("monitor: live orders fetch failed", slog.Any("error", err))
		return
	}
	byID := make(map[string]domain.OrderState, len(orders))
	children := make(map[string][]domain.OrderState)
	for _, o := range orders {
		byID[o.OrderID] = o
		if o.ParentID != "" {
			children[o.ParentID] = append(children[o.ParentID], o)
		}
	}
	for _, t := range live {
		m.reconcileTrade(ctx, t, byID, children)
	}
}

func (m FillMonitor) reconcileTrade(ctx domain.Context, t domain.Trade, byID map[string]domain.OrderState, children map[string][]domain.OrderState) {
	// A filled child is the clean exit: the LMT leg is the take
	// profit, the STP leg is the stop loss.
	for _, k := range children[t.OrderID] {
		if !orderFilled(k) {
			continue
		}
		status, reason := domain.TradeClosedSL, "stop loss filled"
		if k.OrderType == "LMT" {
			status, reason = domain.TradeClosedTP, "take profit filled"
		}
		m.close(ctx, t, status, k.AvgFillPrice, reason)
		return
	}

	if parent, ok := byID[t.OrderID]; ok {
		if strings.EqualFold(parent.Status, "Cancelled") || strings.EqualFold(parent.Status, "Inactive") {
			m.close(ctx, t, domain.TradeClosedManual, 0, "parent order "+strings.ToLower(parent.Status))
		}
		return
	}

	// Parent no longer reported at all. Fall back to the execution
	// tape, then to expiry; whatever remains is manual intervention.
	execs, err := m.Broker.Executions(ctx, t.EntryTime)
	if err != nil {
		slog.Warn("monitor: executions fetch failed",
			slog.String("trade_id", t.ID), slog.Any("error", err))
		return
	}
	exitSide := "SELL"
	if t.Side == "SELL" {
		exitSide = "BUY"
	}
	var exit *domain.Execution
	for i, ex := range execs {
		if ex.Side == exitSide && sameUnderlying(ex.Symbol, t.Ticker) {
			exit = &execs[i]
		}
	}
	switch {
	case exit != nil:
		m.closeAt(ctx, t, domain.TradeClosedManual, exit.Price, exit.Time, "reconciled from executions")
	case occExpired(t.OCCSymbol, m.Now()):
		m.close(ctx, t, domain.TradeClosedExpired, 0, "contract expired")
	default:
		m.close(ctx, t, domain.TradeClosedManual, 0, "order no longer live")
	}
}

func (m FillMonitor) close(ctx domain.Context, t domain.Trade, status domain.TradeStatus, exitPrice float64, reason string) {
	m.closeAt(ctx, t, status, exitPrice, m.Now().UTC(), reason)
}

func (m FillMonitor) closeAt(ctx domain.Context, t domain.Trade, status domain.TradeStatus, exitPrice float64, exitTime time.Time, reason string) {
	pnl := tradePnL(t, exitPrice)
	if err := m.Trades.Close(ctx, t.ID, status, exitPrice, exitTime, pnl, reason); err != nil {
		slog.Error("monitor: trade close failed",
			slog.String("trade_id", t.ID), slog.Any("error", err))
		return
	}
	observability.ObserveTradeClose(string(status), pnl)
	slog.Info("trade closed",
		slog.String("trade_id", t.ID),
		slog.String("order_id", t.OrderID),
		slog.String("status", string(status)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
		slog.String("reason", reason))
}

// tradePnL is the realized dollar PnL for an exit at the given premium.
// Exit price 0 means the entry cannot be assumed filled, so no PnL is
// attributed.
func tradePnL(t domain.Trade, exitPrice float64) float64 {
	if exitPrice == 0 {
		return 0
	}
	d := exitPrice - t.EntryPrice
	if t.Side == "SELL" {
		d = -d
	}
	return d * optionMultiplier * float64(t.Quantity)
}

func orderFilled(o domain.OrderState) bool {
	return strings.EqualFold(o.Status, "Filled") && o.FilledQty > 0
}

// sameUnderlying compares an execution symbol ("SPY 241209C00605000"
// or just "SPY") against the trade's ticker.
func sameUnderlying(symbol, ticker string) bool {
	fields := strings.Fields(symbol)
	return len(fields) > 0 && strings.EqualFold(fields[0], ticker)
}

// occExpired parses the YYMMDD out of an OCC symbol and reports whether
// that session is over.
func occExpired(occ string, now time.Time) bool {
	if len(occ) < 12 {
		return false
	}
	d, err := time.Parse("060102", occ[6:12])
	if err != nil {
		return false
	}
	return now.After(d.Add(24 * time.Hour))
}
