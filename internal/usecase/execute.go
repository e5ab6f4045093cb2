package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// TradeExecutor turns an Execute decision into a bracket order and a
// persisted Trade, with dry-run parity: when execute_orders is false
// the broker is never touched and the trade is tagged simulated.
type TradeExecutor struct {
	Broker domain.Broker
	Trades domain.TradeRepository
	Now    func() time.Time
}

// NewTradeExecutor constructs a TradeExecutor.
func NewTradeExecutor(b domain.Broker, t domain.TradeRepository) TradeExecutor {
	return TradeExecutor{Broker: b, Trades: t, Now: time.Now}
}

// Execute places (or simulates) the bracket and records the Trade.
// A nil error with Success=false means the broker round-trip finished
// but the order was not accepted; the task still completes. A non-nil
// error is a retriable task failure.
func (x TradeExecutor) Execute(ctx domain.Context, sig domain.Signal, e domain.ExecuteDecision, cfg domain.RuntimeConfig, model string) (domain.TradeResult, error) {
	occ, err := domain.OCCSymbol(e.Ticker, e.Expiry, e.Right(), e.Strike)
	if err != nil {
		return domain.TradeResult{Success: false, Error: fmt.Sprintf("invalid contract: %v", err)}, nil
	}

	confidence := 0.0
	if sig.Parsed.Confidence != nil {
		confidence = *sig.Parsed.Confidence
	}
	trade := domain.Trade{
		ID:         uuid.NewString(),
		ThreadID:   sig.ThreadID,
		OCCSymbol:  occ,
		Ticker:     e.Ticker,
		Direction:  e.Direction,
		Side:       e.Side,
		Quantity:   e.Quantity,
		EntryPrice: e.EntryPrice,
		TakeProfit: e.TakeProfit,
		StopLoss:   e.StopLoss,
		Model:      model,
		Confidence: confidence,
		Status:     domain.TradeOpen,
		EntryTime:  x.Now().UTC(),
	}

	if !cfg.ExecuteOrders {
		trade.OrderID = "sim-" + uuid.NewString()
		trade.Simulated = true
		if err := x.Trades.Insert(ctx, trade); err != nil {
			return domain.TradeResult{}, fmt.Errorf("op=usecase.Execute: persist simulated trade: %w: %v", domain.ErrStoreWrite, err)
		}
		observability.TradesPlacedTotal.WithLabelValues("dry_run").Inc()
		slog.Info("simulated bracket recorded",
			slog.String("thread_id", sig.ThreadID),
			slog.String("occ_symbol", occ),
			slog.String("order_id", trade.OrderID))
		return domain.TradeResult{Success: true, OrderID: trade.OrderID, TradeID: trade.ID, Simulated: true}, nil
	}

	conid, err := x.Broker.ResolveContract(ctx, e.Ticker, e.Expiry, e.Strike, e.Right())
	if err != nil {
		if errors.Is(err, domain.ErrContractNotFound) {
			slog.Warn("contract resolution failed",
				slog.String("thread_id", sig.ThreadID),
				slog.String("occ_symbol", occ),
				slog.Any("error", err))
			return domain.TradeResult{Success: false, Error: fmt.Sprintf("contract_not_found: %v", err)}, nil
		}
		return domain.TradeResult{}, err
	}

	placed, err := x.Broker.PlaceBracket(ctx, domain.BracketOrder{
		ConID:      conid,
		OCCSymbol:  occ,
		Side:       e.Side,
		Quantity:   e.Quantity,
		EntryPrice: e.EntryPrice,
		TakeProfit: e.TakeProfit,
		StopLoss:   e.StopLoss,
	})
	if err != nil {
		if errors.Is(err, domain.ErrBrokerUnreachable) {
			return domain.TradeResult{}, err
		}
		return domain.TradeResult{Success: false, Error: fmt.Sprintf("broker_rejected: %v", err)}, nil
	}

	trade.OrderID = placed.ParentOrderID
	trade.ConID = conid
	if err := x.Trades.Insert(ctx, trade); err != nil {
		// The order is live without a matching record; surface the
		// orphan in the failed record so an operator reconciles it.
		slog.Error("trade persistence failed after placement",
			slog.String("thread_id", sig.ThreadID),
			slog.String("order_id", placed.ParentOrderID),
			slog.Any("error", err))
		return domain.TradeResult{}, fmt.Errorf("op=usecase.Execute: persist trade after placement: orphaned order %s: %w: %v",
			placed.ParentOrderID, domain.ErrStoreWrite, err)
	}
	observability.TradesPlacedTotal.WithLabelValues("live").Inc()
	slog.Info("bracket placed",
		slog.String("thread_id", sig.ThreadID),
		slog.String("occ_symbol", occ),
		slog.String("order_id", placed.ParentOrderID),
		slog.Int64("conid", conid))
	return domain.TradeResult{Success: true, OrderID: placed.ParentOrderID, TradeID: trade.ID}, nil
}
