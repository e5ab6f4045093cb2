package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// TradeRepo persists and loads trades from PostgreSQL.
type TradeRepo struct{ Pool PgxPool }

// NewTradeRepo constructs a TradeRepo with the given pool.
func NewTradeRepo(p PgxPool) *TradeRepo { return &TradeRepo{Pool: p} }

const tradeColumns = `id, thread_id, order_id, occ_symbol, conid, ticker, direction, side, quantity, entry_price, take_profit, stop_loss, model, confidence, status, simulated, entry_time, exit_time, exit_price, pnl, COALESCE(exit_reason,'')`

// Insert stores a new trade. The id is core-assigned; inserting the
// same trade twice is a conflict, not a duplicate row.
func (r *TradeRepo) Insert(ctx domain.Context, t domain.Trade) error {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "trades"),
	)
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.EntryTime.IsZero() {
		t.EntryTime = time.Now().UTC()
	}
	q := `INSERT INTO trades (id, thread_id, order_id, occ_symbol, conid, ticker, direction, side, quantity, entry_price, take_profit, stop_loss, model, confidence, status, simulated, entry_time, exit_time, exit_price, pnl, exit_reason)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	ON CONFLICT (id) DO NOTHING`
	_, err := r.Pool.Exec(ctx, q,
		t.ID, t.ThreadID, t.OrderID, t.OCCSymbol, t.ConID, t.Ticker, t.Direction, t.Side,
		t.Quantity, t.EntryPrice, t.TakeProfit, t.StopLoss, t.Model, t.Confidence,
		t.Status, t.Simulated, t.EntryTime, t.ExitTime, t.ExitPrice, t.PnL, t.ExitReason)
	if err != nil {
		return fmt.Errorf("op=trade.insert: %w", domainWriteError(err))
	}
	return nil
}

// GetByOrderID loads a trade by its broker parent order id.
func (r *TradeRepo) GetByOrderID(ctx domain.Context, orderID string) (domain.Trade, error) {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.GetByOrderID")
	defer span.End()
	q := `SELECT ` + tradeColumns + ` FROM trades WHERE order_id=$1 LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, orderID)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, fmt.Errorf("op=trade.get_by_order: %w", domain.ErrNotFound)
		}
		return domain.Trade{}, fmt.Errorf("op=trade.get_by_order: %w", err)
	}
	return t, nil
}

// ListOpen returns every trade still in open status.
func (r *TradeRepo) ListOpen(ctx domain.Context) ([]domain.Trade, error) {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.ListOpen")
	defer span.End()
	q := `SELECT ` + tradeColumns + ` FROM trades WHERE status=$1 ORDER BY entry_time`
	rows, err := r.Pool.Query(ctx, q, domain.TradeOpen)
	if err != nil {
		return nil, fmt.Errorf("op=trade.list_open: %w", err)
	}
	defer rows.Close()
	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("op=trade.list_open: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=trade.list_open: %w", err)
	}
	return out, nil
}

// ListRecent returns the newest trades, any status, newest first.
func (r *TradeRepo) ListRecent(ctx domain.Context, limit int) ([]domain.Trade, error) {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.ListRecent")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + tradeColumns + ` FROM trades ORDER BY entry_time DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=trade.list_recent: %w", err)
	}
	defer rows.Close()
	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("op=trade.list_recent: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=trade.list_recent: %w", err)
	}
	return out, nil
}

// OpenExistsForTicker reports whether an open trade already exists for
// the ticker. Used by the duplicate-position precondition.
func (r *TradeRepo) OpenExistsForTicker(ctx domain.Context, ticker string) (bool, error) {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.OpenExistsForTicker")
	defer span.End()
	q := `SELECT EXISTS (SELECT 1 FROM trades WHERE ticker=$1 AND status=$2)`
	row := r.Pool.QueryRow(ctx, q, ticker, domain.TradeOpen)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("op=trade.open_exists: %w", err)
	}
	return exists, nil
}

// Close finalizes a trade with its exit state.
func (r *TradeRepo) Close(ctx domain.Context, id string, status domain.TradeStatus, exitPrice float64, exitTime time.Time, pnl float64, reason string) error {
	tracer := otel.Tracer("repo.trades")
	ctx, span := tracer.Start(ctx, "trades.Close")
	defer span.End()
	q := `UPDATE trades SET status=$2, exit_price=$3, exit_time=$4, pnl=$5, exit_reason=$6 WHERE id=$1 AND status=$7`
	tag, err := r.Pool.Exec(ctx, q, id, status, exitPrice, exitTime, pnl, reason, domain.TradeOpen)
	if err != nil {
		return fmt.Errorf("op=trade.close: %w", domainWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=trade.close: %w", domain.ErrNotFound)
	}
	return nil
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(&t.ID, &t.ThreadID, &t.OrderID, &t.OCCSymbol, &t.ConID, &t.Ticker,
		&t.Direction, &t.Side, &t.Quantity, &t.EntryPrice, &t.TakeProfit, &t.StopLoss,
		&t.Model, &t.Confidence, &t.Status, &t.Simulated, &t.EntryTime,
		&t.ExitTime, &t.ExitPrice, &t.PnL, &t.ExitReason)
	return t, err
}
