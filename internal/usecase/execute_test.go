package usecase

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func testExecuteDecision() domain.ExecuteDecision {
	return domain.ExecuteDecision{
		Ticker:     "SPY",
		Expiry:     "2024-12-09",
		Strike:     605,
		Direction:  "CALL",
		Side:       "BUY",
		Quantity:   1,
		EntryPrice: 1.77,
		TakeProfit: 2.50,
		StopLoss:   1.20,
	}
}

func TestExecuteDryRun(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{}
	trades := &tradesStub{}
	x := NewTradeExecutor(broker, trades)
	cfg := domain.DefaultRuntimeConfig() // execute_orders=false

	res, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "deepseek/deepseek-reasoner")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Simulated)
	assert.True(t, strings.HasPrefix(res.OrderID, "sim-"), "order id %q", res.OrderID)
	assert.Zero(t, broker.resolveCalls)
	assert.Zero(t, broker.placeCalls)

	require.Len(t, trades.inserted, 1)
	tr := trades.inserted[0]
	assert.True(t, tr.Simulated)
	assert.Equal(t, res.OrderID, tr.OrderID)
	assert.Equal(t, "SPY   241209C00605000", tr.OCCSymbol)
	assert.Equal(t, domain.TradeOpen, tr.Status)
	assert.Equal(t, "deepseek/deepseek-reasoner", tr.Model)
}

func TestExecuteLive(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{conID: 1002, placed: domain.PlacedBracket{ParentOrderID: "987654", LocalOrderID: "parent_1002_1"}}
	trades := &tradesStub{}
	x := NewTradeExecutor(broker, trades)
	cfg := domain.DefaultRuntimeConfig()
	cfg.ExecuteOrders = true

	res, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "deepseek/deepseek-reasoner")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Simulated)
	assert.Equal(t, "987654", res.OrderID)
	assert.Equal(t, 1, broker.resolveCalls)
	assert.Equal(t, 1, broker.placeCalls)
	assert.Equal(t, int64(1002), broker.lastBracket.ConID)
	assert.Equal(t, 1.77, broker.lastBracket.EntryPrice)

	require.Len(t, trades.inserted, 1)
	tr := trades.inserted[0]
	assert.False(t, tr.Simulated)
	assert.Equal(t, "987654", tr.OrderID)
	assert.Equal(t, int64(1002), tr.ConID)
}

func TestExecuteContractNotFound(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{resolveErr: fmt.Errorf("op=ibkr.ResolveContract: %w", domain.ErrContractNotFound)}
	trades := &tradesStub{}
	x := NewTradeExecutor(broker, trades)
	cfg := domain.DefaultRuntimeConfig()
	cfg.ExecuteOrders = true

	res, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "m")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "contract_not_found")
	assert.Zero(t, broker.placeCalls)
	assert.Empty(t, trades.inserted)
}

func TestExecuteBrokerRejected(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{conID: 1002, placeErr: fmt.Errorf("op=ibkr.PlaceBracket: %w", domain.ErrBrokerRejected)}
	trades := &tradesStub{}
	x := NewTradeExecutor(broker, trades)
	cfg := domain.DefaultRuntimeConfig()
	cfg.ExecuteOrders = true

	res, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "m")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "broker_rejected")
	assert.Empty(t, trades.inserted)
}

func TestExecuteBrokerUnreachableIsRetriable(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{conID: 1002, placeErr: fmt.Errorf("%w: dial tcp", domain.ErrBrokerUnreachable)}
	x := NewTradeExecutor(broker, &tradesStub{})
	cfg := domain.DefaultRuntimeConfig()
	cfg.ExecuteOrders = true

	_, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokerUnreachable)
}

func TestExecuteOrphanedTrade(t *testing.T) {
	t.Parallel()
	broker := &brokerStub{conID: 1002, placed: domain.PlacedBracket{ParentOrderID: "987654"}}
	trades := &tradesStub{insertErr: errors.New("connection reset")}
	x := NewTradeExecutor(broker, trades)
	cfg := domain.DefaultRuntimeConfig()
	cfg.ExecuteOrders = true

	_, err := x.Execute(t.Context(), testSignal(), testExecuteDecision(), cfg, "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreWrite)
	assert.Contains(t, err.Error(), "orphaned order 987654")
}

func TestExecuteCarriesSignalConfidence(t *testing.T) {
	t.Parallel()
	trades := &tradesStub{}
	x := NewTradeExecutor(&brokerStub{}, trades)
	sig := testSignal()
	sig.Parsed.Confidence = f64(0.7)

	_, err := x.Execute(t.Context(), sig, testExecuteDecision(), domain.DefaultRuntimeConfig(), "m")
	require.NoError(t, err)
	require.Len(t, trades.inserted, 1)
	assert.Equal(t, 0.7, trades.inserted[0].Confidence)
}
