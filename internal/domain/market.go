package domain

import "time"

// MarketStatusReason explains why the market is or is not open.
const (
	MarketOpen       = "market_open"
	MarketPreMarket  = "pre_market"
	MarketAfterHours = "after_hours"
	MarketWeekend    = "weekend"
	MarketHoliday    = "holiday"
)

// TimeInfo is the market-clock slice of the prefetch bundle, expressed
// in US/Eastern.
type TimeInfo struct {
	Now          time.Time
	MarketIsOpen bool
	Reason       string
	OpensAt      *time.Time
	ClosesAt     *time.Time
}

// AccountInfo is the ledger slice of the prefetch bundle.
type AccountInfo struct {
	AccountID      string
	CashAvailable  float64
	BuyingPower    float64
	NetLiquidation float64
	Simulated      bool
}

// OptionContract is one strike row of an option chain.
type OptionContract struct {
	Strike float64
	Bid    float64
	Ask    float64
	Last   float64
	Mid    float64
	Volume int64
	OI     int64
	IV     float64
	ITM    bool
}

// OptionChain is a snapshot of one underlying's chain for one expiry.
type OptionChain struct {
	Ticker          string
	Expiry          string
	UnderlyingPrice float64
	Calls           []OptionContract
	Puts            []OptionContract
	Expiries        []string
}

// Position is one open brokerage position.
type Position struct {
	Ticker        string
	ContractDesc  string
	Quantity      float64
	AvgCost       float64
	MarketValue   float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// VIX bands.
const (
	VIXLow      = "low"
	VIXNormal   = "normal"
	VIXElevated = "elevated"
	VIXHigh     = "high"
	VIXExtreme  = "extreme"
)

// VIXBand buckets a VIX level: low < 15 ≤ normal < 20 ≤ elevated < 25 ≤ high < 30 ≤ extreme.
func VIXBand(level float64) string {
	switch {
	case level < 15:
		return VIXLow
	case level < 20:
		return VIXNormal
	case level < 25:
		return VIXElevated
	case level < 30:
		return VIXHigh
	default:
		return VIXExtreme
	}
}

// VIXInfo is the volatility slice of the prefetch bundle.
type VIXInfo struct {
	Level float64
	Band  string
}

// Unavailable marks a prefetch sub-read that errored or timed out.
// It replaces the value instead of aborting the pipeline.
type Unavailable struct {
	Kind   string
	Reason string
}

// PrefetchBundle is the read-only snapshot handed to prompt assembly.
// A nil field together with the matching Unavailable entry means the
// sub-read failed; the template renders it as missing data.
type PrefetchBundle struct {
	Time        *TimeInfo
	Account     *AccountInfo
	OptionChain *OptionChain
	Positions   []Position
	VIX         *VIXInfo
	Signal      *Signal

	Failures []Unavailable
}

// Unavailable appends a partial-failure marker for one sub-read.
func (b *PrefetchBundle) MarkUnavailable(kind, reason string) {
	b.Failures = append(b.Failures, Unavailable{Kind: kind, Reason: reason})
}

// OrderState is one live order as reported by the brokerage.
type OrderState struct {
	OrderID      string
	ParentID     string
	Status       string // Submitted, Filled, Cancelled, ...
	Side         string
	OrderType    string // LMT or STP
	Price        float64
	FilledQty    float64
	AvgFillPrice float64
}

// Execution is one fill as reported by the brokerage.
type Execution struct {
	OrderID string
	Symbol  string
	Side    string
	Price   float64
	Qty     float64
	Time    time.Time
}

// BracketOrder is the broker-facing shape of an Execute decision after
// symbol resolution.
type BracketOrder struct {
	ConID      int64
	OCCSymbol  string
	Side       string
	Quantity   int
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// PlacedBracket is the broker's acknowledgement of a bracket placement.
type PlacedBracket struct {
	ParentOrderID string
	LocalOrderID  string
}

// Broker (port): brokerage gateway operations used by the core.

type Broker interface {
	Health(ctx Context) error
	Account(ctx Context) (AccountInfo, error)
	Positions(ctx Context) ([]Position, error)
	ResolveContract(ctx Context, ticker, expiry string, strike float64, right string) (int64, error)
	PlaceBracket(ctx Context, b BracketOrder) (PlacedBracket, error)
	LiveOrders(ctx Context) ([]OrderState, error)
	Executions(ctx Context, since time.Time) ([]Execution, error)
	CancelOrder(ctx Context, orderID string) error
}

// MarketData (port): VIX, chains and underlying prices, from the
// broker feed or the fallback provider.

type MarketData interface {
	VIX(ctx Context) (VIXInfo, error)
	OptionChain(ctx Context, ticker, expiry string) (OptionChain, error)
	UnderlyingPrice(ctx Context, ticker string) (float64, error)
}
