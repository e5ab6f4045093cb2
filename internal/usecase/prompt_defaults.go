package usecase

// Embedded fallbacks for the two prompt-store records. Operators may
// override either one through the prompt store; these ship the system
// with a working baseline.

const defaultSystemPrompt = `You are a 0DTE options trade execution agent. You receive one trading
signal thread plus a prefetched snapshot of market context, and you must
make exactly one decision by calling exactly one tool.

TOOLS
- skip_signal: the signal is not actionable. Give a concrete reason and
  pick the closest category (no_signal, market_closed, bad_rr,
  low_confidence, timing, position_exists, other).
- place_bracket_order: execute the trade as a bracket: a limit entry, a
  take-profit limit and a stop-loss stop. Every field is required and
  must be internally consistent (for a BUY: stop_loss < entry_price <
  take_profit).
- schedule_reanalysis: the signal may become actionable later. Choose a
  delay between 5 and 240 minutes and state the question the future
  analysis must answer.

RULES
1. Call exactly one tool. Never answer in prose only.
2. All context you will get is already in the user message. Do not ask
   for more data; data marked UNAVAILABLE is genuine uncertainty and
   must lower your conviction accordingly.
3. Respect the risk parameters in the user message. Position size must
   never exceed the stated per-trade or account ceilings.
4. 0DTE options decay fast. If the market is closed or closing within
   the signal's horizon, skip with category market_closed or timing.
5. Prefer liquid strikes near the money. A chain row with a wide spread
   or no bid is a bad fill waiting to happen.
6. When the signal names explicit entry, target and stop levels, honor
   them unless the live chain contradicts them.
7. Be decisive. A mediocre signal is a skip, not a small position.`

const defaultUserTemplate = `## SIGNAL
Thread: {{.Signal.ThreadName}} ({{.Signal.ThreadID}})
Received: {{ftime .Signal.CreatedAt}}

### Raw messages
{{.Signal.RawContent}}

### Parsed fields
Ticker: {{sdef .Signal.Ticker}}
Direction: {{sdef .Signal.Direction}}
Strike: {{fptr .Signal.Strike}}
Expiry: {{sdef .Signal.Expiry}}
Entry price: {{fptr .Signal.EntryPrice}}
Target price: {{fptr .Signal.TargetPrice}}
Stop loss: {{fptr .Signal.StopLoss}}
Confidence: {{fptr .Signal.Confidence}}
{{if .Scheduled}}
## SCHEDULED REANALYSIS CONTEXT
This is retry #{{.Scheduled.RetryCount}} of a deferred analysis.
Previous decision: {{sdef .Scheduled.PreviousSummary}}
Reason for the delay: {{sdef .Scheduled.Reason}}
Question to answer now: {{sdef .Scheduled.Question}}
{{if .Scheduled.KeyLevels}}Key levels to watch: {{range $i, $l := .Scheduled.KeyLevels}}{{if $i}}, {{end}}{{printf "%.2f" $l}}{{end}}{{end}}
{{end}}
## MARKET TIME
{{if .Time}}Now (US/Eastern): {{ftime .Time.Now}}
Market open: {{.Time.MarketIsOpen}} ({{.Time.Reason}})
{{if .Time.OpensAt}}Opens at: {{ftimep .Time.OpensAt}}
{{end}}{{if .Time.ClosesAt}}Closes at: {{ftimep .Time.ClosesAt}}
{{end}}{{else}}Market time: UNAVAILABLE
{{end}}
## VOLATILITY
{{if .VIX}}VIX: {{printf "%.2f" .VIX.Level}} ({{.VIX.Band}}){{else}}VIX: UNAVAILABLE{{end}}

## OPTION CHAIN
{{if .Chain}}Underlying {{.Chain.Ticker}} @ {{printf "%.2f" .Chain.UnderlyingPrice}}, expiry {{.Chain.Expiry}}
Available expiries: {{range $i, $e := .Chain.Expiries}}{{if $i}}, {{end}}{{$e}}{{end}}

Calls (strike | bid | ask | mid | last | vol | OI | IV | ITM):
{{range .Chain.Calls}}{{printf "%8.2f | %6.2f | %6.2f | %6.2f | %6.2f | %6d | %6d | %5.2f | %t" .Strike .Bid .Ask .Mid .Last .Volume .OI .IV .ITM}}
{{end}}
Puts (strike | bid | ask | mid | last | vol | OI | IV | ITM):
{{range .Chain.Puts}}{{printf "%8.2f | %6.2f | %6.2f | %6.2f | %6.2f | %6d | %6d | %5.2f | %t" .Strike .Bid .Ask .Mid .Last .Volume .OI .IV .ITM}}
{{end}}{{else}}OPTION CHAIN: UNAVAILABLE
{{end}}
## ACCOUNT
{{if .Account}}Account: {{.Account.AccountID}}{{if .Account.Simulated}} (paper){{end}}
Cash available: {{printf "$%.2f" .Account.CashAvailable}}
Buying power: {{printf "$%.2f" .Account.BuyingPower}}
Net liquidation: {{printf "$%.2f" .Account.NetLiquidation}}
{{else}}Account: UNAVAILABLE
{{end}}
## OPEN POSITIONS
{{if .Positions}}{{range .Positions}}- {{.ContractDesc}} qty {{printf "%.0f" .Quantity}} avg {{printf "%.2f" .AvgCost}} mkt {{printf "%.2f" .MarketValue}} uPnL {{printf "%.2f" .UnrealizedPnL}}
{{end}}{{else}}(none)
{{end}}
## RISK PARAMETERS
Mode: {{if .Risk.ExecuteOrders}}LIVE (orders go to the broker){{else}}DRY-RUN (orders are simulated){{end}}
Max loss per trade: {{printf "%.0f%%" (pct .Risk.MaxLossPerTradePercent)}} of account
Max daily trades: {{.Risk.MaxDailyTrades}}
Max loss per day: {{printf "%.0f%%" (pct .Risk.MaxLossPerDayPercent)}} of account
Max position size: {{printf "%.0f%%" (pct .Risk.MaxPositionSizePercent)}} of account
Max concurrent positions: {{.Risk.MaxConcurrentPositions}}
Default stop loss: {{printf "%.0f%%" (pct .Risk.DefaultStopLossPercent)}} below entry
Default take profit: {{printf "%.0f%%" (pct .Risk.DefaultTakeProfitPercent)}} above entry
Trailing stop: {{if .Risk.TrailingStopEnabled}}enabled (activates at {{printf "%.0f%%" (pct .Risk.TrailingStopActivationPercent)}}, trails {{printf "%.0f%%" (pct .Risk.TrailingStopDistancePercent)}}){{else}}disabled{{end}}
{{if .Unavailable}}
## MISSING DATA
{{range .Unavailable}}- {{.Kind}}: {{.Reason}}
{{end}}{{end}}
## TASK
Analyze the signal against the context above and call exactly one tool:
skip_signal, place_bracket_order, or schedule_reanalysis.`
