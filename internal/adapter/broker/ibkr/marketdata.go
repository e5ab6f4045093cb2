package ibkr

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// Snapshot field ids: last trade price, bid, ask.
const snapshotFields = "31,84,86"

// UnderlyingPrice returns the last trade price for an underlying from a live
// snapshot, falling back to the bid/ask midpoint. The gateway may answer
// an empty snapshot on the first request while it subscribes, so one
// short retry is built in.
func (c *Client) UnderlyingPrice(ctx domain.Context, ticker string) (float64, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	conid, err := c.searchUnderlying(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("op=ibkr.Client.UnderlyingPrice: %w", err)
	}
	q := url.Values{
		"conids": {fmt.Sprintf("%d", conid)},
		"fields": {snapshotFields},
	}
	path := "/iserver/marketdata/snapshot?" + q.Encode()

	for attempt := 0; attempt < 2; attempt++ {
		var snaps []struct {
			Last flexNum `json:"31"`
			Bid  flexNum `json:"84"`
			Ask  flexNum `json:"86"`
		}
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &snaps); err != nil {
			return 0, fmt.Errorf("op=ibkr.Client.UnderlyingPrice: snapshot %s: %w", ticker, err)
		}
		if len(snaps) > 0 {
			s := snaps[0]
			if s.Last != 0 {
				return float64(s.Last), nil
			}
			if s.Bid != 0 && s.Ask != 0 {
				return (float64(s.Bid) + float64(s.Ask)) / 2, nil
			}
		}
		if attempt == 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("op=ibkr.Client.UnderlyingPrice: %w", ctx.Err())
			case <-time.After(300 * time.Millisecond):
			}
		}
	}
	return 0, fmt.Errorf("op=ibkr.Client.UnderlyingPrice: no quote for %s: %w", ticker, domain.ErrNotFound)
}
