package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OCCSymbol builds the standardized option identifier for one contract:
// ticker space-padded to six characters, expiry as YYMMDD, C or P, then
// the strike multiplied by 1000 and zero-padded to eight digits.
//
//	OCCSymbol("SPY", "2024-12-09", "C", 605) = "SPY   241209C00605000"
func OCCSymbol(ticker, expiry, right string, strike float64) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || len(ticker) > 6 {
		return "", fmt.Errorf("op=domain.OCCSymbol: ticker %q: %w", ticker, ErrInvalidArgument)
	}
	d, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", fmt.Errorf("op=domain.OCCSymbol: expiry %q: %w", expiry, ErrInvalidArgument)
	}
	right = strings.ToUpper(right)
	if right != "C" && right != "P" {
		return "", fmt.Errorf("op=domain.OCCSymbol: right %q: %w", right, ErrInvalidArgument)
	}
	if strike <= 0 {
		return "", fmt.Errorf("op=domain.OCCSymbol: strike %v: %w", strike, ErrInvalidArgument)
	}
	milli := int64(math.Round(strike * 1000))
	return fmt.Sprintf("%-6s%s%s%08d", ticker, d.Format("060102"), right, milli), nil
}
