// Package ibkr implements domain.Broker over the IBKR Client Portal REST API.
package ibkr

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// monthCode converts an ISO expiry date into the MONYY token the
// contract-definition endpoints expect (e.g. "2024-12-09" -> "DEC24").
func monthCode(expiry string) (string, error) {
	d, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", fmt.Errorf("op=ibkr.monthCode: expiry %q: %w", expiry, domain.ErrInvalidArgument)
	}
	return strings.ToUpper(d.Format("Jan")) + d.Format("06"), nil
}
