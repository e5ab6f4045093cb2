package marketclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func et(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, Eastern)
}

func TestStatusRegularDay(t *testing.T) {
	t.Parallel()
	// Monday 2024-12-09
	s := Status(et(2024, time.December, 9, 10, 30))
	assert.True(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketOpen, s.Reason)
	require.NotNil(t, s.OpensAt)
	require.NotNil(t, s.ClosesAt)
	assert.Equal(t, 9, s.OpensAt.Hour())
	assert.Equal(t, 30, s.OpensAt.Minute())
	assert.Equal(t, 16, s.ClosesAt.Hour())

	s = Status(et(2024, time.December, 9, 8, 0))
	assert.False(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketPreMarket, s.Reason)

	s = Status(et(2024, time.December, 9, 16, 1))
	assert.False(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketAfterHours, s.Reason)
}

func TestStatusOpenCloseBoundaries(t *testing.T) {
	t.Parallel()
	assert.True(t, Status(et(2024, time.December, 9, 9, 30)).MarketIsOpen)
	assert.True(t, Status(et(2024, time.December, 9, 16, 0)).MarketIsOpen)
}

func TestStatusWeekend(t *testing.T) {
	t.Parallel()
	// Saturday
	s := Status(et(2024, time.December, 7, 12, 0))
	assert.False(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketWeekend, s.Reason)
	assert.Nil(t, s.OpensAt)
}

func TestStatusHoliday(t *testing.T) {
	t.Parallel()
	s := Status(et(2025, time.December, 25, 12, 0))
	assert.False(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketHoliday, s.Reason)
	assert.Equal(t, "Christmas Day", HolidayName(et(2025, time.December, 25, 12, 0)))

	// 2026-07-03: observed Independence Day is a full holiday, not an early close
	assert.Equal(t, domain.MarketHoliday, Status(et(2026, time.July, 3, 10, 0)).Reason)
}

func TestStatusEarlyClose(t *testing.T) {
	t.Parallel()
	day := et(2025, time.December, 24, 0, 0)
	assert.True(t, IsEarlyClose(day))

	s := Status(et(2025, time.December, 24, 12, 0))
	assert.True(t, s.MarketIsOpen)
	require.NotNil(t, s.ClosesAt)
	assert.Equal(t, 13, s.ClosesAt.Hour())

	s = Status(et(2025, time.December, 24, 13, 30))
	assert.False(t, s.MarketIsOpen)
	assert.Equal(t, domain.MarketAfterHours, s.Reason)
}

func TestStatusConvertsToEastern(t *testing.T) {
	t.Parallel()
	// 14:30 UTC on a regular Monday is 09:30 ET
	s := Status(time.Date(2024, time.December, 9, 14, 30, 0, 0, time.UTC))
	assert.True(t, s.MarketIsOpen)
	assert.Equal(t, Eastern.String(), s.Now.Location().String())
}
