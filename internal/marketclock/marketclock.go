// Package marketclock answers whether NYSE is open at a point in time.
//
// Calendar source: https://www.nyse.com/markets/hours-calendars
package marketclock

import (
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("marketclock: load America/New_York: " + err.Error())
	}
	return loc
}

// Eastern is the exchange timezone.
var Eastern = mustLoadEastern()

type ymd struct{ y, m, d int }

var holidays = map[ymd]string{
	{2024, 1, 1}:   "New Year's Day",
	{2024, 1, 15}:  "Martin Luther King Jr. Day",
	{2024, 2, 19}:  "Presidents' Day",
	{2024, 3, 29}:  "Good Friday",
	{2024, 5, 27}:  "Memorial Day",
	{2024, 6, 19}:  "Juneteenth",
	{2024, 7, 4}:   "Independence Day",
	{2024, 9, 2}:   "Labor Day",
	{2024, 11, 28}: "Thanksgiving Day",
	{2024, 12, 25}: "Christmas Day",

	{2025, 1, 1}:   "New Year's Day",
	{2025, 1, 20}:  "Martin Luther King Jr. Day",
	{2025, 2, 17}:  "Presidents' Day",
	{2025, 4, 18}:  "Good Friday",
	{2025, 5, 26}:  "Memorial Day",
	{2025, 6, 19}:  "Juneteenth",
	{2025, 7, 4}:   "Independence Day",
	{2025, 9, 1}:   "Labor Day",
	{2025, 11, 27}: "Thanksgiving Day",
	{2025, 12, 25}: "Christmas Day",

	{2026, 1, 1}:   "New Year's Day",
	{2026, 1, 19}:  "Martin Luther King Jr. Day",
	{2026, 2, 16}:  "Presidents' Day",
	{2026, 4, 3}:   "Good Friday",
	{2026, 5, 25}:  "Memorial Day",
	{2026, 6, 19}:  "Juneteenth",
	{2026, 7, 3}:   "Independence Day (observed)",
	{2026, 9, 7}:   "Labor Day",
	{2026, 11, 26}: "Thanksgiving Day",
	{2026, 12, 25}: "Christmas Day",
}

// Early close days trade 9:30–13:00 ET.
var earlyClose = map[ymd]bool{
	{2024, 7, 3}:   true,
	{2024, 11, 29}: true,
	{2024, 12, 24}: true,
	{2025, 7, 3}:   true,
	{2025, 11, 28}: true,
	{2025, 12, 24}: true,
	{2026, 11, 27}: true,
	{2026, 12, 24}: true,
}

func dayOf(t time.Time) ymd {
	y, m, d := t.Date()
	return ymd{y, int(m), d}
}

// HolidayName returns the holiday name for t's date, or "" when it is
// a trading day.
func HolidayName(t time.Time) string {
	return holidays[dayOf(t.In(Eastern))]
}

// IsEarlyClose reports whether t falls on a 13:00 ET close.
func IsEarlyClose(t time.Time) bool {
	return earlyClose[dayOf(t.In(Eastern))]
}

// Status resolves the market state for t. Regular hours are 9:30–16:00
// ET, 13:00 on early-close days.
func Status(t time.Time) domain.TimeInfo {
	et := t.In(Eastern)
	info := domain.TimeInfo{Now: et}

	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		info.Reason = domain.MarketWeekend
		return info
	}
	if _, ok := holidays[dayOf(et)]; ok {
		info.Reason = domain.MarketHoliday
		return info
	}

	y, m, d := et.Date()
	opens := time.Date(y, m, d, 9, 30, 0, 0, Eastern)
	closes := time.Date(y, m, d, 16, 0, 0, 0, Eastern)
	if earlyClose[dayOf(et)] {
		closes = time.Date(y, m, d, 13, 0, 0, 0, Eastern)
	}
	info.OpensAt = &opens
	info.ClosesAt = &closes

	switch {
	case et.Before(opens):
		info.Reason = domain.MarketPreMarket
	case et.After(closes):
		info.Reason = domain.MarketAfterHours
	default:
		info.MarketIsOpen = true
		info.Reason = domain.MarketOpen
	}
	return info
}
