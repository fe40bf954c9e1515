package quotes

import (
	"fmt"
	"time"
)

// MarketHours reports whether the US equity session (NYSE/NASDAQ) is
// currently trading. The scheduled refresh uses it to avoid hammering
// the quote API while prices cannot move.
type MarketHours struct {
	loc *time.Location
}

// usMarketHolidays are full-day closures, keyed by YYYY-MM-DD in
// exchange-local time.
var usMarketHolidays = map[string]bool{
	// 2025
	"2025-01-01": true, // New Year's Day
	"2025-01-20": true, // Martin Luther King Jr. Day
	"2025-02-17": true, // Washington's Birthday
	"2025-04-18": true, // Good Friday
	"2025-05-26": true, // Memorial Day
	"2025-06-19": true, // Juneteenth
	"2025-07-04": true, // Independence Day
	"2025-09-01": true, // Labor Day
	"2025-11-27": true, // Thanksgiving
	"2025-12-25": true, // Christmas
	// 2026
	"2026-01-01": true, // New Year's Day
	"2026-01-19": true, // Martin Luther King Jr. Day
	"2026-02-16": true, // Washington's Birthday
	"2026-04-03": true, // Good Friday
	"2026-05-25": true, // Memorial Day
	"2026-06-19": true, // Juneteenth
	"2026-07-03": true, // Independence Day (observed)
	"2026-09-07": true, // Labor Day
	"2026-11-26": true, // Thanksgiving
	"2026-12-25": true, // Christmas
}

// usMarketEarlyCloses are half days where the session ends at 13:00.
var usMarketEarlyCloses = map[string]bool{
	"2025-07-03": true,
	"2025-11-28": true,
	"2025-12-24": true,
	"2026-11-27": true,
	"2026-12-24": true,
}

// NewMarketHours builds the calendar. It fails if the tzdata for
// America/New_York is not available on the host.
func NewMarketHours() (*MarketHours, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	return &MarketHours{loc: loc}, nil
}

// IsOpen reports whether the regular session is trading at t.
// Pre-market and after-hours sessions count as closed.
func (m *MarketHours) IsOpen(t time.Time) bool {
	local := t.In(m.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	day := local.Format("2006-01-02")
	if usMarketHolidays[day] {
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, m.loc)
	closeHour := 16
	if usMarketEarlyCloses[day] {
		closeHour = 13
	}
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, 0, 0, 0, m.loc)

	return !local.Before(open) && local.Before(close)
}
