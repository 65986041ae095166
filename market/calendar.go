package market

import "time"

// Package market decides whether US equity trading is currently active.
// It is deliberately free of I/O and of tzdata lookups: Eastern time is
// derived from a fixed UTC offset chosen by a per-year DST window table,
// which keeps the check usable in environments without a timezone database.

// dstWindow is the half-open [Start, End) date range during which US
// Eastern observes daylight saving time (EDT, UTC-4) for one year.
// DST starts the second Sunday in March and ends the first Sunday in November.
type dstWindow struct {
	Start string // YYYY-MM-DD, inclusive
	End   string // YYYY-MM-DD, exclusive
}

var dstWindows = map[int]dstWindow{
	2025: {Start: "2025-03-09", End: "2025-11-02"},
	2026: {Start: "2026-03-08", End: "2026-11-01"},
	2027: {Start: "2027-03-14", End: "2027-11-07"},
}

// marketHolidays2025 lists NYSE full-closure dates for 2025
var marketHolidays2025 = []string{
	"2025-01-01", // New Year's Day
	"2025-01-20", // Martin Luther King Jr. Day
	"2025-02-17", // Presidents' Day
	"2025-04-18", // Good Friday
	"2025-05-26", // Memorial Day
	"2025-06-19", // Juneteenth
	"2025-07-04", // Independence Day
	"2025-09-01", // Labor Day
	"2025-11-27", // Thanksgiving Day
	"2025-12-25", // Christmas Day
}

// marketHolidays2026 lists NYSE full-closure dates for 2026
var marketHolidays2026 = []string{
	"2026-01-01", // New Year's Day
	"2026-01-19", // Martin Luther King Jr. Day
	"2026-02-16", // Presidents' Day
	"2026-04-03", // Good Friday
	"2026-05-25", // Memorial Day
	"2026-06-19", // Juneteenth
	"2026-07-03", // Independence Day (observed, July 4th is a Saturday)
	"2026-09-07", // Labor Day
	"2026-11-26", // Thanksgiving Day
	"2026-12-25", // Christmas Day
}

// Calendar answers whether the US equity market is open at a given instant.
// The zero value is not usable; construct with NewCalendar.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar creates a calendar preloaded with the known NYSE holiday sets
func NewCalendar() *Calendar {
	c := &Calendar{holidays: make(map[string]bool)}
	c.AddHolidays(marketHolidays2025)
	c.AddHolidays(marketHolidays2026)
	return c
}

// AddHolidays registers additional full-closure dates (YYYY-MM-DD)
func (c *Calendar) AddHolidays(dates []string) {
	for _, d := range dates {
		c.holidays[d] = true
	}
}

// isDaylightSaving reports whether t falls inside the EDT window of its year.
// Years absent from the table use a month-range approximation (March through
// October counted as DST), which is imprecise for the edge days around the
// actual transition Sundays.
func isDaylightSaving(t time.Time) bool {
	u := t.UTC()
	w, ok := dstWindows[u.Year()]
	if !ok {
		m := u.Month()
		return m >= time.March && m <= time.October
	}
	date := u.Format("2006-01-02")
	return date >= w.Start && date < w.End
}

// ToEastern converts an instant to Eastern wall-clock time using the
// fixed-offset DST rule. The returned time carries a fixed-zone location.
func ToEastern(t time.Time) time.Time {
	if isDaylightSaving(t) {
		return t.In(time.FixedZone("EDT", -4*60*60))
	}
	return t.In(time.FixedZone("EST", -5*60*60))
}

// IsHoliday reports whether the Eastern calendar date of t is a market holiday
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[ToEastern(t).Format("2006-01-02")]
}

// IsTradingDay reports whether t's Eastern date is a regular session day:
// a Monday-Friday that is not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	et := ToEastern(t)
	wd := et.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// IsOpen reports whether the market is in its regular session at t:
// a trading day with Eastern time-of-day in [09:30, 16:00).
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	et := ToEastern(t)
	minutes := et.Hour()*60 + et.Minute()
	const open = 9*60 + 30
	const close = 16 * 60
	return minutes >= open && minutes < close
}
