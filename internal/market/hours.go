package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a minute-granularity time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" into a Clock.
func ParseClock(value string) (Clock, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("parse clock %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", value, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("parse clock %q: out of range", value)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Minutes returns the clock as minutes past midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// AtOrAfter reports whether t, interpreted in its own location, has
// reached the clock value at minute granularity.
func (c Clock) AtOrAfter(t time.Time) bool {
	return t.Hour()*60+t.Minute() >= c.Minutes()
}

// Hours is the trading-session gate: weekdays within [Open, Close] in the
// exchange timezone. Comparisons are at minute granularity, so the whole
// closing minute still counts as in-session (the end-of-day reset pass
// depends on that).
type Hours struct {
	Location *time.Location
	Open     Clock
	Close    Clock
}

// NewHours builds a session gate from config strings.
func NewHours(timezone, open, close string) (Hours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Hours{}, fmt.Errorf("load market timezone: %w", err)
	}
	openClock, err := ParseClock(open)
	if err != nil {
		return Hours{}, err
	}
	closeClock, err := ParseClock(close)
	if err != nil {
		return Hours{}, err
	}
	return Hours{Location: loc, Open: openClock, Close: closeClock}, nil
}

// IsOpen reports whether t falls inside the trading session.
func (h Hours) IsOpen(t time.Time) bool {
	local := t.In(h.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= h.Open.Minutes() && minutes <= h.Close.Minutes()
}
