// Package period defines the qualifying period: one calendar day in the
// operator's configured timezone. At most one complaint is filed per period.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical textual form of a period.
const Layout = "2006-01-02"

// Period is a calendar day in a fixed location.
type Period struct {
	year  int
	month time.Month
	day   int
	loc   *time.Location
}

// Of returns the period containing t, evaluated in loc.
func Of(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Period{year: y, month: m, day: d, loc: loc}
}

// Parse resolves a --date value. Accepted: "", "today", "yesterday", or YYYY-MM-DD.
// An empty value means today.
func Parse(value string, now time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.Local
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "today":
		return Of(now, loc), nil
	case "yesterday":
		return Of(now, loc).Prev(), nil
	}

	t, err := time.ParseInLocation(Layout, strings.TrimSpace(value), loc)
	if err != nil {
		return Period{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD, today or yesterday", value)
	}
	return Of(t, loc), nil
}

// String returns the YYYY-MM-DD form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", p.year, int(p.month), p.day)
}

// IsZero reports whether p was never set.
func (p Period) IsZero() bool {
	return p.year == 0 && p.month == 0 && p.day == 0
}

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.year, p.month, p.day, 0, 0, 0, 0, p.location())
}

// End is the first instant after the period (exclusive bound).
func (p Period) End() time.Time {
	return time.Date(p.year, p.month, p.day+1, 0, 0, 0, 0, p.location())
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && t.Before(p.End())
}

// Prev returns the preceding day.
func (p Period) Prev() Period {
	return Of(time.Date(p.year, p.month, p.day-1, 12, 0, 0, 0, p.location()), p.location())
}

// Location returns the timezone the period is evaluated in.
func (p Period) Location() *time.Location {
	return p.location()
}

func (p Period) location() *time.Location {
	if p.loc == nil {
		return time.Local
	}
	return p.loc
}
