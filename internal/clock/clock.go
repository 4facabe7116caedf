// Package clock holds the wall clock and the local-timezone calendar math used
// to scope trips and refills to days and months.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Used by tests and batch tools.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// Range is an inclusive [From, To] interval in UTC.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Zone converts between local calendar concepts and UTC storage instants.
type Zone struct {
	Loc *time.Location
}

// LoadZone resolves an IANA zone name such as "America/Sao_Paulo".
func LoadZone(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return Zone{Loc: loc}, nil
}

// CurrentMonth formats the local month containing now as YYYY-MM.
func (z Zone) CurrentMonth(now time.Time) string {
	return now.In(z.Loc).Format("2006-01")
}

// MonthRange returns local 00:00 of the first day through the next month minus
// one second, expressed in UTC.
func (z Zone) MonthRange(month string) (Range, error) {
	start, err := time.ParseInLocation("2006-01", strings.TrimSpace(month), z.Loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}
	return z.span(start, start.AddDate(0, 1, 0)), nil
}

// YearRange covers the whole local calendar year.
func (z Zone) YearRange(year int) Range {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, z.Loc)
	return z.span(start, start.AddDate(1, 0, 0))
}

// DayRange covers the local calendar day containing now.
func (z Zone) DayRange(now time.Time) Range {
	local := now.In(z.Loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.Loc)
	return z.span(start, start.AddDate(0, 0, 1))
}

// DateRange parses a local DD/MM/YYYY date and returns that day.
func (z Zone) DateRange(date string) (Range, error) {
	day, err := time.ParseInLocation("02/01/2006", strings.TrimSpace(date), z.Loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid date %q, expected DD/MM/YYYY", date)
	}
	return z.DayRange(day), nil
}

func (z Zone) span(start, next time.Time) Range {
	return Range{From: start.UTC(), To: next.Add(-time.Second).UTC()}
}

// ApplyTimeOfDay replaces the local time of day of now with hhmm ("HH:MM").
// An empty or unparsable value keeps now. It returns the UTC instant and the
// local HH:MM actually used.
func (z Zone) ApplyTimeOfDay(now time.Time, hhmm string) (time.Time, string) {
	local := now.In(z.Loc)
	if h, m, ok := parseTimeOfDay(hhmm); ok {
		local = time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, z.Loc)
	}
	return local.UTC(), local.Format("15:04")
}

// Format renders t in the local zone.
func (z Zone) Format(t time.Time, layout string) string {
	return t.In(z.Loc).Format(layout)
}

func parseTimeOfDay(s string) (int, int, bool) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || len(ms) != 2 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// FormatDuration renders d as HH:MM, hours unbounded.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
