package core

// dates.go accepts the date spellings people actually type into a CSV.
//
// No single format is enforced. A fixed layout list is tried first, so the
// common spellings and the two-digit year pivot stay predictable; anything
// else goes to dateparse, which detects the layout from the input. Both end
// in time.Parse, which range-checks month and day, so calendar-invalid
// values such as 2024-13-40 or 2024-02-30 are rejected either way.

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006-1-2", "2006/01/02", "2006/1/2", "2006.01.02",
		"2006", "2006-01",
		time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04Z07:00",
		"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "Jan 2 2006", "January 2, 2006", "January 2 2006",
		"2 Jan 2006", "2 January 2006", "02-Jan-2006",
		"Jan 2006", "January 2006",
		"Mon, 02 Jan 2006", "Mon Jan 2 2006",
		time.RFC1123, time.RFC1123Z,
		"20060102",
	}
)

// ParseDate parses s with the first layout that accepts it, then falls back
// to layout detection. Bare digit strings are only read as the yyyy and
// yyyymmdd layouts, never as Unix timestamps. Returns false when nothing
// matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	if isDigits(s) {
		return time.Time{}, false
	}
	return detectDate(s)
}

// detectDate hands s to dateparse, reading zoneless values as UTC.
func detectDate(s string) (t time.Time, ok bool) {
	// dateparse indexes past the end of some malformed inputs.
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// chartLabel renders the short axis label used by the time-series charts.
func chartLabel(t time.Time) string {
	return t.Format("Jan 2")
}
