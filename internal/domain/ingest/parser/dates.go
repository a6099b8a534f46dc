package parser

import (
	"strconv"
	"time"
)

// calendarDate builds a UTC date and rejects impossible ones such as 02/30.
// Two-digit years are read as 20YY; other widths except four digits are rejected.
func calendarDate(y, m, d string) (time.Time, bool) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return time.Time{}, false
	}
	switch len(y) {
	case 2:
		year += 2000
	case 4:
	default:
		return time.Time{}, false
	}

	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(d)
	if err != nil || day < 1 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
