package climate

import (
	"fmt"
	"time"
)

// finalHour returns the last hourly timestamp of year, YYYY-12-31T23:00:00Z.
func finalHour(year int) time.Time {
	return time.Date(year, time.December, 31, 23, 0, 0, 0, time.UTC)
}

// TruncateToFullYears keeps only the calendar years whose final hour
// (Dec 31 23:00:00 UTC, matched to the nanosecond) is present in s. Years
// missing that hour are dropped entirely. The input is not modified.
func TruncateToFullYears(s Series) (Series, error) {
	if len(s.ValidTime) != len(s.Values) {
		return Series{}, fmt.Errorf("%w: %d timestamps for %d values", ErrInputShape, len(s.ValidTime), len(s.Values))
	}

	out := Series{Variable: s.Variable}
	if len(s.ValidTime) == 0 {
		return out, nil
	}

	present := make(map[int64]struct{}, len(s.ValidTime))
	minYear, maxYear := s.ValidTime[0].UTC().Year(), s.ValidTime[0].UTC().Year()
	for _, ts := range s.ValidTime {
		if ts.IsZero() {
			return Series{}, fmt.Errorf("%w: zero timestamp", ErrInputShape)
		}
		ts = ts.UTC()
		if ts.Nanosecond() == 0 {
			present[ts.Unix()] = struct{}{}
		}
		if y := ts.Year(); y < minYear {
			minYear = y
		} else if y > maxYear {
			maxYear = y
		}
	}

	keep := make(map[int]struct{})
	for y := minYear; y <= maxYear; y++ {
		if _, ok := present[finalHour(y).Unix()]; ok {
			keep[y] = struct{}{}
		}
	}

	for i, ts := range s.ValidTime {
		if _, ok := keep[ts.UTC().Year()]; !ok {
			continue
		}
		out.ValidTime = append(out.ValidTime, ts)
		out.Values = append(out.Values, s.Values[i])
	}
	return out, nil
}
