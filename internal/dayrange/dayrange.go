// Package dayrange converts between compact day-range strings ("1-5, 9, 12-15")
// and the fixed-length per-day status arrays stored on daily service logs.
package dayrange

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Marker is a single-character presence marker for one calendar day.
type Marker string

const (
	// MarkerNone marks a day with no activity.
	MarkerNone Marker = ""
	// MarkerPresent marks a day on site.
	MarkerPresent Marker = "X"
	// MarkerTravel marks a travel day.
	MarkerTravel Marker = "T"
)

// Valid reports whether m is one of the known markers.
func (m Marker) Valid() bool {
	switch m {
	case MarkerNone, MarkerPresent, MarkerTravel:
		return true
	}
	return false
}

// ParseDayRange returns the ascending, de-duplicated set of days in spec.
// Tokens are separated by commas and are either a day number or an a-b range.
// Days outside [1, maxDay] and tokens that are not numbers are dropped.
func ParseDayRange(spec string, maxDay int) []int {
	seen := make(map[int]struct{})
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if start, end, ok := strings.Cut(token, "-"); ok {
			from, errFrom := strconv.Atoi(strings.TrimSpace(start))
			to, errTo := strconv.Atoi(strings.TrimSpace(end))
			if errFrom != nil || errTo != nil {
				continue
			}
			from = max(from, 1)
			to = min(to, maxDay)
			for day := from; day <= to; day++ {
				seen[day] = struct{}{}
			}
			continue
		}
		day, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		if day >= 1 && day <= maxDay {
			seen[day] = struct{}{}
		}
	}

	days := make([]int, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// StatusArrayToRangeString renders the days carrying marker as compact runs,
// e.g. "1-3, 5, 7-9". Index 0 of status is day 1.
func StatusArrayToRangeString(status []Marker, marker Marker) string {
	var parts []string
	runStart := 0
	for i := 0; i <= len(status); i++ {
		inRun := i < len(status) && status[i] == marker
		switch {
		case inRun && runStart == 0:
			runStart = i + 1
		case !inRun && runStart != 0:
			runEnd := i
			if runStart == runEnd {
				parts = append(parts, strconv.Itoa(runStart))
			} else {
				parts = append(parts, fmt.Sprintf("%d-%d", runStart, runEnd))
			}
			runStart = 0
		}
	}
	return strings.Join(parts, ", ")
}

// Days lists the 1-based days in status carrying marker.
func Days(status []Marker, marker Marker) []int {
	var days []int
	for i, m := range status {
		if m == marker {
			days = append(days, i+1)
		}
	}
	return days
}

// Count returns the number of days in status carrying any of markers.
func Count(status []Marker, markers ...Marker) int {
	n := 0
	for _, m := range status {
		for _, want := range markers {
			if m == want {
				n++
				break
			}
		}
	}
	return n
}

// BuildStatus builds a status array of the given length from a present-days
// and a travel-days spec. A day listed in both is recorded as present.
func BuildStatus(days int, present, travel string) []Marker {
	if days < 0 {
		days = 0
	}
	status := make([]Marker, days)
	for _, day := range ParseDayRange(travel, days) {
		status[day-1] = MarkerTravel
	}
	for _, day := range ParseDayRange(present, days) {
		status[day-1] = MarkerPresent
	}
	return status
}

// DaysInMonth returns the number of days in the calendar month containing
// dateISO, evaluated in local time. Accepts YYYY-MM-DD or RFC 3339.
func DaysInMonth(dateISO string) (int, error) {
	t, err := ParseDate(dateISO)
	if err != nil {
		return 0, err
	}
	return DaysInMonthOf(t), nil
}

// ParseDate parses a YYYY-MM-DD or RFC 3339 date in local time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(time.DateOnly, value, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(time.Local), nil
	}
	return time.Time{}, fmt.Errorf("dayrange: unable to parse date %q", value)
}

// DaysInMonthOf returns the number of days in the month containing t.
func DaysInMonthOf(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.Local).Day()
}
