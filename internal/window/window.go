// Package window slices a ticket table into the standard reporting periods.
package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Window names a reporting period relative to a reference instant.
type Window string

const (
	Today       Window = "today"
	Yesterday   Window = "yesterday"
	Last48h     Window = "last_48h"
	Last7d      Window = "last_7d"
	WeekToDate  Window = "week_to_date"
	MonthToDate Window = "month_to_date"
	YearToDate  Window = "year_to_date"
	All         Window = "all"
)

// Standard lists the windows computed for every snapshot, in display order.
var Standard = []Window{Today, Yesterday, Last48h, Last7d, WeekToDate, MonthToDate, YearToDate, All}

var aliases = map[string]Window{
	"today":         Today,
	"yesterday":     Yesterday,
	"last_48h":      Last48h,
	"48h":           Last48h,
	"last_7d":       Last7d,
	"7d":            Last7d,
	"week":          Last7d,
	"week_to_date":  WeekToDate,
	"wtd":           WeekToDate,
	"month_to_date": MonthToDate,
	"month":         MonthToDate,
	"mtd":           MonthToDate,
	"year_to_date":  YearToDate,
	"year":          YearToDate,
	"ytd":           YearToDate,
	"all":           All,
}

// Parse resolves a window name or alias; "" means Today.
func Parse(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Today, nil
	}
	if w, ok := aliases[strings.ReplaceAll(s, "-", "_")]; ok {
		return w, nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Label is a human phrase for answers ("today", "the last 7 days").
func (w Window) Label() string {
	switch w {
	case Last48h:
		return "the last 48 hours"
	case Last7d:
		return "the last 7 days"
	case WeekToDate:
		return "this week"
	case MonthToDate:
		return "this month"
	case YearToDate:
		return "this year"
	case All:
		return "all loaded data"
	default:
		return string(w)
	}
}

// Slices maps each window to its sub-table. Every table is a fresh slice.
type Slices map[Window][]types.Ticket

// Get returns the table for w, or nil when it was never sliced.
func (s Slices) Get(w Window) []types.Ticket { return s[w] }

// Slice cuts tickets into the standard windows relative to now.
// Calendar boundaries use now's location. The input is not modified.
func Slice(tickets []types.Ticket, now time.Time) Slices {
	loc := now.Location()
	today := StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)
	monday := today.AddDate(0, 0, -daysSinceMonday(today.Weekday()))
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
	since48h := now.Add(-48 * time.Hour)
	since7d := now.Add(-7 * 24 * time.Hour)

	out := Slices{}
	for _, w := range Standard {
		out[w] = []types.Ticket{}
	}
	for _, t := range tickets {
		if t.StartTime.IsZero() {
			continue
		}
		st := t.StartTime.In(loc)
		out[All] = append(out[All], t)
		if !st.Before(today) && st.Before(tomorrow) {
			out[Today] = append(out[Today], t)
		}
		if !st.Before(yesterday) && st.Before(today) {
			out[Yesterday] = append(out[Yesterday], t)
		}
		if !st.Before(since48h) {
			out[Last48h] = append(out[Last48h], t)
		}
		if !st.Before(since7d) {
			out[Last7d] = append(out[Last7d], t)
		}
		if !st.Before(monday) {
			out[WeekToDate] = append(out[WeekToDate], t)
		}
		if !st.Before(monthStart) {
			out[MonthToDate] = append(out[MonthToDate], t)
		}
		if !st.Before(yearStart) {
			out[YearToDate] = append(out[YearToDate], t)
		}
	}
	return out
}

// LastNDays returns tickets from the n full calendar days before now's date,
// excluding today.
func LastNDays(tickets []types.Ticket, now time.Time, n int) []types.Ticket {
	out := []types.Ticket{}
	if n <= 0 {
		return out
	}
	today := StartOfDay(now)
	from := today.AddDate(0, 0, -n)
	for _, t := range tickets {
		if t.StartTime.IsZero() {
			continue
		}
		st := t.StartTime.In(now.Location())
		if !st.Before(from) && st.Before(today) {
			out = append(out, t)
		}
	}
	return out
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func daysSinceMonday(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
