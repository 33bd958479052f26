package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

const dateLayout = "2006-01-02"

// Filter narrows the ticket table before aggregation. Empty fields match
// everything; string matches ignore case. From is inclusive, To exclusive.
type Filter struct {
	Plant   string    `json:"plant,omitempty"`
	Site    string    `json:"site,omitempty"`
	Driver  string    `json:"driver,omitempty"`
	Project string    `json:"project,omitempty"`
	From    time.Time `json:"-"`
	To      time.Time `json:"-"`
}

func (f Filter) IsZero() bool {
	return f.Plant == "" && f.Site == "" && f.Driver == "" && f.Project == "" && f.From.IsZero() && f.To.IsZero()
}

// Key identifies the filter in cache keys.
func (f Filter) Key() string {
	if f.IsZero() {
		return "*"
	}
	return fmt.Sprintf("plant=%s|site=%s|driver=%s|project=%s|from=%s|to=%s",
		strings.ToLower(f.Plant), strings.ToLower(f.Site), strings.ToLower(f.Driver),
		strings.ToLower(f.Project), stamp(f.From), stamp(f.To))
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (f Filter) Match(t types.Ticket) bool {
	switch {
	case f.Plant != "" && !strings.EqualFold(f.Plant, t.OriginPlant):
		return false
	case f.Site != "" && !strings.EqualFold(f.Site, t.JobSite):
		return false
	case f.Driver != "" && !strings.EqualFold(f.Driver, t.Driver):
		return false
	case f.Project != "" && !strings.EqualFold(f.Project, t.Project):
		return false
	case !f.From.IsZero() && t.StartTime.Before(f.From):
		return false
	case !f.To.IsZero() && !t.StartTime.Before(f.To):
		return false
	}
	return true
}

// Apply returns the matching tickets in a new slice; the input is not touched.
func (f Filter) Apply(tickets []types.Ticket) []types.Ticket {
	out := make([]types.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// ParseDateRange reads YYYY-MM-DD bounds in loc. to is inclusive as a day,
// so the stored bound is the next midnight.
func ParseDateRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.ParseInLocation(dateLayout, from, loc); err != nil {
			return f, t, fmt.Errorf("invalid from date %q: %w", from, err)
		}
	}
	if to != "" {
		if t, err = time.ParseInLocation(dateLayout, to, loc); err != nil {
			return f, t, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		t = t.AddDate(0, 0, 1)
	}
	return f, t, nil
}
