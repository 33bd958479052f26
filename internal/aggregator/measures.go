package aggregator

import (
	"fmt"
	"strings"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Measure is a per-ticket quantity the rollups can rank by.
type Measure string

const (
	Water    Measure = "water"
	Wait     Measure = "wait"
	Distance Measure = "distance"
	Fuel     Measure = "fuel"
	Volume   Measure = "volume"
	Cycle    Measure = "cycle"
)

var measures = []Measure{Water, Wait, Distance, Fuel, Volume, Cycle}

// ParseMeasure accepts a measure name or a column name ("water_added_L").
func ParseMeasure(s string) (Measure, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range measures {
		if s == string(m) || strings.HasPrefix(s, string(m)) {
			return m, nil
		}
	}
	switch s {
	case "dur_waiting", "waiting":
		return Wait, nil
	case "load_volume_m3", "m3":
		return Volume, nil
	case "cycle_time":
		return Cycle, nil
	}
	return "", fmt.Errorf("unknown measure %q", s)
}

// Value reads the measure off a ticket (NaN when absent).
func (m Measure) Value(t types.Ticket) float64 {
	switch m {
	case Water:
		return t.WaterAddedL
	case Wait:
		return t.Wait()
	case Distance:
		return t.DistanceKm
	case Fuel:
		return t.FuelUsedL
	case Volume:
		return t.LoadVolumeM3
	case Cycle:
		return t.CycleTime
	}
	return nanValue
}

// Additive measures roll up by sum; the others by mean.
func (m Measure) Additive() bool { return m != Cycle }

func (m Measure) Unit() string {
	switch m {
	case Water, Fuel:
		return "L"
	case Distance:
		return "km"
	case Volume:
		return "m³"
	default:
		return "min"
	}
}

// GroupBy names a ticket dimension for rollups.
type GroupBy string

const (
	ByDriver  GroupBy = "driver"
	ByPlant   GroupBy = "plant"
	BySite    GroupBy = "site"
	ByProject GroupBy = "project"
	ByTruck   GroupBy = "truck"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case ByDriver, ByPlant, BySite, ByProject, ByTruck:
		return g, nil
	case "origin_plant":
		return ByPlant, nil
	case "job_site":
		return BySite, nil
	}
	return "", fmt.Errorf("unknown grouping %q", s)
}

func (g GroupBy) Key(t types.Ticket) string {
	switch g {
	case ByDriver:
		return t.Driver
	case ByPlant:
		return t.OriginPlant
	case BySite:
		return t.JobSite
	case ByProject:
		return t.Project
	case ByTruck:
		return t.Truck
	}
	return ""
}
