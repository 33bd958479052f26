package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

type DatasetSummary struct {
	TotalTickets int            `json:"total_tickets"`
	First        time.Time      `json:"first_start"`
	Last         time.Time      `json:"last_start"`
	ByPlant      map[string]int `json:"by_plant"`
	Trucks       int            `json:"trucks"`
	Drivers      int            `json:"drivers"`
	Sites        int            `json:"sites"`

	// MissingRate is the share of rows without a value, per column.
	MissingRate     map[string]float64 `json:"missing_rate"`
	TopDriversLoads []string           `json:"top_drivers_by_loads"`
}

// Summarize profiles a loaded table for startup logs and the report header.
func Summarize(tickets []types.Ticket, log *logger.Logger) DatasetSummary {
	if log == nil {
		log = logger.New().Component("dataset.summary")
	}
	ds := DatasetSummary{
		TotalTickets: len(tickets),
		ByPlant:      map[string]int{},
		MissingRate:  map[string]float64{},
	}
	trucks := map[string]struct{}{}
	drivers := map[string]int{}
	sites := map[string]struct{}{}
	missing := map[string]int{}

	check := func(col string, v float64) {
		if math.IsNaN(v) {
			missing[col]++
		}
	}
	for _, t := range tickets {
		if ds.First.IsZero() || t.StartTime.Before(ds.First) {
			ds.First = t.StartTime
		}
		if t.StartTime.After(ds.Last) {
			ds.Last = t.StartTime
		}
		if t.OriginPlant != "" {
			ds.ByPlant[t.OriginPlant]++
		}
		if t.Truck != "" {
			trucks[t.Truck] = struct{}{}
		}
		if t.Driver != "" {
			drivers[t.Driver]++
		}
		if t.JobSite != "" {
			sites[t.JobSite] = struct{}{}
		}
		check(colCycle, t.CycleTime)
		check(colVolume, t.LoadVolumeM3)
		check(colFuel, t.FuelUsedL)
		check(colDistance, t.DistanceKm)
		check(colWater, t.WaterAddedL)
		check(types.StageWaiting.Column(), t.Stages[types.StageWaiting])
		if math.IsNaN(t.MinTotal()) {
			missing["anchors"]++
		}
	}
	ds.Trucks, ds.Drivers, ds.Sites = len(trucks), len(drivers), len(sites)
	if len(tickets) > 0 {
		for col, n := range missing {
			ds.MissingRate[col] = float64(n) / float64(len(tickets))
		}
	}

	type dc struct {
		d string
		c int
	}
	var arr []dc
	for d, c := range drivers {
		arr = append(arr, dc{d, c})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c != arr[j].c {
			return arr[i].c > arr[j].c
		}
		return arr[i].d < arr[j].d
	})
	for i := 0; i < len(arr) && i < 3; i++ {
		ds.TopDriversLoads = append(ds.TopDriversLoads, arr[i].d)
	}

	log.WithFields(map[string]interface{}{
		"total_tickets": ds.TotalTickets,
		"plants":        len(ds.ByPlant),
		"trucks":        ds.Trucks,
		"drivers":       ds.Drivers,
	}).Info("dataset summarization complete")
	return ds
}
