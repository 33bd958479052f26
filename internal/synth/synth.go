// Package synth generates plausible delivery tickets for demos and tests.
// The same Options always produce the same tickets.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

type Place struct {
	Name     string
	Lat, Lon float64
}

var plants = []Place{
	{"Montreal", 45.550, -73.700},
	{"Laval", 45.610, -73.720},
	{"Quebec", 46.820, -71.220},
	{"Drummondville", 45.883, -72.470},
}

var sites = []Place{
	{"Longueuil", 45.530, -73.520},
	{"Trois-Rivieres", 46.350, -72.560},
	{"Sherbrooke", 45.400, -71.900},
	{"Repentigny", 45.740, -73.470},
}

var drivers = []string{"Marc", "Julie", "Antoine", "Sarah", "Luc", "Melanie", "Simon", "Elise"}

const (
	earthRadiusKm = 6371.0
	loadM3        = 10.0
	// average road speed used to turn distance into travel minutes
	kmPerMinute = 1.8
	firstTicket = 10000
)

type Options struct {
	Seed       int64
	Now        time.Time
	DaysBack   int
	JobsPerDay int
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.DaysBack <= 0 {
		o.DaysBack = 3
	}
	if o.JobsPerDay <= 0 {
		o.JobsPerDay = 60
	}
	return o
}

// Haversine is the great-circle distance between two places in km.
func Haversine(a, b Place) float64 {
	lat1, lon1 := a.Lat*math.Pi/180, a.Lon*math.Pi/180
	lat2, lon2 := b.Lat*math.Pi/180, b.Lon*math.Pi/180
	dlat, dlon := lat2-lat1, lon2-lon1
	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Generate returns DaysBack days of tickets ending on the day of Now. Every
// day starts at 06:00 and loads start within the next 12 hours. Each driver
// always drives the same truck.
func Generate(opts Options) []types.Ticket {
	opts = opts.withDefaults()
	r := rand.New(rand.NewSource(opts.Seed))
	base := time.Date(opts.Now.Year(), opts.Now.Month(), opts.Now.Day(), 6, 0, 0, 0, opts.Now.Location())

	out := make([]types.Ticket, 0, opts.DaysBack*opts.JobsPerDay)
	id := firstTicket
	for d := 0; d < opts.DaysBack; d++ {
		dayStart := base.AddDate(0, 0, -d)
		for j := 0; j < opts.JobsPerDay; j++ {
			out = append(out, ticket(r, id, d, dayStart))
			id++
		}
	}
	return out
}

func between(r *rand.Rand, lo, hi int) float64 { return float64(lo + r.Intn(hi-lo+1)) }

func round1(f float64) float64 { return math.Round(f*10) / 10 }

func ticket(r *rand.Rand, id, day int, dayStart time.Time) types.Ticket {
	start := dayStart.Add(time.Duration(r.Intn(12*60+1)) * time.Minute)
	plant := plants[r.Intn(len(plants))]
	site := sites[r.Intn(len(sites))]
	driverIdx := r.Intn(len(drivers))
	km := round1(Haversine(plant, site))
	travel := math.Max(5, math.Floor(km/kmPerMinute))

	var stages types.StageDurations
	stages[types.StageDispatch] = between(r, 8, 20)
	stages[types.StageLoaded] = between(r, 4, 9)
	stages[types.StageEnRoute] = travel
	stages[types.StageWaiting] = between(r, 3, 15)
	stages[types.StageDischarging] = between(r, 8, 18)
	stages[types.StageWashing] = between(r, 4, 9)
	stages[types.StageBack] = travel
	var cycle float64
	for _, v := range stages {
		cycle += v
	}

	minutes := func(m float64) time.Duration { return time.Duration(m * float64(time.Minute)) }
	eta := start.Add(minutes(stages[types.StageDispatch] + stages[types.StageLoaded] + stages[types.StageEnRoute]))
	lastReturn := start.Add(minutes(cycle))

	return types.Ticket{
		TicketID:           fmt.Sprintf("T%d", id),
		Truck:              fmt.Sprintf("TR-%02d", driverIdx+1),
		Driver:             drivers[driverIdx],
		OriginPlant:        plant.Name,
		JobSite:            site.Name,
		Project:            fmt.Sprintf("Project %c", 'A'+rune(day%26)),
		StartTime:          start,
		CycleTime:          cycle,
		Stages:             stages,
		DistanceKm:         km,
		FuelUsedL:          round1(km * (0.35 + 0.20*r.Float64())),
		WaterAddedL:        round1(50 + 100*r.Float64()),
		DrumRPM:            round1(math.Max(0.5, 4+1.2*r.NormFloat64())),
		LoadVolumeM3:       loadM3,
		IgnitionOn:         start.Add(-minutes(between(r, 10, 25))),
		FirstTicket:        start,
		LastReturn:         lastReturn,
		IgnitionOff:        lastReturn.Add(minutes(between(r, 5, 20))),
		ETA:                eta,
		ActualArrival:      eta.Add(minutes(between(r, -5, 12))),
		HydraulicPressure:  round1(150 + 20*r.NormFloat64()),
		WashoutDurationMin: stages[types.StageWashing],
		SlumpAdjustment:    round1(r.Float64() * 2),
	}
}
