package types

import (
	"math"
	"time"
)

// Stage is one step of a delivery cycle, in the order a truck runs them.
type Stage int

const (
	StageDispatch Stage = iota
	StageLoaded
	StageEnRoute
	StageWaiting
	StageDischarging
	StageWashing
	StageBack
	stageCount
)

var stageNames = [stageCount]string{"dispatch", "loaded", "en_route", "waiting", "discharging", "washing", "back"}

// Stages lists every stage in cycle order.
func Stages() []Stage {
	out := make([]Stage, 0, stageCount)
	for s := StageDispatch; s < stageCount; s++ {
		out = append(out, s)
	}
	return out
}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return "unknown"
	}
	return stageNames[s]
}

// Column is the source column name, e.g. "dur_waiting".
func (s Stage) Column() string { return "dur_" + s.String() }

// StageDurations holds per-stage minutes; NaN means the column was absent.
type StageDurations [stageCount]float64

// NoStages returns durations with every stage missing.
func NoStages() StageDurations {
	var d StageDurations
	for i := range d {
		d[i] = math.NaN()
	}
	return d
}

// Ticket is one delivery trip. Missing timestamps are zero times and
// missing numbers are NaN.
type Ticket struct {
	TicketID    string
	Truck       string
	Driver      string
	OriginPlant string
	JobSite     string
	Project     string

	StartTime time.Time
	CycleTime float64 // minutes
	Stages    StageDurations

	DistanceKm   float64
	FuelUsedL    float64
	WaterAddedL  float64
	DrumRPM      float64
	LoadVolumeM3 float64

	IgnitionOn  time.Time
	FirstTicket time.Time
	LastReturn  time.Time
	IgnitionOff time.Time

	ETA           time.Time
	ActualArrival time.Time

	HydraulicPressure  float64
	WashoutDurationMin float64
	SlumpAdjustment    float64
}

// Wait is the waiting-at-site stage in minutes (NaN when absent).
func (t Ticket) Wait() float64 { return t.Stages[StageWaiting] }

// Productivity anchors, in minutes. Each is NaN when either endpoint is missing.

func (t Ticket) MinTotal() float64 { return minutesBetween(t.IgnitionOn, t.IgnitionOff) }
func (t Ticket) MinProd() float64  { return minutesBetween(t.FirstTicket, t.LastReturn) }
func (t Ticket) MinPre() float64   { return minutesBetween(t.IgnitionOn, t.FirstTicket) }
func (t Ticket) MinPost() float64  { return minutesBetween(t.LastReturn, t.IgnitionOff) }

func minutesBetween(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() {
		return math.NaN()
	}
	return to.Sub(from).Minutes()
}
