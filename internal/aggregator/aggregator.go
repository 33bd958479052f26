package aggregator

import (
	"math"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultOpMinutes is one 10 hour shift per truck.
	DefaultOpMinutes = 600.0

	DieselKgPerL   = 2.68
	GasolineKgPerL = 2.31
)

// Productivity is the fleet-level anchor decomposition. Utilization lives
// on Totals and is a different measure.
type Productivity struct {
	Tickets   int          `json:"tickets"` // rows with both prod and total spans
	TotalMin  float64      `json:"fleet_total_min"`
	ProdMin   float64      `json:"fleet_prod_min"`
	PreMin    float64      `json:"fleet_pre_min"`
	PostMin   float64      `json:"fleet_post_min"`
	ProdRatio types.Metric `json:"prod_ratio"`
	IdleMin   types.Metric `json:"prod_idle_min"`
}

// Totals are the headline KPIs of one window.
type Totals struct {
	Window         window.Window `json:"window"`
	Loads          int           `json:"loads"`
	TotalVolumeM3  float64       `json:"total_volume_m3"`
	AvgVolumeM3    types.Metric  `json:"avg_volume_m3"`
	NTrucks        int           `json:"n_trucks"`
	CycleMinutes   float64       `json:"cycle_minutes"`
	OpMinutes      float64       `json:"op_minutes"`
	UtilizationPct types.Metric  `json:"utilization_pct"`
	AvgCycleMin    types.Metric  `json:"avg_cycle_min"`
	AvgWaitMin     types.Metric  `json:"avg_wait_min"`
	FuelL          float64       `json:"fuel_L"`
	DistanceKm     float64       `json:"distance_km"`
	WaterL         float64       `json:"water_L"`
	Productivity   Productivity  `json:"productivity"`
}

// UtilizationAt recomputes utilization for another shift length.
func (t Totals) UtilizationAt(opMinutes float64) types.Metric {
	return utilization(t.CycleMinutes, opMinutes, t.NTrucks)
}

// CO2Kg converts the window's fuel into emissions with the given factor.
func (t Totals) CO2Kg(factorKgPerL float64) float64 { return t.FuelL * factorKgPerL }

// FuelCost prices the window's fuel. The price always comes from the caller.
func (t Totals) FuelCost(pricePerL float64) float64 { return t.FuelL * pricePerL }

// Snapshot is the per-request bundle of sliced tables and their totals.
type Snapshot struct {
	Now       time.Time                `json:"now"`
	OpMinutes float64                  `json:"op_minutes"`
	Slices    window.Slices            `json:"-"`
	Totals    map[window.Window]Totals `json:"totals"`
}

// Slice returns the table for w (never nil).
func (s *Snapshot) Slice(w window.Window) []types.Ticket {
	if s == nil || s.Slices[w] == nil {
		return []types.Ticket{}
	}
	return s.Slices[w]
}

// For returns the totals of w, or empty totals when w was not computed.
func (s *Snapshot) For(w window.Window) Totals {
	if s != nil {
		if t, ok := s.Totals[w]; ok {
			return t
		}
	}
	op := DefaultOpMinutes
	if s != nil {
		op = s.OpMinutes
	}
	return Summarize(nil, w, op)
}

// ComputeKPIs slices tickets around now and aggregates every standard
// window. The input table is only read. A non-positive opMinutes falls back
// to DefaultOpMinutes.
func ComputeKPIs(tickets []types.Ticket, now time.Time, opMinutes float64) *Snapshot {
	if opMinutes <= 0 {
		opMinutes = DefaultOpMinutes
	}
	slices := window.Slice(tickets, now)
	snap := &Snapshot{
		Now:       now,
		OpMinutes: opMinutes,
		Slices:    slices,
		Totals:    make(map[window.Window]Totals, len(slices)),
	}
	for _, w := range window.Standard {
		snap.Totals[w] = Summarize(slices[w], w, opMinutes)
	}
	return snap
}

// Summarize aggregates one slice. Empty input yields zero sums and NaN
// means and ratios.
func Summarize(slice []types.Ticket, w window.Window, opMinutes float64) Totals {
	t := Totals{Window: w, Loads: len(slice), OpMinutes: opMinutes}

	trucks := map[string]struct{}{}
	volume := make([]float64, 0, len(slice))
	cycle := make([]float64, 0, len(slice))
	wait := make([]float64, 0, len(slice))
	fuel := make([]float64, 0, len(slice))
	dist := make([]float64, 0, len(slice))
	water := make([]float64, 0, len(slice))
	for _, tk := range slice {
		if tk.Truck != "" {
			trucks[tk.Truck] = struct{}{}
		}
		volume = append(volume, tk.LoadVolumeM3)
		cycle = append(cycle, tk.CycleTime)
		wait = append(wait, tk.Wait())
		fuel = append(fuel, tk.FuelUsedL)
		dist = append(dist, tk.DistanceKm)
		water = append(water, tk.WaterAddedL)
	}

	t.NTrucks = len(trucks)
	t.TotalVolumeM3 = nanSum(volume)
	t.AvgVolumeM3 = nanMean(volume)
	t.CycleMinutes = nanSum(cycle)
	t.AvgCycleMin = nanMean(cycle)
	t.AvgWaitMin = nanMean(wait)
	t.FuelL = nanSum(fuel)
	t.DistanceKm = nanSum(dist)
	t.WaterL = nanSum(water)
	t.UtilizationPct = utilization(t.CycleMinutes, opMinutes, t.NTrucks)
	t.Productivity = productivity(slice)
	return t
}

// utilization is never capped: values above 100 surface overtime.
func utilization(cycleMinutes, opMinutes float64, nTrucks int) types.Metric {
	if nTrucks == 0 || opMinutes <= 0 {
		return types.NaN()
	}
	return types.Metric(cycleMinutes / (opMinutes * float64(nTrucks)) * 100)
}

// productivity sums the anchor spans over rows where both the productive
// and the total span are known, so idle time cannot go negative from
// mismatched rows.
func productivity(slice []types.Ticket) Productivity {
	p := Productivity{ProdRatio: types.NaN(), IdleMin: types.NaN()}
	for _, tk := range slice {
		prod, total := tk.MinProd(), tk.MinTotal()
		if math.IsNaN(prod) || math.IsNaN(total) {
			continue
		}
		p.Tickets++
		p.ProdMin += prod
		p.TotalMin += total
		if pre := tk.MinPre(); !math.IsNaN(pre) {
			p.PreMin += pre
		}
		if post := tk.MinPost(); !math.IsNaN(post) {
			p.PostMin += post
		}
	}
	if p.Tickets == 0 || p.TotalMin <= 0 {
		return p
	}
	p.ProdRatio = types.Metric(p.ProdMin / p.TotalMin * 100)
	p.IdleMin = types.Metric(p.TotalMin - p.ProdMin)
	return p
}

func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// nanSum skips missing values; an all-missing column sums to 0.
func nanSum(xs []float64) float64 {
	return floats.Sum(finite(xs))
}

// nanMean skips missing values; an all-missing column is NaN.
func nanMean(xs []float64) types.Metric {
	f := finite(xs)
	if len(f) == 0 {
		return types.NaN()
	}
	return types.Metric(stat.Mean(f, nil))
}
