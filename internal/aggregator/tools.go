package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
	"gonum.org/v1/gonum/stat"
)

// The functions below are the named "tools": each takes a slice plus
// explicit parameters and returns a small structured result, no prose.

var nanValue = math.NaN()

type VolumeResult struct {
	Period window.Window `json:"period"`
	Date   string        `json:"date,omitempty"`
	M3     float64       `json:"m3"`
	Loads  int           `json:"loads"`
}

// ComputeVolume reports delivered volume for one window of the snapshot.
func ComputeVolume(snap *Snapshot, w window.Window) VolumeResult {
	t := snap.For(w)
	res := VolumeResult{Period: w, M3: t.TotalVolumeM3, Loads: t.Loads}
	switch w {
	case window.Today:
		res.Date = snap.Now.Format(time.DateOnly)
	case window.Yesterday:
		res.Date = snap.Now.AddDate(0, 0, -1).Format(time.DateOnly)
	}
	return res
}

type UtilizationComparison struct {
	Window       window.Window `json:"window"`
	ActualPct    types.Metric  `json:"actual_pct"`
	BenchmarkPct float64       `json:"benchmark_pct"`
	DeltaPct     types.Metric  `json:"delta_pct"`
}

func CompareUtilization(t Totals, benchmarkPct float64) UtilizationComparison {
	return UtilizationComparison{
		Window:       t.Window,
		ActualPct:    t.UtilizationPct,
		BenchmarkPct: benchmarkPct,
		DeltaPct:     t.UtilizationPct - types.Metric(benchmarkPct),
	}
}

type HourWait struct {
	Hour       int     `json:"hour"`
	AvgWaitMin float64 `json:"avg_wait_min"`
	Loads      int     `json:"loads"`
}

// WaitByHour averages dur_waiting by start hour in loc, hours ascending.
func WaitByHour(slice []types.Ticket, loc *time.Location) []HourWait {
	if loc == nil {
		loc = time.Local
	}
	byHour := map[int][]float64{}
	for _, tk := range slice {
		if w := tk.Wait(); !math.IsNaN(w) && !tk.StartTime.IsZero() {
			h := tk.StartTime.In(loc).Hour()
			byHour[h] = append(byHour[h], w)
		}
	}
	out := make([]HourWait, 0, len(byHour))
	for h, ws := range byHour {
		out = append(out, HourWait{Hour: h, AvgWaitMin: stat.Mean(ws, nil), Loads: len(ws)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}

type DriverRate struct {
	Driver    string  `json:"driver"`
	M3PerHour float64 `json:"m3_per_hour"`
	Loads     int     `json:"loads"`
}

// DriverEfficiency ranks drivers by the mean of load_volume_m3/(cycle_time/60)
// over their tickets. Tickets without a positive cycle time are skipped.
func DriverEfficiency(slice []types.Ticket, topN int) []DriverRate {
	rates := map[string][]float64{}
	for _, tk := range slice {
		if tk.Driver == "" || !(tk.CycleTime > 0) || math.IsNaN(tk.LoadVolumeM3) {
			continue
		}
		rates[tk.Driver] = append(rates[tk.Driver], tk.LoadVolumeM3/(tk.CycleTime/60))
	}
	out := make([]DriverRate, 0, len(rates))
	for d, rs := range rates {
		out = append(out, DriverRate{Driver: d, M3PerHour: stat.Mean(rs, nil), Loads: len(rs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].M3PerHour != out[j].M3PerHour {
			return out[i].M3PerHour > out[j].M3PerHour
		}
		return out[i].Driver < out[j].Driver
	})
	return head(out, topN)
}

type GroupValue struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Loads int     `json:"loads"`
}

// TopGroups rolls m up per group (sum, or mean for non-additive measures)
// and returns the n largest. n <= 0 returns every group.
func TopGroups(slice []types.Ticket, by GroupBy, m Measure, n int) []GroupValue {
	vals := map[string][]float64{}
	for _, tk := range slice {
		key := by.Key(tk)
		v := m.Value(tk)
		if key == "" || math.IsNaN(v) {
			continue
		}
		vals[key] = append(vals[key], v)
	}
	out := make([]GroupValue, 0, len(vals))
	for k, vs := range vals {
		g := GroupValue{Key: k, Loads: len(vs), Value: nanSum(vs)}
		if !m.Additive() {
			g.Value = float64(nanMean(vs))
		}
		out = append(out, g)
	}
	sortGroups(out)
	return head(out, n)
}

// CycleTimeByPlant is the mean cycle time per origin plant, slowest first.
func CycleTimeByPlant(slice []types.Ticket) []GroupValue {
	return TopGroups(slice, ByPlant, Cycle, 0)
}

type TicketValue struct {
	TicketID string    `json:"ticket_id"`
	Driver   string    `json:"driver"`
	Truck    string    `json:"truck"`
	JobSite  string    `json:"job_site"`
	Start    time.Time `json:"start_time"`
	Value    float64   `json:"value"`
}

// TopTickets returns the n tickets with the largest m, descending.
func TopTickets(slice []types.Ticket, m Measure, n int) []TicketValue {
	return head(ticketsWhere(slice, m, func(float64) bool { return true }), n)
}

// DistanceOverKm lists tickets with distance_km strictly above km, farthest first.
func DistanceOverKm(slice []types.Ticket, km float64) []TicketValue {
	return ticketsWhere(slice, Distance, func(v float64) bool { return v > km })
}

// WaterOver lists tickets with water_added_L strictly above litres.
func WaterOver(slice []types.Ticket, litres float64) []TicketValue {
	return ticketsWhere(slice, Water, func(v float64) bool { return v > litres })
}

func ticketsWhere(slice []types.Ticket, m Measure, keep func(float64) bool) []TicketValue {
	out := []TicketValue{}
	for _, tk := range slice {
		v := m.Value(tk)
		if math.IsNaN(v) || !keep(v) {
			continue
		}
		out = append(out, TicketValue{
			TicketID: tk.TicketID,
			Driver:   tk.Driver,
			Truck:    tk.Truck,
			JobSite:  tk.JobSite,
			Start:    tk.StartTime,
			Value:    v,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

type DayValue struct {
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	FuelL      float64 `json:"fuel_L"`
	DistanceKm float64 `json:"distance_km"`
}

// FuelPerKmOver returns the days whose fuel L/km exceeds threshold, worst first.
// Days without distance are skipped.
func FuelPerKmOver(slice []types.Ticket, threshold float64, loc *time.Location) []DayValue {
	if loc == nil {
		loc = time.Local
	}
	days := map[string]*DayValue{}
	for _, tk := range slice {
		if tk.StartTime.IsZero() || math.IsNaN(tk.FuelUsedL) || math.IsNaN(tk.DistanceKm) {
			continue
		}
		key := tk.StartTime.In(loc).Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &DayValue{Date: key}
			days[key] = d
		}
		d.FuelL += tk.FuelUsedL
		d.DistanceKm += tk.DistanceKm
	}
	out := []DayValue{}
	for _, d := range days {
		if d.DistanceKm <= 0 {
			continue
		}
		d.Value = d.FuelL / d.DistanceKm
		if d.Value > threshold {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Date < out[j].Date
	})
	return out
}

type CostResult struct {
	FuelL     float64 `json:"fuel_L"`
	PricePerL float64 `json:"price_per_L"`
	Cost      float64 `json:"cost"`
}

func FuelCost(slice []types.Ticket, pricePerL float64) CostResult {
	t := Summarize(slice, "", DefaultOpMinutes)
	return CostResult{FuelL: t.FuelL, PricePerL: pricePerL, Cost: t.FuelCost(pricePerL)}
}

type EmissionResult struct {
	FuelL        float64 `json:"fuel_L"`
	FactorKgPerL float64 `json:"factor_kg_per_L"`
	CO2Kg        float64 `json:"co2_kg"`
}

func CO2(slice []types.Ticket, factorKgPerL float64) EmissionResult {
	t := Summarize(slice, "", DefaultOpMinutes)
	return EmissionResult{FuelL: t.FuelL, FactorKgPerL: factorKgPerL, CO2Kg: t.CO2Kg(factorKgPerL)}
}

func head[T any](xs []T, n int) []T {
	if n > 0 && len(xs) > n {
		return xs[:n]
	}
	return xs
}

func sortGroups(gs []GroupValue) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].Value != gs[j].Value {
			return gs[i].Value > gs[j].Value
		}
		return gs[i].Key < gs[j].Key
	})
}
