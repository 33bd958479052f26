package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
	"gonum.org/v1/gonum/stat"
)

type DayPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Loads int     `json:"loads"`
}

type RollingResult struct {
	Measure      Measure      `json:"measure"`
	Days         int          `json:"days"`
	DaysWithData int          `json:"days_with_data"`
	Value        types.Metric `json:"value"`
	Daily        []DayPoint   `json:"daily"`
}

// RollingAverage averages the daily value of m over the days full calendar
// days before the snapshot date. A day's value is the sum for additive
// measures other than wait, and the per-ticket mean for wait and cycle.
// Days without data do not count.
func RollingAverage(snap *Snapshot, m Measure, days int) RollingResult {
	res := RollingResult{Measure: m, Days: days, Value: types.NaN(), Daily: []DayPoint{}}
	if snap == nil || days <= 0 {
		return res
	}
	prior := window.LastNDays(snap.Slice(window.All), snap.Now, days)
	loc := snap.Now.Location()
	byDay := map[string][]float64{}
	for _, tk := range prior {
		if v := m.Value(tk); !math.IsNaN(v) {
			key := tk.StartTime.In(loc).Format(time.DateOnly)
			byDay[key] = append(byDay[key], v)
		}
	}
	perDay := make([]float64, 0, len(byDay))
	for d, vs := range byDay {
		p := DayPoint{Date: d, Loads: len(vs)}
		if m.Additive() && m != Wait {
			p.Value = nanSum(vs)
		} else {
			p.Value = float64(nanMean(vs))
		}
		res.Daily = append(res.Daily, p)
		perDay = append(perDay, p.Value)
	}
	sort.Slice(res.Daily, func(i, j int) bool { return res.Daily[i].Date < res.Daily[j].Date })
	res.DaysWithData = len(perDay)
	res.Value = nanMean(perDay)
	return res
}

type StageShare struct {
	Stage    string       `json:"stage"`
	AvgMin   types.Metric `json:"avg_min"`
	SharePct types.Metric `json:"share_pct"`
}

// StageBreakdown gives the mean minutes of every stage in cycle order and
// its share of the summed stage means.
func StageBreakdown(slice []types.Ticket) []StageShare {
	out := make([]StageShare, 0, len(types.Stages()))
	var total float64
	for _, s := range types.Stages() {
		vs := make([]float64, 0, len(slice))
		for _, tk := range slice {
			vs = append(vs, tk.Stages[s])
		}
		avg := nanMean(vs)
		if avg.Valid() {
			total += avg.Float()
		}
		out = append(out, StageShare{Stage: s.String(), AvgMin: avg, SharePct: types.NaN()})
	}
	if total > 0 {
		for i := range out {
			if out[i].AvgMin.Valid() {
				out[i].SharePct = types.Metric(out[i].AvgMin.Float() / total * 100)
			}
		}
	}
	return out
}

// Bottleneck is the stage with the largest mean duration.
func Bottleneck(shares []StageShare) (StageShare, bool) {
	best, ok := StageShare{}, false
	for _, s := range shares {
		if s.AvgMin.Valid() && (!ok || s.AvgMin > best.AvgMin) {
			best, ok = s, true
		}
	}
	return best, ok
}

type OutlierResult struct {
	Mean    types.Metric  `json:"mean_rpm"`
	StdDev  types.Metric  `json:"std_rpm"`
	Z       float64       `json:"z"`
	Tickets []TicketValue `json:"tickets"`
}

// DrumRPMOutliers flags tickets whose drum rpm is more than z standard
// deviations from the slice mean. Fewer than two readings flag nothing.
func DrumRPMOutliers(slice []types.Ticket, z float64) OutlierResult {
	res := OutlierResult{Mean: types.NaN(), StdDev: types.NaN(), Z: z, Tickets: []TicketValue{}}
	rpm := make([]float64, 0, len(slice))
	for _, tk := range slice {
		rpm = append(rpm, tk.DrumRPM)
	}
	rpm = finite(rpm)
	if len(rpm) < 2 {
		return res
	}
	mean, std := stat.MeanStdDev(rpm, nil)
	res.Mean, res.StdDev = types.Metric(mean), types.Metric(std)
	if std == 0 {
		return res
	}
	for _, tk := range slice {
		if math.IsNaN(tk.DrumRPM) || math.Abs(tk.DrumRPM-mean) <= z*std {
			continue
		}
		res.Tickets = append(res.Tickets, TicketValue{
			TicketID: tk.TicketID,
			Driver:   tk.Driver,
			Truck:    tk.Truck,
			JobSite:  tk.JobSite,
			Start:    tk.StartTime,
			Value:    tk.DrumRPM,
		})
	}
	sort.SliceStable(res.Tickets, func(i, j int) bool {
		return math.Abs(res.Tickets[i].Value-mean) > math.Abs(res.Tickets[j].Value-mean)
	})
	return res
}

type OnTimeResult struct {
	Evaluated  int          `json:"evaluated"`
	OnTime     int          `json:"on_time"`
	RatePct    types.Metric `json:"rate_pct"`
	AvgLateMin types.Metric `json:"avg_late_min"`
}

// OnTimeRate counts arrivals no later than ETA plus tolerance. Only tickets
// with both ETA and actual arrival are evaluated.
func OnTimeRate(slice []types.Ticket, tolerance time.Duration) OnTimeResult {
	res := OnTimeResult{RatePct: types.NaN(), AvgLateMin: types.NaN()}
	late := []float64{}
	for _, tk := range slice {
		if tk.ETA.IsZero() || tk.ActualArrival.IsZero() {
			continue
		}
		res.Evaluated++
		if !tk.ActualArrival.After(tk.ETA.Add(tolerance)) {
			res.OnTime++
			continue
		}
		late = append(late, tk.ActualArrival.Sub(tk.ETA).Minutes())
	}
	if res.Evaluated > 0 {
		res.RatePct = types.Metric(float64(res.OnTime) / float64(res.Evaluated) * 100)
	}
	if len(late) > 0 {
		res.AvgLateMin = nanMean(late)
	}
	return res
}

// ProjectsOverTarget lists projects whose delivered volume exceeds targetM3.
func ProjectsOverTarget(slice []types.Ticket, targetM3 float64) []GroupValue {
	out := []GroupValue{}
	for _, g := range TopGroups(slice, ByProject, Volume, 0) {
		if g.Value > targetM3 {
			out = append(out, g)
		}
	}
	return out
}

type PaceResult struct {
	TodayM3     float64      `json:"today_m3"`
	TodayLoads  int          `json:"today_loads"`
	DaysUsed    int          `json:"days_used"`
	AvgDailyM3  types.Metric `json:"avg_daily_m3"`
	ShareByNow  types.Metric `json:"share_by_now_pct"`
	ProjectedM3 types.Metric `json:"projected_m3"`
}

// PaceForecast projects today's end-of-day volume. Over the prior days it
// measures what share of a full day's volume was delivered by the current
// clock time, then scales today's volume so far by that share.
func PaceForecast(snap *Snapshot, days int) PaceResult {
	res := PaceResult{AvgDailyM3: types.NaN(), ShareByNow: types.NaN(), ProjectedM3: types.NaN()}
	if snap == nil {
		return res
	}
	today := snap.For(window.Today)
	res.TodayM3, res.TodayLoads = today.TotalVolumeM3, today.Loads
	if days <= 0 {
		return res
	}

	loc := snap.Now.Location()
	sinceMidnight := snap.Now.Sub(window.StartOfDay(snap.Now))
	full := map[string]float64{}
	byNow := map[string]float64{}
	for _, tk := range window.LastNDays(snap.Slice(window.All), snap.Now, days) {
		if math.IsNaN(tk.LoadVolumeM3) {
			continue
		}
		st := tk.StartTime.In(loc)
		key := st.Format(time.DateOnly)
		full[key] += tk.LoadVolumeM3
		if st.Sub(window.StartOfDay(st)) <= sinceMidnight {
			byNow[key] += tk.LoadVolumeM3
		}
	}
	res.DaysUsed = len(full)
	if res.DaysUsed == 0 {
		return res
	}
	var fullSum, nowSum float64
	for d, v := range full {
		fullSum += v
		nowSum += byNow[d]
	}
	res.AvgDailyM3 = types.Metric(fullSum / float64(res.DaysUsed))
	if fullSum <= 0 || nowSum <= 0 {
		return res
	}
	share := nowSum / fullSum
	res.ShareByNow = types.Metric(share * 100)
	res.ProjectedM3 = types.Metric(res.TodayM3 / share)
	return res
}

type TruckProductivity struct {
	Truck    string       `json:"truck"`
	ProdMin  float64      `json:"prod_min"`
	TotalMin float64      `json:"total_min"`
	ProdPct  types.Metric `json:"prod_pct"`
}

// ProductivityByTruck is the per-truck anchor ratio. Trucks whose paired
// rows add up to no total time are left out.
func ProductivityByTruck(slice []types.Ticket) []TruckProductivity {
	byTruck := map[string][]types.Ticket{}
	for _, tk := range slice {
		if tk.Truck != "" {
			byTruck[tk.Truck] = append(byTruck[tk.Truck], tk)
		}
	}
	out := []TruckProductivity{}
	for truck, rows := range byTruck {
		p := productivity(rows)
		if p.TotalMin <= 0 {
			continue
		}
		out = append(out, TruckProductivity{Truck: truck, ProdMin: p.ProdMin, TotalMin: p.TotalMin, ProdPct: p.ProdRatio})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProdPct != out[j].ProdPct {
			return out[i].ProdPct > out[j].ProdPct
		}
		return out[i].Truck < out[j].Truck
	})
	return out
}
