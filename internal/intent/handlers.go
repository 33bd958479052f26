package intent

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/actionable"
	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// Defaults used when the question does not give a number.
const (
	defaultDistanceKm  = 40.0
	defaultWaterL      = 100.0
	defaultFuelPerKm   = 0.55
	defaultTargetM3    = 10.0
	defaultRPMZ        = 2.0
	defaultOnTimeSlack = 5 * time.Minute
	defaultDays        = 7
	listLimit          = 10
)

func count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func loads(n int) string { return count(n, "load") }

func hasValues(slice []types.Ticket, m aggregator.Measure) bool {
	for _, tk := range slice {
		if !math.IsNaN(m.Value(tk)) {
			return true
		}
	}
	return false
}

// metricIn finds the measure a ranking question is about.
func metricIn(t text) (aggregator.Measure, bool) {
	switch {
	case t.any("water"):
		return aggregator.Water, true
	case t.any("wait*"):
		return aggregator.Wait, true
	case t.any("distance", "km", "kms", "kilomet*", "kilometr*", "drove", "driven", "farthest", "furthest"):
		return aggregator.Distance, true
	case t.any("fuel", "diesel"):
		return aggregator.Fuel, true
	case t.any(volumeWords...):
		return aggregator.Volume, true
	case t.any("cycle*"):
		return aggregator.Cycle, true
	}
	return "", false
}

func groupIn(t text) aggregator.GroupBy {
	switch {
	case t.any("plant*"):
		return aggregator.ByPlant
	case t.any("site*"):
		return aggregator.BySite
	case t.any("project*"):
		return aggregator.ByProject
	case t.any("truck*"):
		return aggregator.ByTruck
	}
	return aggregator.ByDriver
}

func quickWins(q query) (string, bool) {
	if len(q.snap.Slice(window.All)) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("Quick wins:")
	for i, c := range actionable.QuickWins(q.snap, q.benchmark) {
		fmt.Fprintf(&b, "\n%d. %s. %s (%s).", i+1, c.Insight, c.Action, c.Impact)
	}
	return b.String(), true
}

func summary(q query) (string, bool) {
	w := q.windowOr(window.Today)
	t := q.snap.For(w)
	if t.Loads == 0 {
		return "", false
	}
	s := fmt.Sprintf("Summary for %s: %s totaling **%.1f m³** with %d trucks", w.Label(), loads(t.Loads), t.TotalVolumeM3, t.NTrucks)
	if t.AvgVolumeM3.Valid() {
		s += fmt.Sprintf(", average load %.1f m³", t.AvgVolumeM3.Float())
	}
	if t.UtilizationPct.Valid() {
		s += fmt.Sprintf(", utilization %.1f%%", t.UtilizationPct.Float())
	}
	if t.AvgWaitMin.Valid() {
		s += fmt.Sprintf(", average wait %.1f min", t.AvgWaitMin.Float())
	}
	return s + ".", true
}

func fuelCost(q query) (string, bool) {
	price, ok := ExtractPrice(q.lower)
	if !ok {
		return "", false
	}
	w := q.windowOr(window.Today)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Fuel) {
		return "", false
	}
	res := aggregator.FuelCost(slice, price)
	return fmt.Sprintf("Fuel cost for %s: **$%.2f** (%.1f L at $%.2f/L).", w.Label(), res.Cost, res.FuelL, price), true
}

func co2(q query) (string, bool) {
	w := q.windowOr(window.Today)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Fuel) {
		return "", false
	}
	factor, kind := aggregator.DieselKgPerL, "diesel"
	if f, ok := ExtractFactor(q.lower); ok {
		factor, kind = f, "custom"
	} else if q.any("gasoline", "gas", "petrol") {
		factor, kind = aggregator.GasolineKgPerL, "gasoline"
	}
	res := aggregator.CO2(slice, factor)
	return fmt.Sprintf("CO₂ for %s: **%.1f kg** from %.1f L of fuel (%s factor %.2f kg/L).", w.Label(), res.CO2Kg, res.FuelL, kind, factor), true
}

func fuelPerKm(q query) (string, bool) {
	thr, ok := ExtractThreshold(q.lower)
	if !ok {
		thr = defaultFuelPerKm
	}
	w := q.windowOr(window.Last7d)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Fuel) || !hasValues(slice, aggregator.Distance) {
		return "", false
	}
	days := aggregator.FuelPerKmOver(slice, thr, q.snap.Now.Location())
	if len(days) == 0 {
		return fmt.Sprintf("No day %s went above %.2f L/km.", inPhrase(w), thr), true
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%s %.2f L/km (%.1f L over %.1f km)", d.Date, d.Value, d.FuelL, d.DistanceKm))
	}
	return fmt.Sprintf("%s above %.2f L/km %s: %s.", count(len(days), "day"), thr, inPhrase(w), strings.Join(parts, "; ")), true
}

func ticketList(rows []aggregator.TicketValue, unit string) string {
	shown := rows
	if len(shown) > listLimit {
		shown = shown[:listLimit]
	}
	parts := make([]string, 0, len(shown))
	for _, r := range shown {
		who := r.Driver
		if who == "" {
			who = r.Truck
		}
		parts = append(parts, fmt.Sprintf("%s %.1f %s (%s)", r.TicketID, r.Value, unit, who))
	}
	s := strings.Join(parts, "; ")
	if extra := len(rows) - len(shown); extra > 0 {
		s += fmt.Sprintf("; and %d more", extra)
	}
	return s
}

func distanceOver(q query) (string, bool) {
	km, ok := ExtractThreshold(q.lower)
	if !ok {
		km = defaultDistanceKm
	}
	w := q.windowOr(window.Last7d)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Distance) {
		return "", false
	}
	rows := aggregator.DistanceOverKm(slice, km)
	if len(rows) == 0 {
		return fmt.Sprintf("No ticket %s was longer than %.0f km.", inPhrase(w), km), true
	}
	return fmt.Sprintf("%s over %.0f km %s: %s.", count(len(rows), "ticket"), km, inPhrase(w), ticketList(rows, "km")), true
}

func waterOver(q query) (string, bool) {
	litres, ok := ExtractThreshold(q.lower)
	if !ok {
		litres = defaultWaterL
	}
	w := q.windowOr(window.Last7d)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Water) {
		return "", false
	}
	rows := aggregator.WaterOver(slice, litres)
	if len(rows) == 0 {
		return fmt.Sprintf("No ticket %s had more than %.0f L of water added.", inPhrase(w), litres), true
	}
	return fmt.Sprintf("%s with more than %.0f L of water %s: %s.", count(len(rows), "ticket"), litres, inPhrase(w), ticketList(rows, "L")), true
}

func drumRPM(q query) (string, bool) {
	w := q.windowOr(window.Last7d)
	res := aggregator.DrumRPMOutliers(q.snap.Slice(w), defaultRPMZ)
	if !res.Mean.Valid() {
		return "", false
	}
	head := fmt.Sprintf("Drum speed %s averages %.1f rpm (σ %.1f).", inPhrase(w), res.Mean.Float(), res.StdDev.Float())
	if len(res.Tickets) == 0 {
		return head + " No ticket is outside 2σ.", true
	}
	return fmt.Sprintf("%s %s beyond 2σ: %s.", head, count(len(res.Tickets), "outlier"), ticketList(res.Tickets, "rpm")), true
}

func onTime(q query) (string, bool) {
	slack := defaultOnTimeSlack
	if m, ok := ExtractMinutes(q.lower); ok {
		slack = time.Duration(m * float64(time.Minute))
	}
	w := q.windowOr(window.Last7d)
	res := aggregator.OnTimeRate(q.snap.Slice(w), slack)
	if res.Evaluated == 0 {
		return "", false
	}
	s := fmt.Sprintf("On-time delivery %s: **%.1f%%** (%d of %d within %.0f min of ETA).",
		inPhrase(w), res.RatePct.Float(), res.OnTime, res.Evaluated, slack.Minutes())
	if res.AvgLateMin.Valid() {
		s += fmt.Sprintf(" Late arrivals average %.1f min behind.", res.AvgLateMin.Float())
	}
	return s, true
}

func projectsOverTarget(q query) (string, bool) {
	target, ok := ExtractThreshold(q.lower)
	if !ok {
		target = defaultTargetM3
	}
	w := q.windowOr(window.MonthToDate)
	slice := q.snap.Slice(w)
	if !hasValues(slice, aggregator.Volume) {
		return "", false
	}
	over := aggregator.ProjectsOverTarget(slice, target)
	if len(over) == 0 {
		return fmt.Sprintf("No project went over %.1f m³ %s.", target, inPhrase(w)), true
	}
	parts := make([]string, 0, len(over))
	for _, g := range over {
		parts = append(parts, fmt.Sprintf("%s %.1f m³", g.Key, g.Value))
	}
	return fmt.Sprintf("%s over %.1f m³ %s: %s.", count(len(over), "project"), target, inPhrase(w), strings.Join(parts, "; ")), true
}

func paceForecast(q query) (string, bool) {
	days, ok := ExtractDays(q.lower)
	if !ok {
		days = defaultDays
	}
	res := aggregator.PaceForecast(q.snap, days)
	if res.TodayLoads == 0 || !res.ProjectedM3.Valid() {
		return "", false
	}
	return fmt.Sprintf("At the current pace today should close near **%.1f m³** (%.1f m³ so far, %s). Over the last %d days %.0f%% of the volume was in by this time and a full day averaged %.1f m³.",
		res.ProjectedM3.Float(), res.TodayM3, loads(res.TodayLoads), days, res.ShareByNow.Float(), res.AvgDailyM3.Float()), true
}

func stageBottleneck(q query) (string, bool) {
	w := q.windowOr(window.Last7d)
	top, ok := aggregator.Bottleneck(aggregator.StageBreakdown(q.snap.Slice(w)))
	if !ok {
		return "", false
	}
	s := fmt.Sprintf("The longest stage %s is **%s** at %.1f min on average", inPhrase(w), strings.ReplaceAll(top.Stage, "_", " "), top.AvgMin.Float())
	if top.SharePct.Valid() {
		s += fmt.Sprintf(" (%.0f%% of the cycle)", top.SharePct.Float())
	}
	return s + ".", true
}

func cycleByPlant(q query) (string, bool) {
	w := q.windowOr(window.Last7d)
	groups := aggregator.CycleTimeByPlant(q.snap.Slice(w))
	if len(groups) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s %.1f min (%s)", g.Key, g.Value, loads(g.Loads)))
	}
	return fmt.Sprintf("Average cycle time by plant %s: %s.", inPhrase(w), strings.Join(parts, "; ")), true
}

func driverEfficiency(q query) (string, bool) {
	n, ok := ExtractTopN(q.lower)
	if !ok {
		n = 3
	}
	w := q.windowOr(window.Last7d)
	rates := aggregator.DriverEfficiency(q.snap.Slice(w), n)
	if len(rates) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(rates))
	for i, r := range rates {
		parts = append(parts, fmt.Sprintf("%d. %s %.1f m³/h (%s)", i+1, r.Driver, r.M3PerHour, loads(r.Loads)))
	}
	return fmt.Sprintf("Most efficient drivers %s: %s.", inPhrase(w), strings.Join(parts, "; ")), true
}

func siteIdle(q query) (string, bool) {
	w := q.windowOr(window.Last7d)
	var best aggregator.GroupValue
	found := false
	for _, g := range aggregator.TopGroups(q.snap.Slice(w), aggregator.BySite, aggregator.Wait, 0) {
		avg := g.Value / float64(g.Loads)
		if !found || avg > best.Value {
			best, found = aggregator.GroupValue{Key: g.Key, Value: avg, Loads: g.Loads}, true
		}
	}
	if !found {
		return "", false
	}
	return fmt.Sprintf("Trucks sit longest at **%s**: %.1f min average wait over %s %s.", best.Key, best.Value, loads(best.Loads), inPhrase(w)), true
}

func topWaitTickets(q query) (string, bool) {
	n, ok := ExtractTopN(q.lower)
	if !ok {
		n = 5
	}
	w := q.windowOr(window.Last7d)
	rows := aggregator.TopTickets(q.snap.Slice(w), aggregator.Wait, n)
	if len(rows) == 0 {
		return "", false
	}
	return fmt.Sprintf("Longest waits %s: %s.", inPhrase(w), ticketList(rows, "min")), true
}

func topByMetric(q query) (string, bool) {
	m, _ := metricIn(q.text)
	by := groupIn(q.text)
	n, ok := ExtractTopN(q.lower)
	if !ok {
		n = 1
	}
	w := q.windowOr(window.Last7d)
	groups := aggregator.TopGroups(q.snap.Slice(w), by, m, n)
	if len(groups) == 0 {
		return "", false
	}
	if len(groups) == 1 {
		g := groups[0]
		return fmt.Sprintf("Top %s by %s %s: **%s** with %.1f %s over %s.", by, m, inPhrase(w), g.Key, g.Value, m.Unit(), loads(g.Loads)), true
	}
	parts := make([]string, 0, len(groups))
	for i, g := range groups {
		parts = append(parts, fmt.Sprintf("%d. %s %.1f %s (%s)", i+1, g.Key, g.Value, m.Unit(), loads(g.Loads)))
	}
	return fmt.Sprintf("Top %d %ss by %s %s: %s.", len(groups), by, m, inPhrase(w), strings.Join(parts, "; ")), true
}

func waitByHour(q query) (string, bool) {
	w := q.windowOr(window.Today)
	series := aggregator.WaitByHour(q.snap.Slice(w), q.snap.Now.Location())
	if len(series) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(series))
	peak := series[0]
	for _, h := range series {
		parts = append(parts, fmt.Sprintf("%02d:00 %.1f min", h.Hour, h.AvgWaitMin))
		if h.AvgWaitMin > peak.AvgWaitMin {
			peak = h
		}
	}
	return fmt.Sprintf("Average wait by start hour %s: %s. Peak at %02d:00.", inPhrase(w), strings.Join(parts, "; "), peak.Hour), true
}

func waitRolling(q query) (string, bool) {
	days, ok := ExtractDays(q.lower)
	if !ok {
		days = defaultDays
	}
	res := aggregator.RollingAverage(q.snap, aggregator.Wait, days)
	if res.DaysWithData == 0 {
		return "", false
	}
	s := fmt.Sprintf("Average wait over the last %d days: **%.1f min** (%d days with data).", days, res.Value.Float(), res.DaysWithData)
	if today := q.snap.For(window.Today).AvgWaitMin; today.Valid() {
		s += fmt.Sprintf(" Today so far: %.1f min.", today.Float())
	}
	return s, true
}

func avgWait(q query) (string, bool) {
	w := q.windowOr(window.Today)
	t := q.snap.For(w)
	if !t.AvgWaitMin.Valid() {
		return "", false
	}
	return fmt.Sprintf("Average wait %s is **%.1f min** across %s.", labelPhrase(w), t.AvgWaitMin.Float(), loads(t.Loads)), true
}

func utilizationBenchmark(q query) (string, bool) {
	w := q.windowOr(window.Today)
	t := q.snap.For(w)
	op := t.OpMinutes
	if h, ok := ExtractHours(q.lower); ok {
		op = h * 60
	}
	util := t.UtilizationAt(op)
	if !util.Valid() {
		return "", false
	}
	bench, ok := ExtractPercent(q.lower)
	if !ok {
		bench = q.benchmark
	}
	delta := util.Float() - bench
	dir := "above"
	if delta < 0 {
		dir = "below"
	}
	return fmt.Sprintf("Utilization %s is **%.1f%%** against the %.0f%% benchmark (%.1f points %s), from %.0f cycle minutes over %d trucks at %.0f op-minutes each.",
		labelPhrase(w), util.Float(), bench, math.Abs(delta), dir, t.CycleMinutes, t.NTrucks, op), true
}

func productivity(q query) (string, bool) {
	w := q.windowOr(window.Today)
	p := q.snap.For(w).Productivity
	if !p.ProdRatio.Valid() {
		return "", false
	}
	return fmt.Sprintf("Productivity ratio %s is **%.1f%%**: %.0f productive of %.0f engine-on minutes, %.0f idle minutes before the first ticket and after the last return (%s).",
		labelPhrase(w), p.ProdRatio.Float(), p.ProdMin, p.TotalMin, p.IdleMin.Float(), loads(p.Tickets)), true
}

func volumeCompare(q query) (string, bool) {
	today := aggregator.ComputeVolume(q.snap, window.Today)
	yesterday := aggregator.ComputeVolume(q.snap, window.Yesterday)
	if today.Loads == 0 && yesterday.Loads == 0 {
		return "", false
	}
	return fmt.Sprintf("Today: **%.1f m³** over %s vs yesterday: **%.1f m³** over %s (%+.1f m³).",
		today.M3, loads(today.Loads), yesterday.M3, loads(yesterday.Loads), today.M3-yesterday.M3), true
}

func loadsToday(q query) (string, bool) {
	w := q.windowOr(window.Today)
	t := q.snap.For(w)
	if t.Loads == 0 {
		return "", false
	}
	return fmt.Sprintf("**%s** %s, %.1f m³ delivered by %d trucks.", loads(t.Loads), labelPhrase(w), t.TotalVolumeM3, t.NTrucks), true
}

func volumeToday(q query) (string, bool) {
	w := q.windowOr(window.Today)
	r := aggregator.ComputeVolume(q.snap, w)
	if r.Loads == 0 {
		return "", false
	}
	return fmt.Sprintf("Delivered volume %s is **%.1f m³** across %s.", labelPhrase(w), r.M3, loads(r.Loads)), true
}

// labelPhrase reads naturally after a noun: "today", "over the last 7 days".
func labelPhrase(w window.Window) string {
	switch w {
	case window.Today, window.Yesterday:
		return w.Label()
	}
	return "over " + w.Label()
}

// inPhrase is labelPhrase for sentences that read "in the last 7 days".
func inPhrase(w window.Window) string {
	switch w {
	case window.Today, window.Yesterday:
		return w.Label()
	}
	return "in " + w.Label()
}
