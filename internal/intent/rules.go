// Package intent answers common fleet questions straight from a KPI snapshot.
package intent

import (
	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// DefaultBenchmarkPct is the utilization target when none is configured or asked for.
const DefaultBenchmarkPct = 85.0

// Rule pairs a keyword trigger with the handler that answers it.
type Rule struct {
	Name    string
	trigger func(t text) bool
	handle  func(q query) (string, bool)
}

// Fires reports whether the rule's keywords occur in question.
func (r Rule) Fires(question string) bool { return r.trigger(newText(question)) }

// query is everything a handler may read.
type query struct {
	text
	snap      *aggregator.Snapshot
	benchmark float64
}

// windowOr is the period named in the question, else def.
func (q query) windowOr(def window.Window) window.Window {
	return ExtractWindow(q.lower, def)
}

var (
	volumeWords = []string{"volume", "m3", "m³", "cubic", "yards", "poured", "delivered", "concrete"}
	waitWords   = []string{"wait*"}
)

// hasThreshold reports whether a comparison bound is spelled out, so that
// "over 40 km" counts and "over the last 7 days" does not.
func hasThreshold(t text) bool {
	_, ok := ExtractThreshold(t.lower)
	return ok
}

// table is evaluated top to bottom; the first rule whose trigger fires owns
// the question, even if its handler then declines.
var table = []Rule{
	{Name: "quick-wins", handle: quickWins, trigger: func(t text) bool {
		return t.any("quick win", "low hanging", "action item*", "what should we fix", "what should i fix", "where can we improve")
	}},
	{Name: "summary", handle: summary, trigger: func(t text) bool {
		return t.any("summary", "summarize", "summarise", "recap", "overview", "how did we do", "how are we doing")
	}},
	{Name: "fuel-cost", handle: fuelCost, trigger: func(t text) bool {
		return t.any("cost*", "spend*", "spent", "price*", "$") && t.any("fuel", "diesel", "gas", "gasoline", "petrol")
	}},
	{Name: "co2", handle: co2, trigger: func(t text) bool {
		return t.any("co2", "co₂", "emission*", "carbon")
	}},
	{Name: "fuel-per-km", handle: fuelPerKm, trigger: func(t text) bool {
		return t.any("l/km", "per km", "fuel economy", "fuel efficiency", "consumption")
	}},
	{Name: "distance-over", handle: distanceOver, trigger: func(t text) bool {
		return t.any("distance", "km", "kms", "kilomet*", "kilometr*") && hasThreshold(t)
	}},
	{Name: "water-over", handle: waterOver, trigger: func(t text) bool {
		return t.any("water") && hasThreshold(t)
	}},
	{Name: "drum-rpm", handle: drumRPM, trigger: func(t text) bool {
		return t.any("rpm", "drum")
	}},
	{Name: "on-time", handle: onTime, trigger: func(t text) bool {
		return onTimeRe.MatchString(t.lower) || t.any("late", "punctual*", "eta", "arrival*")
	}},
	{Name: "projects-over-target", handle: projectsOverTarget, trigger: func(t text) bool {
		return t.any("project*") && t.any("target", "over", "above", "exceed*", "more than")
	}},
	{Name: "pace-forecast", handle: paceForecast, trigger: func(t text) bool {
		return t.any("pace", "forecast*", "projected", "projection", "on track", "end of day", "end of the day")
	}},
	{Name: "stage-bottleneck", handle: stageBottleneck, trigger: func(t text) bool {
		return t.any("bottleneck*", "stage*", "slowest step", "longest step", "lose time", "losing time")
	}},
	{Name: "cycle-by-plant", handle: cycleByPlant, trigger: func(t text) bool {
		return t.any("cycle*") && t.any("plant*")
	}},
	{Name: "driver-efficiency", handle: driverEfficiency, trigger: func(t text) bool {
		return t.any("efficien*", "m3/h", "m³/h", "m3 per hour", "m³ per hour", "cubic meters per hour")
	}},
	{Name: "site-idle", handle: siteIdle, trigger: func(t text) bool {
		return t.any("site*") && t.any("idle", "wait*", "stuck", "delay*")
	}},
	{Name: "top-wait-tickets", handle: topWaitTickets, trigger: func(t text) bool {
		return (t.any(waitWords...) && t.any("ticket*")) || t.any("longest wait")
	}},
	{Name: "top-driver-by-metric", handle: topByMetric, trigger: func(t text) bool {
		_, ok := metricIn(t)
		return ok && t.any("top", "most", "highest", "biggest", "largest", "worst", "who", "which", "rank*")
	}},
	{Name: "wait-by-hour", handle: waitByHour, trigger: func(t text) bool {
		return t.any(waitWords...) && t.any("hour", "hourly", "by hour", "time of day")
	}},
	{Name: "wait-rolling", handle: waitRolling, trigger: func(t text) bool {
		_, days := ExtractDays(t.lower)
		return t.any(waitWords...) && (days || t.any("rolling", "trend*", "moving average"))
	}},
	{Name: "avg-wait", handle: avgWait, trigger: func(t text) bool {
		return t.any(waitWords...)
	}},
	{Name: "utilization-benchmark", handle: utilizationBenchmark, trigger: func(t text) bool {
		return t.any("utilization", "utilisation", "utilized", "utilised", "util")
	}},
	{Name: "productivity", handle: productivity, trigger: func(t text) bool {
		return t.any("productivity", "prod ratio", "productive", "production time", "idle")
	}},
	{Name: "volume-compare", handle: volumeCompare, trigger: func(t text) bool {
		return t.any(volumeWords...) && t.any("yesterday", "compare*", "vs", "versus")
	}},
	{Name: "loads-today", handle: loadsToday, trigger: func(t text) bool {
		return t.any("load", "loads", "trips", "deliveries", "tickets", "truck*") && t.any("how many", "count", "number of")
	}},
	{Name: "volume-today", handle: volumeToday, trigger: func(t text) bool {
		return t.any(volumeWords...)
	}},
}

// Rules returns the rule table in precedence order.
func Rules() []Rule {
	return append([]Rule(nil), table...)
}

// Answer is a deterministic reply and the rule that produced it.
type Answer struct {
	Intent string `json:"intent"`
	Text   string `json:"text"`
}

// Matcher answers questions from the rule table.
type Matcher struct {
	BenchmarkPct float64
}

// New returns a Matcher; a non-positive benchmark uses DefaultBenchmarkPct.
func New(benchmarkPct float64) Matcher {
	if benchmarkPct <= 0 {
		benchmarkPct = DefaultBenchmarkPct
	}
	return Matcher{BenchmarkPct: benchmarkPct}
}

// Match returns the first triggered rule's answer. ok is false when no rule
// fires or the firing rule lacks the data or parameters it needs.
func (m Matcher) Match(question string, snap *aggregator.Snapshot) (Answer, bool) {
	t := newText(question)
	r, fired := firstTriggered(t)
	if !fired || snap == nil {
		return Answer{}, false
	}
	bench := m.BenchmarkPct
	if bench <= 0 {
		bench = DefaultBenchmarkPct
	}
	out, ok := r.handle(query{text: t, snap: snap, benchmark: bench})
	if !ok {
		return Answer{Intent: r.Name}, false
	}
	return Answer{Intent: r.Name, Text: out}, true
}

// Match answers with the default benchmark.
func Match(question string, snap *aggregator.Snapshot) (string, bool) {
	a, ok := New(0).Match(question, snap)
	return a.Text, ok
}

// Triggered names the rule that owns question, if any.
func Triggered(question string) (string, bool) {
	r, ok := firstTriggered(newText(question))
	return r.Name, ok
}

func firstTriggered(t text) (Rule, bool) {
	for _, r := range table {
		if r.trigger(t) {
			return r, true
		}
	}
	return Rule{}, false
}

// MissingParameter returns a clarifying question when the owning rule needs
// a number the question does not give. Financial figures are never defaulted.
func MissingParameter(question string) (string, bool) {
	name, ok := Triggered(question)
	if !ok || name != "fuel-cost" {
		return "", false
	}
	if _, ok := ExtractPrice(question); ok {
		return "", false
	}
	return "What fuel price per litre should I use? For example: \"fuel cost today at $1.80/L\".", true
}
