// Package mcptools exposes the named aggregations as tools. The same
// Toolbox backs the MCP server and the HTTP /tools endpoint.
package mcptools

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/processor"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// ErrUnknownTool is returned by Call for a name not in the toolbox.
var ErrUnknownTool = errors.New("unknown tool")

// Args is the argument accessor shared by mcp.CallToolRequest and QueryArgs.
type Args interface {
	GetString(key string, defaultValue string) string
	GetInt(key string, defaultValue int) int
	GetFloat(key string, defaultValue float64) float64
}

// ArgError reports a missing or malformed tool argument.
type ArgError struct {
	Arg    string
	Reason string
}

func (e *ArgError) Error() string { return fmt.Sprintf("argument %s: %s", e.Arg, e.Reason) }

type ParamKind int

const (
	KindString ParamKind = iota
	KindNumber
)

type Param struct {
	Name        string
	Kind        ParamKind
	Description string
	Required    bool
	Enum        []string
}

// Tool is one named aggregation. Run gets the snapshot for the caller's
// filter, already computed at the coach clock.
type Tool struct {
	Name          string
	Description   string
	DefaultWindow window.Window
	Params        []Param
	Run           func(env Env, args Args) (any, error)
}

// Env is what a tool runs against.
type Env struct {
	Snap         *aggregator.Snapshot
	Window       window.Window
	Location     *time.Location
	BenchmarkPct float64
}

// Toolbox dispatches tool calls against a coach's current dataset.
type Toolbox struct {
	coach *processor.Coach
	tools map[string]Tool
}

func NewToolbox(coach *processor.Coach) *Toolbox {
	tb := &Toolbox{coach: coach, tools: map[string]Tool{}}
	for _, t := range builtinTools() {
		tb.tools[t.Name] = t
	}
	return tb
}

// Tools lists every tool, sorted by name.
func (tb *Toolbox) Tools() []Tool {
	out := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (tb *Toolbox) Lookup(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Call runs the named tool. Every tool accepts window, plant, site, driver
// and project besides its own parameters.
func (tb *Toolbox) Call(name string, args Args) (any, error) {
	t, ok := tb.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	w := t.DefaultWindow
	if s := args.GetString("window", ""); s != "" {
		parsed, err := window.Parse(s)
		if err != nil {
			return nil, &ArgError{Arg: "window", Reason: err.Error()}
		}
		w = parsed
	}
	f := dataset.Filter{
		Plant:   args.GetString("plant", ""),
		Site:    args.GetString("site", ""),
		Driver:  args.GetString("driver", ""),
		Project: args.GetString("project", ""),
	}
	now := tb.coach.Now()
	env := Env{
		Snap:         tb.coach.Snapshot(f, now),
		Window:       w,
		Location:     now.Location(),
		BenchmarkPct: tb.coach.BenchmarkPct(),
	}
	return t.Run(env, args)
}

var commonParams = []Param{
	{Name: "window", Kind: KindString, Description: "Reporting window: today, yesterday, last_48h, last_7d, week_to_date, month_to_date, year_to_date or all."},
	{Name: "plant", Kind: KindString, Description: "Only tickets from this origin plant."},
	{Name: "site", Kind: KindString, Description: "Only tickets to this job site."},
	{Name: "driver", Kind: KindString, Description: "Only tickets of this driver."},
	{Name: "project", Kind: KindString, Description: "Only tickets of this project."},
}

func requireFloat(args Args, name string) (float64, error) {
	v := args.GetFloat(name, -1)
	if v < 0 {
		return 0, &ArgError{Arg: name, Reason: "required, must be a non-negative number"}
	}
	return v, nil
}

func builtinTools() []Tool {
	return []Tool{
		{
			Name:          "compute_volume",
			Description:   "Delivered concrete volume (m³) and load count for a window.",
			DefaultWindow: window.Today,
			Run: func(env Env, _ Args) (any, error) {
				return aggregator.ComputeVolume(env.Snap, env.Window), nil
			},
		},
		{
			Name:          "compare_utilization",
			Description:   "Truck utilization for a window against a benchmark percentage.",
			DefaultWindow: window.Today,
			Params: []Param{
				{Name: "benchmark", Kind: KindNumber, Description: "Benchmark utilization percent (defaults to the configured benchmark)."},
			},
			Run: func(env Env, args Args) (any, error) {
				bench := args.GetFloat("benchmark", env.BenchmarkPct)
				return aggregator.CompareUtilization(env.Snap.For(env.Window), bench), nil
			},
		},
		{
			Name:          "wait_by_hour",
			Description:   "Average on-site wait minutes by start hour.",
			DefaultWindow: window.Today,
			Run: func(env Env, _ Args) (any, error) {
				return aggregator.WaitByHour(env.Snap.Slice(env.Window), env.Location), nil
			},
		},
		{
			Name:          "driver_efficiency",
			Description:   "Drivers ranked by delivered m³ per hour of cycle time.",
			DefaultWindow: window.Last7d,
			Params: []Param{
				{Name: "top", Kind: KindNumber, Description: "How many drivers to return (default 5, 0 for all)."},
			},
			Run: func(env Env, args Args) (any, error) {
				return aggregator.DriverEfficiency(env.Snap.Slice(env.Window), args.GetInt("top", 5)), nil
			},
		},
		{
			Name:          "top_groups",
			Description:   "Largest groups for a measure (sum, or mean for cycle time).",
			DefaultWindow: window.Last7d,
			Params: []Param{
				{Name: "by", Kind: KindString, Description: "Grouping dimension.", Required: true, Enum: []string{"driver", "plant", "site", "project", "truck"}},
				{Name: "measure", Kind: KindString, Description: "Measure to rank by.", Required: true, Enum: []string{"water", "wait", "distance", "fuel", "volume", "cycle"}},
				{Name: "n", Kind: KindNumber, Description: "How many groups to return (default 5, 0 for all)."},
			},
			Run: func(env Env, args Args) (any, error) {
				by, err := aggregator.ParseGroupBy(args.GetString("by", ""))
				if err != nil {
					return nil, &ArgError{Arg: "by", Reason: err.Error()}
				}
				m, err := aggregator.ParseMeasure(args.GetString("measure", ""))
				if err != nil {
					return nil, &ArgError{Arg: "measure", Reason: err.Error()}
				}
				return aggregator.TopGroups(env.Snap.Slice(env.Window), by, m, args.GetInt("n", 5)), nil
			},
		},
		{
			Name:          "fuel_cost",
			Description:   "Fuel used and its cost at a given price per litre.",
			DefaultWindow: window.Today,
			Params: []Param{
				{Name: "price", Kind: KindNumber, Description: "Fuel price per litre.", Required: true},
			},
			Run: func(env Env, args Args) (any, error) {
				price, err := requireFloat(args, "price")
				if err != nil {
					return nil, err
				}
				return aggregator.FuelCost(env.Snap.Slice(env.Window), price), nil
			},
		},
		{
			Name:          "co2",
			Description:   "CO₂ emitted from fuel burned, diesel factor unless overridden.",
			DefaultWindow: window.Today,
			Params: []Param{
				{Name: "factor", Kind: KindNumber, Description: "Emission factor in kg CO₂ per litre (default 2.68, diesel)."},
			},
			Run: func(env Env, args Args) (any, error) {
				factor := args.GetFloat("factor", aggregator.DieselKgPerL)
				if factor < 0 {
					return nil, &ArgError{Arg: "factor", Reason: "must be non-negative"}
				}
				return aggregator.CO2(env.Snap.Slice(env.Window), factor), nil
			},
		},
		{
			Name:          "distance_over",
			Description:   "Tickets whose distance exceeds a threshold, longest first.",
			DefaultWindow: window.Today,
			Params: []Param{
				{Name: "km", Kind: KindNumber, Description: "Distance threshold in km.", Required: true},
			},
			Run: func(env Env, args Args) (any, error) {
				km, err := requireFloat(args, "km")
				if err != nil {
					return nil, err
				}
				return aggregator.DistanceOverKm(env.Snap.Slice(env.Window), km), nil
			},
		},
		{
			Name:          "cycle_time_by_plant",
			Description:   "Mean cycle time per origin plant, slowest first.",
			DefaultWindow: window.Today,
			Run: func(env Env, _ Args) (any, error) {
				return aggregator.CycleTimeByPlant(env.Snap.Slice(env.Window)), nil
			},
		},
		{
			Name:        "rolling_average",
			Description: "Average daily value of a measure over the previous full days.",
			Params: []Param{
				{Name: "measure", Kind: KindString, Description: "Measure to average.", Required: true, Enum: []string{"water", "wait", "distance", "fuel", "volume", "cycle"}},
				{Name: "days", Kind: KindNumber, Description: "Number of prior days (default 7)."},
			},
			Run: func(env Env, args Args) (any, error) {
				m, err := aggregator.ParseMeasure(args.GetString("measure", ""))
				if err != nil {
					return nil, &ArgError{Arg: "measure", Reason: err.Error()}
				}
				days := args.GetInt("days", 7)
				if days <= 0 {
					return nil, &ArgError{Arg: "days", Reason: "must be positive"}
				}
				return aggregator.RollingAverage(env.Snap, m, days), nil
			},
		},
	}
}

// QueryArgs adapts URL query parameters to Args.
type QueryArgs url.Values

func (q QueryArgs) GetString(key string, defaultValue string) string {
	if v := strings.TrimSpace(url.Values(q).Get(key)); v != "" {
		return v
	}
	return defaultValue
}

func (q QueryArgs) GetFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(q.GetString(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func (q QueryArgs) GetInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(q.GetString(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
