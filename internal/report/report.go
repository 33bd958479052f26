// Package report renders a fleet snapshot for the terminal or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/marcandre22/ready-mix-coach/internal/actionable"
	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

type Format string

const (
	TextOut Format = "text"
	JSONOut Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", TextOut:
		return TextOut, nil
	case JSONOut:
		return JSONOut, nil
	}
	return "", fmt.Errorf("unknown output format %q (text or json)", s)
}

type Options struct {
	Format       Format
	Window       window.Window
	BenchmarkPct float64
	TopN         int
	UseColors    bool
	Precision    int
}

// Report is everything the terminal view shows, in JSON form.
type Report struct {
	Now         string                           `json:"now"`
	Dataset     dataset.DatasetSummary           `json:"dataset"`
	Windows     []aggregator.Totals              `json:"windows"`
	Utilization aggregator.UtilizationComparison `json:"utilization"`
	TopDrivers  []aggregator.DriverRate          `json:"top_drivers"`
	Stages      []aggregator.StageShare          `json:"stages"`
	Bottleneck  *aggregator.StageShare           `json:"bottleneck,omitempty"`
	Trucks      []aggregator.TruckProductivity   `json:"trucks"`
	QuickWins   []actionable.ActionCard          `json:"quick_wins"`
}

// Build assembles the report for opts.Window (Today when empty).
func Build(snap *aggregator.Snapshot, summary dataset.DatasetSummary, opts Options) Report {
	w := opts.Window
	if w == "" {
		w = window.Today
	}
	n := opts.TopN
	if n <= 0 {
		n = 5
	}
	slice := snap.Slice(w)
	r := Report{
		Now:         snap.Now.Format("2006-01-02 15:04 MST"),
		Dataset:     summary,
		Utilization: aggregator.CompareUtilization(snap.For(w), opts.BenchmarkPct),
		TopDrivers:  aggregator.DriverEfficiency(slice, n),
		Stages:      aggregator.StageBreakdown(slice),
		Trucks:      aggregator.ProductivityByTruck(slice),
		QuickWins:   actionable.QuickWins(snap, opts.BenchmarkPct),
	}
	for _, sw := range window.Standard {
		r.Windows = append(r.Windows, snap.For(sw))
	}
	if b, ok := aggregator.Bottleneck(r.Stages); ok {
		r.Bottleneck = &b
	}
	return r
}

// Write renders r in the requested format.
func Write(w io.Writer, r Report, opts Options) error {
	switch opts.Format {
	case JSONOut:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
		return nil
	default:
		return writeText(w, r, opts)
	}
}

type palette struct {
	title, good, warn, bad func(...any) string
}

func newPalette(useColors bool) palette {
	if !useColors {
		return palette{title: fmt.Sprint, good: fmt.Sprint, warn: fmt.Sprint, bad: fmt.Sprint}
	}
	return palette{
		title: color.New(color.FgCyan, color.Bold).SprintFunc(),
		good:  color.New(color.FgGreen).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		bad:   color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func writeText(w io.Writer, r Report, opts Options) error {
	p := newPalette(opts.UseColors)
	prec := opts.Precision
	if prec <= 0 {
		prec = 1
	}
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', prec, 64) }
	metric := func(m types.Metric) string {
		if !m.Valid() {
			return "-"
		}
		return num(m.Float())
	}

	if _, err := fmt.Fprintf(w, "%s  %s  (%d tickets, %d trucks, %d drivers)\n\n",
		p.title("Ready-Mix Coach"), r.Now, r.Dataset.TotalTickets, r.Dataset.Trucks, r.Dataset.Drivers); err != nil {
		return err
	}

	var rows [][]string
	for _, t := range r.Windows {
		rows = append(rows, []string{
			string(t.Window),
			strconv.Itoa(t.Loads),
			num(t.TotalVolumeM3),
			strconv.Itoa(t.NTrucks),
			metric(t.UtilizationPct),
			metric(t.AvgCycleMin),
			metric(t.AvgWaitMin),
			num(t.FuelL),
			num(t.WaterL),
		})
	}
	if err := table(w, []string{"Window", "Loads", "m³", "Trucks", "Util %", "Cycle min", "Wait min", "Fuel L", "Water L"}, rows); err != nil {
		return err
	}

	u := r.Utilization
	status := p.good("on target")
	switch {
	case !u.DeltaPct.Valid():
		status = p.warn("no data")
	case u.DeltaPct < 0:
		status = p.bad(fmt.Sprintf("%s pts below", num(-u.DeltaPct.Float())))
	}
	if _, err := fmt.Fprintf(w, "\nUtilization %s: %s%% vs %s%% benchmark, %s\n\n",
		u.Window.Label(), metric(u.ActualPct), num(u.BenchmarkPct), status); err != nil {
		return err
	}

	rows = rows[:0]
	for i, d := range r.TopDrivers {
		rows = append(rows, []string{strconv.Itoa(i + 1), d.Driver, num(d.M3PerHour), strconv.Itoa(d.Loads)})
	}
	if err := table(w, []string{"Rank", "Driver", "m³/h", "Loads"}, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, s := range r.Stages {
		name := s.Stage
		if r.Bottleneck != nil && s.Stage == r.Bottleneck.Stage {
			name = p.bad(name + " ◀")
		}
		rows = append(rows, []string{name, metric(s.AvgMin), metric(s.SharePct)})
	}
	if len(rows) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := table(w, []string{"Stage", "Avg min", "Share %"}, rows); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\n%s\n", p.title("Quick wins")); err != nil {
		return err
	}
	for _, c := range r.QuickWins {
		if _, err := fmt.Fprintf(w, "  • %s\n    %s %s (%s)\n", c.Insight, p.good("→"), c.Action, c.Impact); err != nil {
			return err
		}
	}
	return nil
}

func table(w io.Writer, headers []string, rows [][]string) error {
	t := tablewriter.NewWriter(w)
	defer func() { _ = t.Close() }()
	t.Header(headers)
	t.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := t.Bulk(rows); err != nil {
		return err
	}
	return t.Render()
}
