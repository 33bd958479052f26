package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// BuildSystemPrompt renders persona, voice, rules, avoid list and closing.
func BuildSystemPrompt(g Guidelines) string {
	parts := []string{
		g.Persona,
		fmt.Sprintf("Speak in a %s tone.", g.Style.Voice),
		"",
		"Instructions:",
	}
	for _, r := range g.Rules {
		parts = append(parts, "- "+r)
	}
	if len(g.Style.Avoid) > 0 {
		parts = append(parts, "", "Avoid:")
		for _, a := range g.Style.Avoid {
			parts = append(parts, "- "+a)
		}
	}
	if g.Style.Closing != "" {
		parts = append(parts, "", "Closing Guideline: "+g.Style.Closing)
	}
	return strings.Join(parts, "\n")
}

// kpiContext is the JSON block handed to the model. Undefined metrics are null.
type kpiContext struct {
	Now       string                              `json:"now"`
	OpMinutes float64                             `json:"op_minutes"`
	Windows   map[window.Window]aggregator.Totals `json:"windows"`
	Today     todayDetail                         `json:"today_detail"`
}

type todayDetail struct {
	WaitByHour []aggregator.HourWait          `json:"wait_by_hour"`
	Stages     []aggregator.StageShare        `json:"stages"`
	TopDrivers []aggregator.DriverRate        `json:"driver_efficiency"`
	ByPlant    []aggregator.GroupValue        `json:"cycle_time_by_plant"`
	ByTruck    []aggregator.TruckProductivity `json:"productivity_by_truck"`
}

// BuildSystemContext is the full system message: the prompt, best practice
// and the snapshot's KPIs as JSON.
func BuildSystemContext(g Guidelines, snap *aggregator.Snapshot) string {
	var b strings.Builder
	b.WriteString(BuildSystemPrompt(g))
	if g.BestPractice != "" {
		b.WriteString("\n\nBest practice:\n")
		b.WriteString(strings.TrimSpace(g.BestPractice))
	}
	if snap == nil {
		return b.String()
	}

	today := snap.Slice(window.Today)
	ctx := kpiContext{
		Now:       snap.Now.Format("2006-01-02 15:04 MST"),
		OpMinutes: snap.OpMinutes,
		Windows:   snap.Totals,
		Today: todayDetail{
			WaitByHour: aggregator.WaitByHour(today, snap.Now.Location()),
			Stages:     aggregator.StageBreakdown(today),
			TopDrivers: aggregator.DriverEfficiency(today, 5),
			ByPlant:    aggregator.CycleTimeByPlant(today),
			ByTruck:    aggregator.ProductivityByTruck(today),
		},
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": %q}", err.Error()))
	}
	b.WriteString("\n\nFleet KPIs (JSON, null means no data):\n")
	b.Write(data)
	return b.String()
}
