package actionable

import (
	"fmt"
	"math"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

const (
	// Waits above this many minutes at one site are worth a call to the contractor.
	siteWaitMinutes = 20.0
	// Average water added per load that suggests slump problems at the plant.
	waterPerLoadL = 100.0
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// QuickWins builds the action cards for a snapshot. It uses today when there
// is activity, otherwise the last 7 days. benchmarkPct is the utilization
// target. At least one card is always returned.
func QuickWins(snap *aggregator.Snapshot, benchmarkPct float64) []ActionCard {
	w := window.Today
	if snap.For(w).Loads == 0 {
		w = window.Last7d
	}
	tot := snap.For(w)
	slice := snap.Slice(w)

	cards := []ActionCard{}
	if c, ok := utilizationGap(tot, benchmarkPct); ok {
		cards = append(cards, c)
	}
	if c, ok := worstSite(slice, w); ok {
		cards = append(cards, c)
	}
	if c, ok := waterHeavyDriver(slice, w); ok {
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		cards = append(cards, ActionCard{
			Insight: "No strong pattern detected",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		})
	}
	return cards
}

func utilizationGap(tot aggregator.Totals, benchmarkPct float64) (ActionCard, bool) {
	cmp := aggregator.CompareUtilization(tot, benchmarkPct)
	if !cmp.DeltaPct.Valid() || cmp.DeltaPct >= 0 {
		return ActionCard{}, false
	}
	gap := -cmp.DeltaPct.Float()
	// Truck-minutes that would close the gap.
	minutes := gap / 100 * tot.OpMinutes * float64(tot.NTrucks)
	return ActionCard{
		Insight: fmt.Sprintf("Utilization %.1f%% is %.1f points under the %.0f%% target (%s)",
			cmp.ActualPct.Float(), gap, benchmarkPct, tot.Window.Label()),
		Action: "Tighten dispatch spacing and pull the next load forward on short cycles",
		Impact: fmt.Sprintf("About %.0f truck-minutes of extra delivery time", minutes),
	}, true
}

func worstSite(slice []types.Ticket, w window.Window) (ActionCard, bool) {
	var best aggregator.GroupValue
	found := false
	for _, g := range aggregator.TopGroups(slice, aggregator.BySite, aggregator.Wait, 0) {
		avg := g.Value / float64(g.Loads)
		if avg > siteWaitMinutes && (!found || avg > best.Value) {
			best, found = aggregator.GroupValue{Key: g.Key, Value: avg, Loads: g.Loads}, true
		}
	}
	if !found {
		return ActionCard{}, false
	}
	return ActionCard{
		Insight: fmt.Sprintf("Trucks wait %.1f min on average at %s (%d loads, %s)", best.Value, best.Key, best.Loads, w.Label()),
		Action:  "Call the site superintendent to confirm pour readiness before dispatch",
		Impact:  fmt.Sprintf("Up to %.0f minutes back per load", best.Value-siteWaitMinutes),
	}, true
}

func waterHeavyDriver(slice []types.Ticket, w window.Window) (ActionCard, bool) {
	top := aggregator.TopGroups(slice, aggregator.ByDriver, aggregator.Water, 0)
	for _, g := range top {
		if avg := g.Value / float64(g.Loads); avg > waterPerLoadL && !math.IsNaN(avg) {
			return ActionCard{
				Insight: fmt.Sprintf("%s added %.0f L of water over %d loads (%s)", g.Key, g.Value, g.Loads, w.Label()),
				Action:  "Review slump targets at batching with the driver and QC",
				Impact:  "Fewer strength complaints and rejected loads",
			}, true
		}
	}
	return ActionCard{}, false
}
