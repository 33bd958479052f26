package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday 2026-03-05 14:00 UTC.
var now = time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)

func hoursAgo(h float64) time.Time { return now.Add(-time.Duration(h * float64(time.Hour))) }

// ticket returns a row with every optional number missing.
func ticket(id, truck string, start time.Time) types.Ticket {
	return types.Ticket{
		TicketID:           id,
		Truck:              truck,
		StartTime:          start,
		CycleTime:          math.NaN(),
		Stages:             types.NoStages(),
		DistanceKm:         math.NaN(),
		FuelUsedL:          math.NaN(),
		WaterAddedL:        math.NaN(),
		DrumRPM:            math.NaN(),
		LoadVolumeM3:       math.NaN(),
		HydraulicPressure:  math.NaN(),
		WashoutDurationMin: math.NaN(),
		SlumpAdjustment:    math.NaN(),
	}
}

// EquateNaNs only covers plain floats.
var equateNaNMetrics = cmp.Comparer(func(a, b types.Metric) bool {
	return a == b || (!a.Valid() && !b.Valid() && math.IsNaN(a.Float()) == math.IsNaN(b.Float()))
})

func withVolume(t types.Ticket, m3 float64) types.Ticket {
	t.LoadVolumeM3 = m3
	return t
}

func withCycle(t types.Ticket, min float64) types.Ticket {
	t.CycleTime = min
	return t
}

func withAnchors(t types.Ticket, on, first, last, off time.Time) types.Ticket {
	t.IgnitionOn, t.FirstTicket, t.LastReturn, t.IgnitionOff = on, first, last, off
	return t
}

func TestComputeVolumeTodayAndYesterday(t *testing.T) {
	store := []types.Ticket{
		withVolume(ticket("a", "T1", hoursAgo(4)), 10),
		withVolume(ticket("b", "T2", hoursAgo(2)), 12),
		withVolume(ticket("c", "T1", hoursAgo(26)), 8),
	}
	snap := ComputeKPIs(store, now, 600)

	today := ComputeVolume(snap, window.Today)
	assert.InDelta(t, 22.0, today.M3, 1e-9)
	assert.Equal(t, 2, today.Loads)
	assert.Equal(t, "2026-03-05", today.Date)

	yesterday := ComputeVolume(snap, window.Yesterday)
	assert.InDelta(t, 8.0, yesterday.M3, 1e-9)
	assert.Equal(t, "2026-03-04", yesterday.Date)
}

func TestUtilizationFromCycleMinutes(t *testing.T) {
	store := []types.Ticket{
		withCycle(ticket("a", "T1", hoursAgo(5)), 300),
		withCycle(ticket("b", "T2", hoursAgo(4)), 250),
		withCycle(ticket("c", "T3", hoursAgo(3)), 350),
	}
	tot := ComputeKPIs(store, now, 600).For(window.Today)

	assert.Equal(t, 3, tot.NTrucks)
	assert.InDelta(t, 900.0, tot.CycleMinutes, 1e-9)
	assert.InDelta(t, 50.0, tot.UtilizationPct.Float(), 1e-9)
	assert.InDelta(t, 100.0, tot.UtilizationAt(300).Float(), 1e-9)
}

func TestUtilizationNaNOnlyWithoutTrucks(t *testing.T) {
	empty := Summarize(nil, window.Today, 600)
	assert.False(t, empty.UtilizationPct.Valid())

	// A truck with no cycle data is still a truck.
	idle := Summarize([]types.Ticket{ticket("a", "T1", hoursAgo(1))}, window.Today, 600)
	require.True(t, idle.UtilizationPct.Valid())
	assert.Equal(t, 0.0, idle.UtilizationPct.Float())

	// Overtime is surfaced, not capped.
	over := Summarize([]types.Ticket{withCycle(ticket("a", "T1", hoursAgo(1)), 900)}, window.Today, 600)
	assert.InDelta(t, 150.0, over.UtilizationPct.Float(), 1e-9)
}

func TestProductivityRatio(t *testing.T) {
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	on := day.Add(6 * time.Hour)
	rows := []types.Ticket{
		withAnchors(ticket("a", "T1", day.Add(7*time.Hour)), on, on.Add(20*time.Minute), on.Add(500*time.Minute), on.Add(540*time.Minute)),
		withAnchors(ticket("b", "T2", day.Add(8*time.Hour)), on, on.Add(60*time.Minute), on.Add(300*time.Minute), on.Add(360*time.Minute)),
		// Only the total span is known; excluded from the ratio.
		withAnchors(ticket("c", "T3", day.Add(9*time.Hour)), on, time.Time{}, time.Time{}, on.Add(600*time.Minute)),
	}
	p := Summarize(rows, window.Today, 600).Productivity

	assert.Equal(t, 2, p.Tickets)
	assert.InDelta(t, 900.0, p.TotalMin, 1e-9)
	assert.InDelta(t, 720.0, p.ProdMin, 1e-9)
	assert.InDelta(t, 80.0, p.PreMin, 1e-9)
	assert.InDelta(t, 100.0, p.PostMin, 1e-9)
	assert.InDelta(t, 80.0, p.ProdRatio.Float(), 1e-9)
	assert.InDelta(t, 180.0, p.IdleMin.Float(), 1e-9)
	assert.GreaterOrEqual(t, p.IdleMin.Float(), 0.0)
}

func TestProductivityRatioNaNWithoutAnchors(t *testing.T) {
	rows := []types.Ticket{withCycle(ticket("a", "T1", hoursAgo(1)), 90)}
	p := Summarize(rows, window.Today, 600).Productivity
	assert.Equal(t, 0, p.Tickets)
	assert.False(t, p.ProdRatio.Valid())
	assert.False(t, p.IdleMin.Valid())
}

func TestEmptySliceSentinels(t *testing.T) {
	tot := ComputeKPIs(nil, now, 0).For(window.Today)

	assert.Equal(t, DefaultOpMinutes, tot.OpMinutes)
	assert.Equal(t, 0, tot.Loads)
	assert.Equal(t, 0.0, tot.TotalVolumeM3)
	assert.Equal(t, 0.0, tot.FuelL)
	assert.False(t, tot.AvgVolumeM3.Valid())
	assert.False(t, tot.AvgWaitMin.Valid())
	assert.False(t, tot.AvgCycleMin.Valid())
	assert.Equal(t, 0.0, tot.CO2Kg(DieselKgPerL))
}

func TestMissingValuesAreSkippedNotZeroed(t *testing.T) {
	rows := []types.Ticket{
		withVolume(ticket("a", "T1", hoursAgo(1)), 9),
		ticket("b", "T1", hoursAgo(2)),
	}
	tot := Summarize(rows, window.Today, 600)
	assert.InDelta(t, 9.0, tot.TotalVolumeM3, 1e-9)
	assert.InDelta(t, 9.0, tot.AvgVolumeM3.Float(), 1e-9)
}

func TestFuelCostAndEmissions(t *testing.T) {
	a := ticket("a", "T1", hoursAgo(1))
	a.FuelUsedL = 60
	b := ticket("b", "T2", hoursAgo(2))
	b.FuelUsedL = 40
	tot := Summarize([]types.Ticket{a, b}, window.Today, 600)

	assert.InDelta(t, 200.0, tot.FuelCost(2.0), 1e-9)
	assert.InDelta(t, 268.0, tot.CO2Kg(DieselKgPerL), 1e-9)
	assert.InDelta(t, 231.0, CO2([]types.Ticket{a, b}, GasolineKgPerL).CO2Kg, 1e-9)
}

func TestComputeKPIsIsIdempotent(t *testing.T) {
	store := []types.Ticket{
		withVolume(withCycle(ticket("a", "T1", hoursAgo(3)), 120), 10),
		withCycle(ticket("b", "T2", hoursAgo(30)), 80),
		ticket("c", "", hoursAgo(200)),
	}
	first := ComputeKPIs(store, now, 600)
	second := ComputeKPIs(store, now, 600)

	if diff := cmp.Diff(first, second, cmpopts.EquateNaNs(), equateNaNMetrics); diff != "" {
		t.Fatalf("snapshots differ (-first +second):\n%s", diff)
	}
}

func TestComputeKPIsDoesNotMutateStore(t *testing.T) {
	store := []types.Ticket{
		withVolume(ticket("a", "T1", hoursAgo(3)), 10),
		withVolume(ticket("b", "T2", hoursAgo(30)), 8),
	}
	before := append([]types.Ticket(nil), store...)

	snap := ComputeKPIs(store, now, 600)
	snap.Slices[window.Today][0].LoadVolumeM3 = 999

	if diff := cmp.Diff(before, store, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("store mutated (-before +after):\n%s", diff)
	}
}

func TestSnapshotAccessorsOnMissingWindow(t *testing.T) {
	var snap *Snapshot
	assert.NotNil(t, snap.Slice(window.Today))
	assert.Empty(t, snap.Slice(window.Today))
	assert.Equal(t, 0, snap.For(window.Today).Loads)
}
