package aggregator

import (
	"testing"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(ts []TicketValue) []float64 {
	out := []float64{}
	for _, t := range ts {
		out = append(out, t.Value)
	}
	return out
}

func TestDistanceOverKm(t *testing.T) {
	rows := []types.Ticket{}
	for i, km := range []float64{10, 45, 50} {
		tk := ticket(string(rune('a'+i)), "T1", hoursAgo(float64(i+1)))
		tk.DistanceKm = km
		rows = append(rows, tk)
	}

	got := DistanceOverKm(rows, 40)
	require.Len(t, got, 2)
	assert.Equal(t, []float64{50, 45}, values(got))
	assert.Equal(t, []string{"c", "b"}, []string{got[0].TicketID, got[1].TicketID})

	assert.Empty(t, DistanceOverKm(rows, 50), "threshold is strict")
	assert.Empty(t, DistanceOverKm(nil, 40))
}

func TestWaterOver(t *testing.T) {
	a := ticket("a", "T1", hoursAgo(1))
	a.WaterAddedL = 140
	b := ticket("b", "T1", hoursAgo(2))
	b.WaterAddedL = 60
	c := ticket("c", "T1", hoursAgo(3))

	got := WaterOver([]types.Ticket{a, b, c}, 100)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].TicketID)
}

func TestTopGroupsSumsWaterPerDriver(t *testing.T) {
	mk := func(id, driver string, water float64) types.Ticket {
		tk := ticket(id, "T1", hoursAgo(10))
		tk.Driver = driver
		tk.WaterAddedL = water
		return tk
	}
	rows := []types.Ticket{mk("1", "Alice", 50), mk("2", "Bob", 90), mk("3", "Alice", 130)}

	got := TopGroups(rows, ByDriver, Water, 1)
	require.Len(t, got, 1)
	assert.Equal(t, GroupValue{Key: "Alice", Value: 180, Loads: 2}, got[0])

	all := TopGroups(rows, ByDriver, Water, 0)
	assert.Len(t, all, 2)
}

func TestTopGroupsTieBreaksByKey(t *testing.T) {
	a := ticket("1", "T1", hoursAgo(1))
	a.Driver, a.FuelUsedL = "Zoe", 10
	b := ticket("2", "T2", hoursAgo(1))
	b.Driver, b.FuelUsedL = "Ann", 10

	got := TopGroups([]types.Ticket{a, b}, ByDriver, Fuel, 0)
	assert.Equal(t, "Ann", got[0].Key)
}

func TestCycleTimeByPlantUsesMean(t *testing.T) {
	mk := func(id, plant string, cycle float64) types.Ticket {
		tk := withCycle(ticket(id, "T1", hoursAgo(1)), cycle)
		tk.OriginPlant = plant
		return tk
	}
	got := CycleTimeByPlant([]types.Ticket{mk("1", "North", 100), mk("2", "North", 140), mk("3", "South", 150)})

	require.Len(t, got, 2)
	assert.Equal(t, "South", got[0].Key)
	assert.InDelta(t, 150.0, got[0].Value, 1e-9)
	assert.InDelta(t, 120.0, got[1].Value, 1e-9)
}

func TestWaitByHour(t *testing.T) {
	mk := func(id string, start time.Time, wait float64) types.Ticket {
		tk := ticket(id, "T1", start)
		tk.Stages[types.StageWaiting] = wait
		return tk
	}
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	rows := []types.Ticket{
		mk("a", day.Add(9*time.Hour), 10),
		mk("b", day.Add(9*time.Hour+30*time.Minute), 20),
		mk("c", day.Add(7*time.Hour), 5),
		ticket("d", "T1", day.Add(8*time.Hour)),
	}

	got := WaitByHour(rows, time.UTC)
	assert.Equal(t, []HourWait{{Hour: 7, AvgWaitMin: 5, Loads: 1}, {Hour: 9, AvgWaitMin: 15, Loads: 2}}, got)
}

func TestDriverEfficiency(t *testing.T) {
	mk := func(id, driver string, m3, cycle float64) types.Ticket {
		tk := withVolume(withCycle(ticket(id, "T1", hoursAgo(1)), cycle), m3)
		tk.Driver = driver
		return tk
	}
	rows := []types.Ticket{
		mk("1", "Alice", 10, 60),
		mk("2", "Alice", 10, 120),
		mk("3", "Bob", 10, 40),
		mk("4", "Carl", 10, 0),
	}

	got := DriverEfficiency(rows, 5)
	require.Len(t, got, 2, "zero cycle rows are skipped")
	assert.Equal(t, "Bob", got[0].Driver)
	assert.InDelta(t, 15.0, got[0].M3PerHour, 1e-9)
	assert.InDelta(t, 7.5, got[1].M3PerHour, 1e-9)
}

func TestFuelPerKmOver(t *testing.T) {
	mk := func(id string, start time.Time, fuel, km float64) types.Ticket {
		tk := ticket(id, "T1", start)
		tk.FuelUsedL, tk.DistanceKm = fuel, km
		return tk
	}
	rows := []types.Ticket{
		mk("a", time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 30, 50),
		mk("b", time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC), 30, 50),
		mk("c", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 20, 100),
	}

	got := FuelPerKmOver(rows, 0.5, time.UTC)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-03-03", got[0].Date)
	assert.InDelta(t, 0.6, got[0].Value, 1e-9)
}

func TestCompareUtilization(t *testing.T) {
	tot := Totals{Window: window.Today, UtilizationPct: 70}
	got := CompareUtilization(tot, 85)
	assert.InDelta(t, -15.0, got.DeltaPct.Float(), 1e-9)

	none := CompareUtilization(Totals{UtilizationPct: types.NaN()}, 85)
	assert.False(t, none.DeltaPct.Valid())
}

func TestRollingAverageExcludesToday(t *testing.T) {
	mk := func(id string, start time.Time, wait float64) types.Ticket {
		tk := ticket(id, "T1", start)
		tk.Stages[types.StageWaiting] = wait
		return tk
	}
	rows := []types.Ticket{
		mk("today", hoursAgo(1), 100),
		mk("y1", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 10),
		mk("y2", time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 20),
		mk("d3", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 30),
		mk("old", time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), 500),
	}
	snap := ComputeKPIs(rows, now, 600)

	got := RollingAverage(snap, Wait, 7)
	assert.Equal(t, 2, got.DaysWithData)
	assert.InDelta(t, 22.5, got.Value.Float(), 1e-9)
	assert.Equal(t, "2026-03-02", got.Daily[0].Date)

	none := RollingAverage(ComputeKPIs(nil, now, 600), Wait, 7)
	assert.False(t, none.Value.Valid())
}

func TestRollingAverageSumsAdditiveMeasures(t *testing.T) {
	rows := []types.Ticket{
		withVolume(ticket("a", "T1", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)), 10),
		withVolume(ticket("b", "T1", time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)), 10),
		withVolume(ticket("c", "T1", time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)), 30),
	}
	got := RollingAverage(ComputeKPIs(rows, now, 600), Volume, 3)
	assert.InDelta(t, 25.0, got.Value.Float(), 1e-9)
}

func TestStageBreakdownAndBottleneck(t *testing.T) {
	a := ticket("a", "T1", hoursAgo(1))
	a.Stages[types.StageEnRoute] = 30
	a.Stages[types.StageWaiting] = 50
	b := ticket("b", "T1", hoursAgo(2))
	b.Stages[types.StageEnRoute] = 10
	b.Stages[types.StageWaiting] = 30

	shares := StageBreakdown([]types.Ticket{a, b})
	require.Len(t, shares, len(types.Stages()))
	assert.Equal(t, "dispatch", shares[0].Stage)
	assert.False(t, shares[0].AvgMin.Valid())

	top, ok := Bottleneck(shares)
	require.True(t, ok)
	assert.Equal(t, "waiting", top.Stage)
	assert.InDelta(t, 40.0, top.AvgMin.Float(), 1e-9)
	assert.InDelta(t, 66.666, top.SharePct.Float(), 1e-2)

	_, ok = Bottleneck(StageBreakdown(nil))
	assert.False(t, ok)
}

func TestDrumRPMOutliers(t *testing.T) {
	rows := []types.Ticket{}
	for i, rpm := range []float64{10, 10, 10, 10, 10, 10, 10, 40} {
		tk := ticket(string(rune('a'+i)), "T1", hoursAgo(1))
		tk.DrumRPM = rpm
		rows = append(rows, tk)
	}

	got := DrumRPMOutliers(rows, 2)
	require.Len(t, got.Tickets, 1)
	assert.Equal(t, "h", got.Tickets[0].TicketID)
	assert.InDelta(t, 13.75, got.Mean.Float(), 1e-9)

	assert.Empty(t, DrumRPMOutliers(rows[:1], 2).Tickets)
}

func TestOnTimeRate(t *testing.T) {
	eta := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	mk := func(id string, late time.Duration) types.Ticket {
		tk := ticket(id, "T1", hoursAgo(4))
		tk.ETA, tk.ActualArrival = eta, eta.Add(late)
		return tk
	}
	rows := []types.Ticket{
		mk("early", -5*time.Minute),
		mk("within", 4*time.Minute),
		mk("late", 20*time.Minute),
		ticket("no-eta", "T1", hoursAgo(3)),
	}

	got := OnTimeRate(rows, 5*time.Minute)
	assert.Equal(t, 3, got.Evaluated)
	assert.Equal(t, 2, got.OnTime)
	assert.InDelta(t, 66.666, got.RatePct.Float(), 1e-2)
	assert.InDelta(t, 20.0, got.AvgLateMin.Float(), 1e-9)

	assert.False(t, OnTimeRate(nil, 0).RatePct.Valid())
}

func TestProjectsOverTarget(t *testing.T) {
	mk := func(id, project string, m3 float64) types.Ticket {
		tk := withVolume(ticket(id, "T1", hoursAgo(1)), m3)
		tk.Project = project
		return tk
	}
	got := ProjectsOverTarget([]types.Ticket{mk("1", "P1", 8), mk("2", "P1", 8), mk("3", "P2", 9)}, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].Key)
	assert.InDelta(t, 16.0, got[0].Value, 1e-9)
}

func TestPaceForecast(t *testing.T) {
	rows := []types.Ticket{
		// Prior day: 10 m3 before 14:00, 10 m3 after.
		withVolume(ticket("p1", "T1", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)), 10),
		withVolume(ticket("p2", "T1", time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)), 10),
		withVolume(ticket("t1", "T1", hoursAgo(3)), 12),
	}
	got := PaceForecast(ComputeKPIs(rows, now, 600), 7)

	assert.Equal(t, 1, got.DaysUsed)
	assert.InDelta(t, 12.0, got.TodayM3, 1e-9)
	assert.InDelta(t, 20.0, got.AvgDailyM3.Float(), 1e-9)
	assert.InDelta(t, 50.0, got.ShareByNow.Float(), 1e-9)
	assert.InDelta(t, 24.0, got.ProjectedM3.Float(), 1e-9)

	empty := PaceForecast(ComputeKPIs(rows[2:], now, 600), 7)
	assert.False(t, empty.ProjectedM3.Valid())
}

func TestProductivityByTruck(t *testing.T) {
	on := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	rows := []types.Ticket{
		withAnchors(ticket("a", "T1", on.Add(time.Hour)), on, on.Add(time.Hour), on.Add(9*time.Hour), on.Add(10*time.Hour)),
		withAnchors(ticket("b", "T2", on.Add(time.Hour)), on, on.Add(time.Hour), on.Add(6*time.Hour), on.Add(10*time.Hour)),
		ticket("c", "T3", on.Add(time.Hour)),
	}

	got := ProductivityByTruck(rows)
	require.Len(t, got, 2, "trucks without anchors are left out")
	assert.Equal(t, "T1", got[0].Truck)
	assert.InDelta(t, 80.0, got[0].ProdPct.Float(), 1e-9)
	assert.InDelta(t, 50.0, got[1].ProdPct.Float(), 1e-9)
}

func TestParseMeasureAndGroupBy(t *testing.T) {
	for in, want := range map[string]Measure{
		"water_added_L":  Water,
		"dur_waiting":    Wait,
		"distance_km":    Distance,
		"fuel_used_L":    Fuel,
		"load_volume_m3": Volume,
		"cycle_time":     Cycle,
	} {
		got, err := ParseMeasure(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMeasure("rpm")
	assert.Error(t, err)

	g, err := ParseGroupBy("origin_plant")
	require.NoError(t, err)
	assert.Equal(t, ByPlant, g)
	_, err = ParseGroupBy("color")
	assert.Error(t, err)
}
