package dataset

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

func testOpts() Options {
	return Options{Location: time.UTC, Log: logger.Discard()}
}

const sampleCSV = `Ticket ID,Truck,Driver,Plant,Site,project,Start Time,cycle_time,dur_waiting,Distance (km),fuel_used_L,water_added_L,load_volume_m3,ignition_on,first_ticket,last_return,ignition_off
T1,TR1,Alice,North,Site A,P1,2026-03-05 08:00,100,20,25,10,80,10,2026-03-05T07:00:00Z,2026-03-05T07:30:00Z,2026-03-05T10:30:00Z,2026-03-05T11:00:00Z
T2,TR2,Bob,South,Site B,P2,2026-03-05T09:15:00Z,120,,40.5,,,12,,,,
T3,TR1,Alice,North,Site A,P1,not a date,90,5,10,4,50,8,,,,
,TR3,Carl,North,Site C,P3,03/04/2026 13:00,-5,-1,1,1,1,1,,,,
`

func assertSameFloat(t *testing.T, want, got float64) {
	t.Helper()
	if math.IsNaN(want) {
		assert.True(t, math.IsNaN(got), "want NaN, got %v", got)
		return
	}
	assert.Equal(t, want, got)
}

func TestReadCSVMapsHeadersAndRejectsBadStart(t *testing.T) {
	tickets, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	t1 := tickets[0]
	assert.Equal(t, "T1", t1.TicketID)
	assert.Equal(t, "North", t1.OriginPlant)
	assert.Equal(t, "Site A", t1.JobSite)
	assert.Equal(t, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC), t1.StartTime)
	assert.Equal(t, 20.0, t1.Wait())
	assert.Equal(t, 25.0, t1.DistanceKm)
	assert.Equal(t, 10.0, t1.LoadVolumeM3)
	assert.Equal(t, 240.0, t1.MinTotal())
	assert.Equal(t, 180.0, t1.MinProd())
	assert.True(t, math.IsNaN(t1.DrumRPM), "absent column is NaN")

	t2 := tickets[1]
	assert.Equal(t, 40.5, t2.DistanceKm)
	assert.True(t, math.IsNaN(t2.FuelUsedL), "empty cell is NaN, not zero")
	assert.True(t, math.IsNaN(t2.Wait()))
	assert.True(t, t2.IgnitionOn.IsZero())

	t3 := tickets[2]
	assert.Equal(t, "sample.csv#5", t3.TicketID, "missing id gets a stable synthetic one")
	assert.Equal(t, time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC), t3.StartTime)
	assert.True(t, math.IsNaN(t3.CycleTime), "negative durations are treated as missing")
	assert.True(t, math.IsNaN(t3.Wait()))
}

func TestReadCSVRequiresStartColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("ticket_id,truck\nT1,TR1\n"), "x.csv", testOpts())
	assert.ErrorContains(t, err, "no start_time column")
}

func TestParseTimeExcelSerial(t *testing.T) {
	got, err := parseTime("46086.5", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), got)
}

func TestCSVExportRoundTrip(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	out, err := ReadCSV(&buf, "export.csv", testOpts())
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].TicketID, out[i].TicketID)
		assert.True(t, in[i].StartTime.Equal(out[i].StartTime))
		assertSameFloat(t, in[i].MinProd(), out[i].MinProd())
		assertSameFloat(t, in[i].Wait(), out[i].Wait())
	}
	assert.True(t, math.IsNaN(out[1].FuelUsedL))
}

func TestLoadXLSXRoundTrip(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tickets.xlsx")
	require.NoError(t, WriteXLSX(path, in))

	out, err := Load(path, testOpts())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "Bob", out[1].Driver)
	assert.Equal(t, 12.0, out[1].LoadVolumeM3)
	assert.True(t, in[0].StartTime.Equal(out[0].StartTime))
}

func TestParquetRoundTrip(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tickets.parquet")
	require.NoError(t, WriteParquet(in, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	out, err := Load(path, testOpts())
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].TicketID, out[i].TicketID)
		assert.True(t, in[i].StartTime.Equal(out[i].StartTime))
		assert.True(t, in[i].IgnitionOn.Equal(out[i].IgnitionOn))
	}
	assert.Equal(t, 20.0, out[0].Wait())
	assert.True(t, math.IsNaN(out[1].FuelUsedL), "null round-trips to NaN")
	assert.True(t, out[1].LastReturn.IsZero())
}

func TestSQLiteRoundTrip(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)

	dsn := "sqlite://" + filepath.Join(t.TempDir(), "tickets.db")
	ctx := context.Background()
	require.NoError(t, ExportDSN(ctx, dsn, in))

	out, err := LoadDSN(ctx, dsn, testOpts())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "T2", out[1].TicketID)
	assert.Equal(t, 40.5, out[1].DistanceKm)
	assert.True(t, math.IsNaN(out[1].FuelUsedL))
	assert.Equal(t, 180.0, out[0].MinProd())
}

func TestDriverForSchemes(t *testing.T) {
	cases := []struct {
		dsn, driver, conn string
	}{
		{"sqlite:///tmp/a.db", "sqlite", "/tmp/a.db"},
		{"postgres://u:p@db:5432/fleet", "pgx", "postgres://u:p@db:5432/fleet"},
		{"mysql://u:p@tcp(db:3306)/fleet?parseTime=true", "mysql", "u:p@tcp(db:3306)/fleet?parseTime=true"},
	}
	for _, c := range cases {
		d, conn, err := driverFor(c.dsn)
		require.NoError(t, err, c.dsn)
		assert.Equal(t, c.driver, d)
		assert.Equal(t, c.conn, conn)
	}
	assert.False(t, IsDSN("data/tickets.xlsx"))
	assert.False(t, IsDSN("redis://x"))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("tickets.json", testOpts())
	assert.ErrorContains(t, err, "unsupported dataset format")
}

func TestFilterApplyCopies(t *testing.T) {
	tickets := []types.Ticket{
		{TicketID: "a", OriginPlant: "North", Driver: "Alice", StartTime: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)},
		{TicketID: "b", OriginPlant: "South", Driver: "Bob", StartTime: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)},
		{TicketID: "c", OriginPlant: "north", Driver: "Carl", StartTime: time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC)},
	}
	f := Filter{Plant: "NORTH"}
	got := f.Apply(tickets)
	require.Len(t, got, 2)
	got[0].Driver = "changed"
	assert.Equal(t, "Alice", tickets[0].Driver)

	from, to, err := ParseDateRange("2026-03-05", "2026-03-05", time.UTC)
	require.NoError(t, err)
	ranged := Filter{From: from, To: to}.Apply(tickets)
	require.Len(t, ranged, 1)
	assert.Equal(t, "b", ranged[0].TicketID)

	assert.Equal(t, "*", Filter{}.Key())
	assert.NotEqual(t, Filter{Plant: "North"}.Key(), Filter{Site: "North"}.Key())

	_, _, err = ParseDateRange("yesterday", "", time.UTC)
	assert.Error(t, err)
}

func TestHolderVersionsAndNotifies(t *testing.T) {
	h := NewHolder(nil, "empty")
	assert.Equal(t, uint64(1), h.Current().Version)

	var seen []uint64
	h.OnSwap(func(s *Store) { seen = append(seen, s.Version) })
	s := h.Replace([]types.Ticket{{TicketID: "x"}}, "mem")
	assert.Equal(t, uint64(2), s.Version)
	assert.Same(t, s, h.Current())
	assert.Equal(t, []uint64{2}, seen)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickets.csv")
	header := "ticket_id,start_time\n"
	require.NoError(t, os.WriteFile(path, []byte(header+"T1,2026-03-05T08:00:00Z\n"), 0o644))

	opts := testOpts()
	tickets, err := Load(path, opts)
	require.NoError(t, err)
	h := NewHolder(tickets, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, h, opts, 20*time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(header+"T1,2026-03-05T08:00:00Z\nT2,2026-03-05T09:00:00Z\n"), 0o644))

	assert.Eventually(t, func() bool {
		return len(h.Current().Tickets) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, h.Current().Version, uint64(2))
}

func TestSummarize(t *testing.T) {
	tickets, err := ReadCSV(strings.NewReader(sampleCSV), "sample.csv", testOpts())
	require.NoError(t, err)

	ds := Summarize(tickets, logger.Discard())
	assert.Equal(t, 3, ds.TotalTickets)
	assert.Equal(t, map[string]int{"North": 2, "South": 1}, ds.ByPlant)
	assert.Equal(t, 3, ds.Trucks)
	assert.Equal(t, []string{"Alice", "Bob", "Carl"}, ds.TopDriversLoads)
	assert.InDelta(t, 2.0/3.0, ds.MissingRate["anchors"], 1e-9)
	assert.Equal(t, time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC), ds.First)
}
