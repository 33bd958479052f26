package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// ticketRow is the on-disk parquet layout. Optional columns are pointers so
// missing values round-trip as nulls.
type ticketRow struct {
	TicketID    string    `parquet:"ticket_id,snappy"`
	Truck       string    `parquet:"truck,snappy"`
	Driver      string    `parquet:"driver,snappy"`
	OriginPlant string    `parquet:"origin_plant,snappy"`
	JobSite     string    `parquet:"job_site,snappy"`
	Project     string    `parquet:"project,snappy"`
	StartTime   time.Time `parquet:"start_time,snappy"`
	CycleTime   *float64  `parquet:"cycle_time,optional,snappy"`

	DurDispatch    *float64 `parquet:"dur_dispatch,optional,snappy"`
	DurLoaded      *float64 `parquet:"dur_loaded,optional,snappy"`
	DurEnRoute     *float64 `parquet:"dur_en_route,optional,snappy"`
	DurWaiting     *float64 `parquet:"dur_waiting,optional,snappy"`
	DurDischarging *float64 `parquet:"dur_discharging,optional,snappy"`
	DurWashing     *float64 `parquet:"dur_washing,optional,snappy"`
	DurBack        *float64 `parquet:"dur_back,optional,snappy"`

	DistanceKm   *float64 `parquet:"distance_km,optional,snappy"`
	FuelUsedL    *float64 `parquet:"fuel_used_L,optional,snappy"`
	WaterAddedL  *float64 `parquet:"water_added_L,optional,snappy"`
	DrumRPM      *float64 `parquet:"drum_rpm,optional,snappy"`
	LoadVolumeM3 *float64 `parquet:"load_volume_m3,optional,snappy"`

	IgnitionOn    *time.Time `parquet:"ignition_on,optional,snappy"`
	FirstTicket   *time.Time `parquet:"first_ticket,optional,snappy"`
	LastReturn    *time.Time `parquet:"last_return,optional,snappy"`
	IgnitionOff   *time.Time `parquet:"ignition_off,optional,snappy"`
	ETA           *time.Time `parquet:"ETA,optional,snappy"`
	ActualArrival *time.Time `parquet:"actual_arrival,optional,snappy"`

	HydraulicPressure  *float64 `parquet:"hydraulic_pressure,optional,snappy"`
	WashoutDurationMin *float64 `parquet:"washout_duration_min,optional,snappy"`
	SlumpAdjustment    *float64 `parquet:"slump_adjustment,optional,snappy"`
}

func (r *ticketRow) stagePtrs() [7]**float64 {
	return [7]**float64{&r.DurDispatch, &r.DurLoaded, &r.DurEnRoute, &r.DurWaiting,
		&r.DurDischarging, &r.DurWashing, &r.DurBack}
}

func optFloat(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func floatOr(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func timeOr(p *time.Time, loc *time.Location) time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.In(loc)
}

func toRow(t types.Ticket) ticketRow {
	r := ticketRow{
		TicketID:           t.TicketID,
		Truck:              t.Truck,
		Driver:             t.Driver,
		OriginPlant:        t.OriginPlant,
		JobSite:            t.JobSite,
		Project:            t.Project,
		StartTime:          t.StartTime,
		CycleTime:          optFloat(t.CycleTime),
		DistanceKm:         optFloat(t.DistanceKm),
		FuelUsedL:          optFloat(t.FuelUsedL),
		WaterAddedL:        optFloat(t.WaterAddedL),
		DrumRPM:            optFloat(t.DrumRPM),
		LoadVolumeM3:       optFloat(t.LoadVolumeM3),
		IgnitionOn:         optTime(t.IgnitionOn),
		FirstTicket:        optTime(t.FirstTicket),
		LastReturn:         optTime(t.LastReturn),
		IgnitionOff:        optTime(t.IgnitionOff),
		ETA:                optTime(t.ETA),
		ActualArrival:      optTime(t.ActualArrival),
		HydraulicPressure:  optFloat(t.HydraulicPressure),
		WashoutDurationMin: optFloat(t.WashoutDurationMin),
		SlumpAdjustment:    optFloat(t.SlumpAdjustment),
	}
	for i, p := range r.stagePtrs() {
		*p = optFloat(t.Stages[i])
	}
	return r
}

func fromRow(r ticketRow, loc *time.Location) types.Ticket {
	t := types.Ticket{
		TicketID:           r.TicketID,
		Truck:              r.Truck,
		Driver:             r.Driver,
		OriginPlant:        r.OriginPlant,
		JobSite:            r.JobSite,
		Project:            r.Project,
		StartTime:          r.StartTime.In(loc),
		CycleTime:          floatOr(r.CycleTime),
		Stages:             types.NoStages(),
		DistanceKm:         floatOr(r.DistanceKm),
		FuelUsedL:          floatOr(r.FuelUsedL),
		WaterAddedL:        floatOr(r.WaterAddedL),
		DrumRPM:            floatOr(r.DrumRPM),
		LoadVolumeM3:       floatOr(r.LoadVolumeM3),
		IgnitionOn:         timeOr(r.IgnitionOn, loc),
		FirstTicket:        timeOr(r.FirstTicket, loc),
		LastReturn:         timeOr(r.LastReturn, loc),
		IgnitionOff:        timeOr(r.IgnitionOff, loc),
		ETA:                timeOr(r.ETA, loc),
		ActualArrival:      timeOr(r.ActualArrival, loc),
		HydraulicPressure:  floatOr(r.HydraulicPressure),
		WashoutDurationMin: floatOr(r.WashoutDurationMin),
		SlumpAdjustment:    floatOr(r.SlumpAdjustment),
	}
	for i, p := range r.stagePtrs() {
		t.Stages[i] = floatOr(*p)
	}
	return t
}

// WriteParquet exports tickets to outputPath.
func WriteParquet(tickets []types.Ticket, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	rows := make([]ticketRow, len(tickets))
	for i, t := range tickets {
		rows[i] = toRow(t)
	}

	writer := parquet.NewGenericWriter[ticketRow](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet imports a file written by WriteParquet. Rows with a zero
// start_time are rejected like unparseable rows elsewhere.
func ReadParquet(path string, opts Options) ([]types.Ticket, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewGenericReader[ticketRow](file)
	defer reader.Close()

	rows := make([]ticketRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet: %w", err)
	}

	log := opts.logger().WithField("source", filepath.Base(path))
	loc := opts.location()
	out := make([]types.Ticket, 0, n)
	rejected := 0
	for i, r := range rows[:n] {
		if r.StartTime.IsZero() {
			log.WithField("line", i+1).Warn("rejecting row: start_time missing")
			rejected++
			continue
		}
		out = append(out, fromRow(r, loc))
	}
	log.WithField("tickets", len(out)).WithField("rejected", rejected).Info("tickets loaded")
	return out, nil
}
