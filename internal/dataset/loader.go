package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Options control how raw rows become tickets.
type Options struct {
	// Location is used for timestamps without a zone. Defaults to time.Local.
	Location *time.Location
	Log      *logger.Logger
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) logger() *logger.Logger {
	if o.Log == nil {
		return logger.New().Component("dataset")
	}
	return o.Log
}

// Load imports tickets, choosing the reader by file extension. Rows whose
// start_time does not parse are dropped with a warning.
func Load(path string, opts Options) ([]types.Ticket, error) {
	log := opts.logger().WithField("path", path)
	log.Info("opening ticket dataset")

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, filepath.Base(path), opts)
	case ".parquet":
		return ReadParquet(path, opts)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// loadXLSX reads the first sheet and detects columns by header name.
func loadXLSX(path string, opts Options) ([]types.Ticket, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	return parseRows(rows, opts, filepath.Base(path))
}

// ReadCSV reads a header row followed by ticket rows.
func ReadCSV(r io.Reader, source string, opts Options) ([]types.Ticket, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	return parseRows(rows, opts, source)
}

// WriteXLSX writes tickets to a single-sheet workbook with canonical headers.
func WriteXLSX(path string, tickets []types.Ticket) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := exportHeader()
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for r, t := range tickets {
		for c, v := range exportRow(t) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", r+2, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// WriteCSV writes tickets with canonical headers; missing values are empty.
func WriteCSV(w io.Writer, tickets []types.Ticket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader()); err != nil {
		return err
	}
	for _, t := range tickets {
		if err := cw.Write(exportRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportHeader() []string {
	h := []string{colTicketID, colTruck, colDriver, colPlant, colSite, colProject, colStart, colCycle}
	for _, s := range types.Stages() {
		h = append(h, s.Column())
	}
	return append(h, colDistance, colFuel, colWater, colRPM, colVolume,
		colIgnitionOn, colFirstTicket, colLastReturn, colIgnitionOff, colETA, colArrival,
		colHydraulic, colWashout, colSlump)
}

func exportRow(t types.Ticket) []string {
	row := []string{t.TicketID, t.Truck, t.Driver, t.OriginPlant, t.JobSite, t.Project,
		formatTime(t.StartTime), formatNumber(t.CycleTime)}
	for _, s := range types.Stages() {
		row = append(row, formatNumber(t.Stages[s]))
	}
	return append(row,
		formatNumber(t.DistanceKm), formatNumber(t.FuelUsedL), formatNumber(t.WaterAddedL),
		formatNumber(t.DrumRPM), formatNumber(t.LoadVolumeM3),
		formatTime(t.IgnitionOn), formatTime(t.FirstTicket), formatTime(t.LastReturn), formatTime(t.IgnitionOff),
		formatTime(t.ETA), formatTime(t.ActualArrival),
		formatNumber(t.HydraulicPressure), formatNumber(t.WashoutDurationMin), formatNumber(t.SlumpAdjustment))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return fmt.Sprintf("%g", f)
}
