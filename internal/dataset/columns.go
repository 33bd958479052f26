package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Canonical column names, lowercase.
const (
	colTicketID    = "ticket_id"
	colTruck       = "truck"
	colDriver      = "driver"
	colPlant       = "origin_plant"
	colSite        = "job_site"
	colProject     = "project"
	colStart       = "start_time"
	colCycle       = "cycle_time"
	colDistance    = "distance_km"
	colFuel        = "fuel_used_l"
	colWater       = "water_added_l"
	colRPM         = "drum_rpm"
	colVolume      = "load_volume_m3"
	colIgnitionOn  = "ignition_on"
	colFirstTicket = "first_ticket"
	colLastReturn  = "last_return"
	colIgnitionOff = "ignition_off"
	colETA         = "eta"
	colArrival     = "actual_arrival"
	colHydraulic   = "hydraulic_pressure"
	colWashout     = "washout_duration_min"
	colSlump       = "slump_adjustment"
)

var aliases = map[string]string{
	"ticket":         colTicketID,
	"ticket_no":      colTicketID,
	"ticket_number":  colTicketID,
	"truck_id":       colTruck,
	"truck_no":       colTruck,
	"driver_name":    colDriver,
	"plant":          colPlant,
	"site":           colSite,
	"job":            colSite,
	"start":          colStart,
	"timestamp":      colStart,
	"cycle":          colCycle,
	"cycle_min":      colCycle,
	"cycle_time_min": colCycle,
	"distance":       colDistance,
	"fuel":           colFuel,
	"fuel_l":         colFuel,
	"water":          colWater,
	"water_l":        colWater,
	"rpm":            colRPM,
	"volume":         colVolume,
	"volume_m3":      colVolume,
	"load_m3":        colVolume,
	"arrival":        colArrival,
	"washout_min":    colWashout,
	"slump":          colSlump,
	"hydraulic":      colHydraulic,
	"hydraulic_psi":  colHydraulic,
}

var canonical = func() map[string]bool {
	m := map[string]bool{}
	for _, c := range []string{colTicketID, colTruck, colDriver, colPlant, colSite, colProject, colStart,
		colCycle, colDistance, colFuel, colWater, colRPM, colVolume, colIgnitionOn, colFirstTicket,
		colLastReturn, colIgnitionOff, colETA, colArrival, colHydraulic, colWashout, colSlump} {
		m[c] = true
	}
	for _, s := range types.Stages() {
		m[s.Column()] = true
	}
	return m
}()

func normalizeHeader(h string) string {
	n := strings.ToLower(strings.TrimSpace(h))
	if i := strings.Index(n, "("); i > 0 {
		n = strings.TrimSpace(n[:i])
	}
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(n)
}

// columnFor maps a raw header to a canonical column, or "".
func columnFor(h string) string {
	n := normalizeHeader(h)
	if canonical[n] {
		return n
	}
	if c, ok := aliases[n]; ok {
		return c
	}
	// loose fallbacks for exported reports
	switch {
	case strings.Contains(n, "ticket") && strings.Contains(n, "id"):
		return colTicketID
	case strings.Contains(n, "start") && strings.Contains(n, "time"):
		return colStart
	}
	return ""
}

// rowParser turns header-indexed string rows into tickets.
type rowParser struct {
	idx    map[string]int
	loc    *time.Location
	log    *logger.Logger
	source string
}

func newRowParser(header []string, opts Options, source string) (*rowParser, error) {
	idx := map[string]int{}
	for i, h := range header {
		if c := columnFor(h); c != "" {
			if _, dup := idx[c]; !dup {
				idx[c] = i
			}
		}
	}
	if _, ok := idx[colStart]; !ok {
		return nil, fmt.Errorf("%s: no %s column in header", source, colStart)
	}
	p := &rowParser{idx: idx, loc: opts.location(), log: opts.logger(), source: source}
	p.log.WithField("columns", len(idx)).WithField("source", source).Debug("detected ticket columns")
	return p, nil
}

func (p *rowParser) cell(row []string, col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (p *rowParser) num(row []string, col string) float64 {
	return parseNumber(p.cell(row, col))
}

func (p *rowParser) when(row []string, col string) time.Time {
	t, _ := parseTime(p.cell(row, col), p.loc)
	return t
}

// parse builds one ticket. ok is false when start_time does not parse;
// line is 1-based for log messages.
func (p *rowParser) parse(line int, row []string) (types.Ticket, bool) {
	raw := p.cell(row, colStart)
	start, err := parseTime(raw, p.loc)
	if err != nil {
		p.log.WithField("source", p.source).WithField("line", line).WithField("start_time", raw).
			Warn("rejecting row: start_time does not parse")
		return types.Ticket{}, false
	}

	t := types.Ticket{
		TicketID:    p.cell(row, colTicketID),
		Truck:       p.cell(row, colTruck),
		Driver:      p.cell(row, colDriver),
		OriginPlant: p.cell(row, colPlant),
		JobSite:     p.cell(row, colSite),
		Project:     p.cell(row, colProject),
		StartTime:   start,
		CycleTime:   nonNegative(p.num(row, colCycle)),
		Stages:      types.NoStages(),

		DistanceKm:   p.num(row, colDistance),
		FuelUsedL:    p.num(row, colFuel),
		WaterAddedL:  p.num(row, colWater),
		DrumRPM:      p.num(row, colRPM),
		LoadVolumeM3: p.num(row, colVolume),

		IgnitionOn:  p.when(row, colIgnitionOn),
		FirstTicket: p.when(row, colFirstTicket),
		LastReturn:  p.when(row, colLastReturn),
		IgnitionOff: p.when(row, colIgnitionOff),

		ETA:           p.when(row, colETA),
		ActualArrival: p.when(row, colArrival),

		HydraulicPressure:  p.num(row, colHydraulic),
		WashoutDurationMin: p.num(row, colWashout),
		SlumpAdjustment:    p.num(row, colSlump),
	}
	for _, s := range types.Stages() {
		t.Stages[s] = nonNegative(p.num(row, s.Column()))
	}
	if t.TicketID == "" {
		t.TicketID = fmt.Sprintf("%s#%d", p.source, line)
	}
	return t, true
}

// parseRows runs the parser over rows[1:], header first.
func parseRows(rows [][]string, opts Options, source string) ([]types.Ticket, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no header row", source)
	}
	p, err := newRowParser(rows[0], opts, source)
	if err != nil {
		return nil, err
	}
	out := make([]types.Ticket, 0, len(rows)-1)
	rejected := 0
	for i, r := range rows[1:] {
		if blank(r) {
			continue
		}
		t, ok := p.parse(i+2, r)
		if !ok {
			rejected++
			continue
		}
		out = append(out, t)
	}
	p.log.WithField("source", source).WithField("tickets", len(out)).WithField("rejected", rejected).
		Info("tickets loaded")
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseNumber(s string) float64 {
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return math.NaN()
	}
	return f
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/06 15:04",
	"2006-01-02",
}

// parseTime accepts the layouts spreadsheets and databases commonly emit,
// plus Excel serial dates. Layouts without a zone are read in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
