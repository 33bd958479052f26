package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// num matches "1.80", "1,80" and "1,800".
const num = `(\d+(?:[.,]\d+)?)`

var (
	dollarPrice = regexp.MustCompile(`\$\s*` + num)
	perLitre    = regexp.MustCompile(num + `\s*(?:\$|dollars?)?\s*(?:/|per\s+)\s*(?:litre|liter|l)\b`)
	atPrice     = regexp.MustCompile(`\bat\s+` + num + `\b`)
	hoursRe     = regexp.MustCompile(num + `\s*-?\s*(?:hours?|hrs?|h)\b`)
	thresholdRe = regexp.MustCompile(`(?:>=?|≥|\bover|\babove|\bmore than|\bgreater than|\blonger than|\bexceed(?:s|ed|ing)?|\bat least|\bbeyond)\s*\$?\s*` + num)
	onTimeRe    = regexp.MustCompile(`\bon[- ]time\b`)
	topNRe      = regexp.MustCompile(`\btop\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\b`)
	daysRe      = regexp.MustCompile(`\b(\d+)\s*-?\s*days?\b`)
	percentRe   = regexp.MustCompile(num + `\s*%`)
	minutesRe   = regexp.MustCompile(num + `\s*-?\s*(?:minutes?|mins?)\b`)
	factorRe    = regexp.MustCompile(`(?:factor\s*(?:of\s*)?` + num + `|` + num + `\s*kg\s*/\s*l\b)`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// parseNumber reads a decimal written with either separator. A comma followed
// by exactly three digits is a thousands separator.
func parseNumber(s string) (float64, bool) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		if len(s)-i-1 == 3 {
			s = strings.Replace(s, ",", "", 1)
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func firstNumber(re *regexp.Regexp, q string) (float64, bool) {
	m := re.FindStringSubmatch(strings.ToLower(q))
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g != "" {
			return parseNumber(g)
		}
	}
	return 0, false
}

// ExtractPrice finds a per-litre price: "$1.80", "1,80/L", "1.80 per litre".
func ExtractPrice(q string) (float64, bool) {
	for _, re := range []*regexp.Regexp{dollarPrice, perLitre, atPrice} {
		if p, ok := firstNumber(re, q); ok {
			return p, true
		}
	}
	return 0, false
}

// ExtractHours finds a shift length such as "10 hour window" or "8h".
// Spans longer than a day are windows, not shifts.
func ExtractHours(q string) (float64, bool) {
	h, ok := firstNumber(hoursRe, q)
	return h, ok && h > 0 && h <= 24
}

// ExtractThreshold finds a comparison bound: "> 40 km", "over 100 L".
func ExtractThreshold(q string) (float64, bool) {
	return firstNumber(thresholdRe, q)
}

func ExtractPercent(q string) (float64, bool) {
	return firstNumber(percentRe, q)
}

func ExtractMinutes(q string) (float64, bool) {
	return firstNumber(minutesRe, q)
}

// ExtractFactor finds an emission factor: "factor 2.5" or "2.5 kg/L".
func ExtractFactor(q string) (float64, bool) {
	f, ok := firstNumber(factorRe, q)
	return f, ok && f > 0
}

// ExtractTopN reads "top 3" or "top three".
func ExtractTopN(q string) (int, bool) {
	m := topNRe.FindStringSubmatch(strings.ToLower(q))
	if m == nil {
		return 0, false
	}
	if n, ok := numberWords[m[1]]; ok {
		return n, true
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil && n > 0
}

// ExtractDays reads "last 14 days" or "7-day".
func ExtractDays(q string) (int, bool) {
	m := daysRe.FindStringSubmatch(strings.ToLower(q))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil && n > 0
}

// ExtractWindow picks the reporting period named in q, or def.
func ExtractWindow(q string, def window.Window) window.Window {
	t := newText(q)
	switch {
	case t.any("yesterday"):
		return window.Yesterday
	case t.any("48h", "48 h", "two days", "2 days"):
		return window.Last48h
	case t.any("week to date", "week-to-date", "wtd", "since monday"):
		return window.WeekToDate
	case t.any("week", "7 days", "seven days", "7d"):
		return window.Last7d
	case t.any("month"):
		return window.MonthToDate
	case t.any("year", "ytd"):
		return window.YearToDate
	case t.any("today", "so far", "this morning", "this afternoon"):
		return window.Today
	case t.any("all time", "ever", "overall"):
		return window.All
	}
	return def
}
