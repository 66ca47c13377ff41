package core

// convert.go provides the cleaning functions applied to spreadsheet cells
// before they reach the database.
//
// These functions handle the messy reality of exported spreadsheets:
//   - Padding and invalid byte sequences in text
//   - Day-first and month-first dates, two-digit years, trailing times
//   - Dates stored as Excel serial numbers
//   - Integers exported as floats ("2019.0")
//
// All functions return pgtype values with Valid=false for empty or unusable
// input, so the database stores NULL instead of rejecting the row.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xuri/excelize/v2"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// DateOrder disambiguates numeric dates such as 03/04/2001.
type DateOrder int

const (
	DayFirst DateOrder = iota
	MonthFirst
)

// ParseDateOrder accepts "dmy" or "mdy".
func ParseDateOrder(s string) (DateOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dmy", "day-first":
		return DayFirst, nil
	case "mdy", "month-first":
		return MonthFirst, nil
	default:
		return DayFirst, fmt.Errorf("unknown date order %q", s)
	}
}

func (o DateOrder) String() string {
	if o == MonthFirst {
		return "mdy"
	}
	return "dmy"
}

// Date layouts split by year format for proper 2-digit year handling
var (
	isoLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
	}
	dayFirstLayouts = []string{
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
	}
	monthFirstLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
	}
	namedMonthLayouts = []string{
		"2 Jan 2006", "2 January 2006", "02-Jan-2006", "Jan 2, 2006", "January 2, 2006",
	}
	dayFirstShortLayouts   = []string{"2/1/06", "2-1-06", "2.1.06"}
	monthFirstShortLayouts = []string{"1/2/06", "1-2-06", "1.2.06"}
)

var timeSuffix = regexp.MustCompile(`[ T]\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?$`)

// Excel serials accepted as dates: 1900-01-01 through 9999-12-31.
const maxExcelSerial = 2958465

// CleanText trims surrounding whitespace and drops invalid UTF-8 sequences.
func CleanText(s string) string {
	return strings.ToValidUTF8(strings.TrimSpace(s), "")
}

// ToPgText converts a cell to pgtype.Text.
// Returns invalid if the cleaned string is empty.
func ToPgText(s string) pgtype.Text {
	s = CleanText(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// CleanInteger converts a cell to pgtype.Int4.
// Float-like values are truncated toward zero ("2019.0" -> 2019). Anything
// non-numeric or outside the int32 range is invalid.
func CleanInteger(s string) pgtype.Int4 {
	s = CleanText(s)
	if s == "" {
		return pgtype.Int4{Valid: false}
	}

	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return pgtype.Int4{Int32: int32(i), Valid: true}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return pgtype.Int4{Valid: false}
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(f), Valid: true}
}

// CleanDate converts a cell to pgtype.Date.
//
// Accepted forms, in order: ISO dates, a bare year (January 1st), numeric
// dates in the given order, numeric dates in the other order, dates with
// month names, and Excel serial numbers. Two-digit years use the pivot. A
// trailing time of day is ignored.
func CleanDate(s string, order DateOrder) pgtype.Date {
	s = stripTime(CleanText(s))
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	if t, ok := parseLayouts(isoLayouts, s); ok {
		return toDate(t)
	}

	if len(s) == 4 {
		if y, err := strconv.Atoi(s); err == nil && y >= 1900 && y <= 2100 {
			return toDate(time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
		}
	}

	// The order is a preference: 12/25/2001 read day-first has no month 25.
	fallback := MonthFirst
	if order == MonthFirst {
		fallback = DayFirst
	}
	for _, o := range []DateOrder{order, fallback} {
		if t, ok := parseNumeric(s, o); ok {
			return toDate(t)
		}
	}

	if t, ok := parseLayouts(namedMonthLayouts, s); ok {
		return toDate(t)
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return toDate(t)
		}
	}

	return pgtype.Date{Valid: false}
}

// parseNumeric tries the four-digit then two-digit year layouts of one order.
func parseNumeric(s string, order DateOrder) (time.Time, bool) {
	numeric, short := dayFirstLayouts, dayFirstShortLayouts
	if order == MonthFirst {
		numeric, short = monthFirstLayouts, monthFirstShortLayouts
	}
	if t, ok := parseLayouts(numeric, s); ok {
		return t, true
	}
	t, ok := parseLayouts(short, s)
	if !ok {
		return time.Time{}, false
	}
	if t.Year() > time.Now().Year()+TwoDigitYearPivot {
		t = t.AddDate(-100, 0, 0)
	}
	return t, true
}

// NormalizeInstitutionType maps the French and English spellings of the
// institution type to "public" or "private". Other values pass through
// cleaned, so the store can reject them.
func NormalizeInstitutionType(s string) pgtype.Text {
	t := ToPgText(s)
	if !t.Valid {
		return t
	}
	switch strings.ToLower(t.String) {
	case "public", "publique":
		t.String = "public"
	case "private", "privée", "privee", "privé", "prive":
		t.String = "private"
	}
	return t
}

func parseLayouts(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stripTime drops a " 00:00:00" or "T00:00:00" suffix.
func stripTime(s string) string {
	return strings.TrimSpace(timeSuffix.ReplaceAllString(s, ""))
}

func toDate(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}
