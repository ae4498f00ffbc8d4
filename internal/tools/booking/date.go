package booking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IST is the zone visit dates and times are given in.
var IST = time.FixedZone("IST", 5*3600+1800)

const dateLayout = "02/01/2006"

var (
	slashDate   = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	isoDate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	dashDate    = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	daysFromNow = regexp.MustCompile(`(\d+)\s+days?\s+from\s+(today|now)`)
	inDays      = regexp.MustCompile(`in\s+(\d+)\s+days?`)
	ordinal     = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)`)
	leadingDay  = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)?`)

	weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	months   = []string{"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december"}
)

// NormalizeDate turns the date a model passes ("tomorrow", "next friday",
// "25th march", "2025-03-25") into DD/MM/YYYY relative to now in IST.
// Unrecognised input is returned trimmed.
func NormalizeDate(raw string, now time.Time) string {
	q := strings.ToLower(strings.TrimSpace(raw))
	now = now.In(IST)
	format := func(t time.Time) string { return t.Format(dateLayout) }
	day := func(year int, month time.Month, d int) string {
		return format(time.Date(year, month, d, 0, 0, 0, 0, IST))
	}

	if slashDate.MatchString(q) {
		return q
	}
	if m := isoDate.FindStringSubmatch(q); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[3], m[2], m[1])
	}
	if m := dashDate.FindStringSubmatch(q); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])
	}
	if m := daysFromNow.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return format(now.AddDate(0, 0, n))
	}
	if m := inDays.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return format(now.AddDate(0, 0, n))
	}
	switch {
	case strings.Contains(q, "today"):
		return format(now)
	case strings.Contains(q, "day after tomorrow"):
		return format(now.AddDate(0, 0, 2))
	case strings.Contains(q, "tomorrow"):
		return format(now.AddDate(0, 0, 1))
	}

	ordinalDay := func(fallback int) int {
		if m := ordinal.FindStringSubmatch(q); m != nil {
			d, _ := strconv.Atoi(m[1])
			return d
		}
		return fallback
	}
	if strings.Contains(q, "of current month") && ordinal.MatchString(q) {
		return day(now.Year(), now.Month(), ordinalDay(1))
	}
	if strings.Contains(q, "next to next month") {
		t := time.Date(now.Year(), now.Month()+2, 1, 0, 0, 0, 0, IST)
		return day(t.Year(), t.Month(), ordinalDay(1))
	}
	if strings.Contains(q, "next month") {
		t := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, IST)
		return day(t.Year(), t.Month(), ordinalDay(1))
	}

	for i, name := range months {
		if !strings.Contains(q, name) {
			continue
		}
		d := 1
		if m := leadingDay.FindStringSubmatch(q); m != nil {
			d, _ = strconv.Atoi(m[1])
		}
		month := time.Month(i + 1)
		year := now.Year()
		if month < now.Month() {
			year++
		}
		return day(year, month, d)
	}

	for i, name := range weekdays {
		if !strings.Contains(q, name) {
			continue
		}
		delta := (i - int(now.Weekday()) + 7) % 7
		if delta == 0 && strings.Contains(q, "next") {
			delta = 7
		}
		return format(now.AddDate(0, 0, delta))
	}

	if ordinal.MatchString(q) {
		return day(now.Year(), now.Month(), ordinalDay(1))
	}
	return strings.TrimSpace(raw)
}

var timeLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

// VisitTime combines a normalised DD/MM/YYYY date and a clock time into an
// IST timestamp.
func VisitTime(date, clock string) (time.Time, error) {
	d, err := time.ParseInLocation("2/1/2006", date, IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse visit date %q: %w", date, err)
	}
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, IST), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse visit time %q", clock)
}
