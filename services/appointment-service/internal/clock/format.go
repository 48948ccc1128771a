package clock

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

type HourCycle int

const (
	H24 HourCycle = iota
	H12
)

// Regions whose conventional clock is 12-hour.
var twelveHourRegions = map[string]bool{
	"US": true, "CA": true, "AU": true, "NZ": true, "IN": true, "PH": true,
	"PK": true, "BD": true, "EG": true, "SA": true, "MY": true, "CO": true,
}

// PreferredHourCycle picks 12h or 24h display from a BCP-47 locale. Unknown locales get 24h.
func PreferredHourCycle(locale string) HourCycle {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return H24
	}
	region, conf := tag.Region()
	if conf == language.No {
		return H24
	}
	if twelveHourRegions[region.String()] {
		return H12
	}
	return H24
}

func FormatClock(clock string, cycle HourCycle) string {
	m := TimeToMinutes(clock)
	h, min := m/60, m%60
	if cycle == H24 {
		return fmt.Sprintf("%02d:%02d", h, min)
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, min, suffix)
}

// FormatDateShort renders "Mon, Jun 10".
func FormatDateShort(d time.Time) string {
	return d.Format("Mon, Jan 2")
}

// FormatDateLong renders "Monday, June 10, 2024".
func FormatDateLong(d time.Time) string {
	return d.Format("Monday, January 2, 2006")
}

// WeekRange returns the Sunday that starts d's week and the Saturday that ends it.
func WeekRange(d time.Time) (time.Time, time.Time) {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	start := day.AddDate(0, 0, -int(day.Weekday()))
	return start, start.AddDate(0, 0, 6)
}

func WeekDays(d time.Time) []time.Time {
	start, _ := WeekRange(d)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// TimeSlotLabels lists slot starts across one day. step defaults to 30 minutes.
func TimeSlotLabels(step int) []string {
	if step <= 0 || step > MinutesPerDay {
		step = 30
	}
	labels := make([]string, 0, MinutesPerDay/step)
	for m := 0; m < MinutesPerDay; m += step {
		labels = append(labels, FromMinutes(m))
	}
	return labels
}
