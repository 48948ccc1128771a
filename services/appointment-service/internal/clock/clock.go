// Package clock converts between HH:MM clock strings, minute offsets and calendar geometry.
// The arithmetic helpers assume validated input; use ParseClock at the edges.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

var (
	ErrInvalidClock = errors.New("invalid clock time")
	ErrInvalidDate  = errors.New("invalid date")
)

const DateLayout = "2006-01-02"

// ParseClock accepts HH:MM or HH:MM:SS and returns minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return h*60 + m, nil
}

func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

// Normalize rewrites any accepted clock form as zero-padded HH:MM.
func Normalize(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FromMinutes(m), nil
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func TimeToMinutes(clock string) int {
	m, _ := ParseClock(clock)
	return m
}

// FromMinutes formats a minute offset as HH:MM, wrapping into a single day.
func FromMinutes(m int) string {
	m = ((m % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func CalculateEndTime(start string, durationMinutes int) string {
	return FromMinutes(TimeToMinutes(start) + durationMinutes)
}

// DurationBetween returns the minutes from start to end, wrapping past midnight.
// Equal times yield 0.
func DurationBetween(start, end string) int {
	d := TimeToMinutes(end) - TimeToMinutes(start)
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}

// Display positions an appointment block inside one hour cell.
type Display struct {
	Top    string `json:"top"`
	Height string `json:"height"`
}

// CalculateAppointmentDisplay returns the block geometry only for the hour bucket that
// contains the appointment start, so a long appointment is drawn once and spans downward.
func CalculateAppointmentDisplay(start string, durationMinutes, hourStartMinutes int) *Display {
	s := TimeToMinutes(start)
	if s < hourStartMinutes || s >= hourStartMinutes+60 {
		return nil
	}
	return &Display{
		Top:    Percent(float64((s-hourStartMinutes)*100) / 60),
		Height: Percent(float64(durationMinutes*100) / 60),
	}
}

// Percent renders v with the shortest decimal that round-trips, e.g. "25%".
func Percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
