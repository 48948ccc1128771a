package model

import (
	"time"

	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
)

// Interval is an operating-hours range, open inclusive and close exclusive.
type Interval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type WeeklyHours map[time.Weekday][]Interval

// Available reports whether a slot starting at slotMinutes falls inside any interval for day.
func (h WeeklyHours) Available(day time.Weekday, slotMinutes int) bool {
	for _, iv := range h[day] {
		if clock.TimeToMinutes(iv.Open) <= slotMinutes && slotMinutes < clock.TimeToMinutes(iv.Close) {
			return true
		}
	}
	return false
}

type TeamMember struct {
	ID    string
	Name  string
	Role  string
	Hours WeeklyHours
}

type Workspace struct {
	ID       string
	Name     string
	Timezone string
	Locale   string
	Hours    WeeklyHours
}

func (w *Workspace) Location() *time.Location {
	if w == nil || w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
