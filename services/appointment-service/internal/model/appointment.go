package model

import (
	"time"

	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses accept no further negotiation.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

type Appointment struct {
	ID          string
	WorkspaceID string

	Date     string // YYYY-MM-DD
	Time     string // HH:MM
	Duration int    // minutes
	Staff    StaffPreference
	Status   Status

	CustomerName           string
	CustomerPhone          string
	CustomerEmail          string
	CustomerTelegramChatID int64
	Notes                  string
	InternalNotes          string

	ServiceID   string
	ServiceName string

	Ledger  Ledger
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) EndTime() string {
	return clock.CalculateEndTime(a.Time, a.Duration)
}

func (a *Appointment) StartMinutes() int {
	return clock.TimeToMinutes(a.Time)
}

// Clone copies the appointment including its history so callers can diff before and after.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.Ledger = a.Ledger.clone()
	return &c
}
