package model

import (
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
)

// LedgerFromMetadata decodes the JSONB bag. A legacy bag holding both pending proposals
// keeps the one initiated last; a pending proposal outranks an unacknowledged response.
// currentDuration stands in for proposals stored without a usable end time.
func LedgerFromMetadata(m events.Metadata, currentDuration int) Ledger {
	l := Ledger{base: m}
	for _, h := range m.RescheduleHistory {
		l.history = append(l.history, historyFromWire(h))
	}

	customer, workspace := m.PendingReschedule, m.WorkspacePendingReschedule
	switch {
	case customer != nil && workspace != nil:
		if customer.InitiatedAt.After(workspace.InitiatedAt) {
			l.Open(proposalFromWire(customer, PartyCustomer, currentDuration))
		} else {
			l.Open(proposalFromWire(workspace, PartyWorkspace, currentDuration))
		}
	case customer != nil:
		l.Open(proposalFromWire(customer, PartyCustomer, currentDuration))
	case workspace != nil:
		l.Open(proposalFromWire(workspace, PartyWorkspace, currentDuration))
	case m.WorkspaceRescheduleAction != nil:
		a := m.WorkspaceRescheduleAction
		l.Respond(Response{Action: Outcome(a.Action), At: a.Timestamp, RescheduleID: a.RescheduleID})
	}
	return l
}

// Metadata encodes the ledger back onto the bag it was decoded from.
func (l *Ledger) Metadata() events.Metadata {
	m := l.base
	m.PendingReschedule = nil
	m.WorkspacePendingReschedule = nil
	m.WorkspaceRescheduleAction = nil
	m.CurrentReschedule = nil
	m.RescheduleHistory = nil

	switch l.kind {
	case CustomerProposed:
		m.PendingReschedule = proposalToWire(l.proposal)
	case WorkspaceProposed:
		m.WorkspacePendingReschedule = proposalToWire(l.proposal)
	case CustomerResponded:
		m.WorkspaceRescheduleAction = &events.Action{
			Action:       string(l.response.Action),
			Timestamp:    l.response.At,
			RescheduleID: l.response.RescheduleID,
		}
	}
	for _, h := range l.history {
		m.RescheduleHistory = append(m.RescheduleHistory, historyToWire(h))
	}
	if n := len(m.RescheduleHistory); n > 0 {
		latest := m.RescheduleHistory[n-1]
		m.CurrentReschedule = &latest
	}
	return m
}

// Row is the snapshot published on the change stream.
func (a *Appointment) Row() events.AppointmentRow {
	memberID, _ := a.Staff.MemberID()
	return events.AppointmentRow{
		ID:                   a.ID,
		WorkspaceID:          a.WorkspaceID,
		Date:                 a.Date,
		Time:                 a.Time,
		Duration:             a.Duration,
		TeamMemberID:         memberID,
		TeamMemberPreference: a.Staff.Preference(),
		Status:               string(a.Status),
		CustomerName:         a.CustomerName,
		ServiceName:          a.ServiceName,
		Metadata:             a.Ledger.Metadata(),
		Version:              a.Version,
		UpdatedAt:            a.UpdatedAt,
	}
}

func proposalFromWire(w *events.Proposal, by Party, currentDuration int) Proposal {
	staff, err := ParseStaffPreference(w.TeamMemberPreference, w.TeamMemberID)
	if err != nil {
		staff = AnyAvailable()
	}
	duration := currentDuration
	if clock.ValidClock(w.NewTime) && clock.ValidClock(w.NewEndTime) {
		if d := clock.DurationBetween(w.NewTime, w.NewEndTime); d > 0 {
			duration = d
		}
	}
	return Proposal{
		RescheduleID:   w.RescheduleID,
		InitiatedBy:    by,
		Date:           w.NewDate,
		Time:           w.NewTime,
		Duration:       duration,
		Staff:          staff,
		InitiatedAt:    w.InitiatedAt,
		PreviousStatus: Status(w.PreviousStatus),
	}
}

func proposalToWire(p *Proposal) *events.Proposal {
	memberID, _ := p.Staff.MemberID()
	return &events.Proposal{
		RescheduleID:         p.RescheduleID,
		NewDate:              p.Date,
		NewTime:              p.Time,
		NewEndTime:           clock.CalculateEndTime(p.Time, p.Duration),
		TeamMemberID:         memberID,
		TeamMemberPreference: p.Staff.Preference(),
		InitiatedAt:          p.InitiatedAt,
		PreviousStatus:       string(p.PreviousStatus),
	}
}

func historyFromWire(h events.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		RescheduleID: h.RescheduleID,
		InitiatedBy:  Party(h.InitiatedBy),
		PreviousDate: h.PreviousDate,
		PreviousTime: h.PreviousTime,
		NewDate:      h.NewDate,
		NewTime:      h.NewTime,
		NewEndTime:   h.NewEndTime,
		TeamMemberID: h.TeamMemberID,
		Outcome:      Outcome(h.Outcome),
		RequestedAt:  h.RequestedAt,
		ResolvedAt:   h.ResolvedAt,
	}
}

func historyToWire(h HistoryEntry) events.HistoryEntry {
	return events.HistoryEntry{
		RescheduleID: h.RescheduleID,
		InitiatedBy:  string(h.InitiatedBy),
		PreviousDate: h.PreviousDate,
		PreviousTime: h.PreviousTime,
		NewDate:      h.NewDate,
		NewTime:      h.NewTime,
		NewEndTime:   h.NewEndTime,
		TeamMemberID: h.TeamMemberID,
		Outcome:      string(h.Outcome),
		RequestedAt:  h.RequestedAt,
		ResolvedAt:   h.ResolvedAt,
	}
}
