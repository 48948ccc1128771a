package handlers

import (
	"time"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/slotwise/slotwise/services/appointment-service/internal/negotiation"
)

type appointmentView struct {
	ID                   string          `json:"id"`
	WorkspaceID          string          `json:"workspaceId"`
	Date                 string          `json:"date"`
	Time                 string          `json:"time"`
	EndTime              string          `json:"endTime"`
	Duration             int             `json:"duration"`
	TeamMemberID         string          `json:"teamMemberId,omitempty"`
	TeamMemberPreference string          `json:"teamMemberPreference"`
	Status               string          `json:"status"`
	CustomerName         string          `json:"customerName"`
	ServiceID            string          `json:"serviceId,omitempty"`
	ServiceName          string          `json:"serviceName,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	InternalNotes        string          `json:"internalNotes,omitempty"`
	Negotiation          string          `json:"negotiation"`
	Metadata             events.Metadata `json:"metadata"`
	Version              int64           `json:"version"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// view hides staff-only fields from customers.
func view(a *model.Appointment, p model.Party) appointmentView {
	memberID, _ := a.Staff.MemberID()
	v := appointmentView{
		ID:                   a.ID,
		WorkspaceID:          a.WorkspaceID,
		Date:                 a.Date,
		Time:                 a.Time,
		EndTime:              a.EndTime(),
		Duration:             a.Duration,
		TeamMemberID:         memberID,
		TeamMemberPreference: a.Staff.Preference(),
		Status:               string(a.Status),
		CustomerName:         a.CustomerName,
		ServiceID:            a.ServiceID,
		ServiceName:          a.ServiceName,
		Notes:                a.Notes,
		Negotiation:          a.Ledger.Kind().String(),
		Metadata:             a.Ledger.Metadata(),
		Version:              a.Version,
		UpdatedAt:            a.UpdatedAt,
	}
	if p == model.PartyWorkspace {
		v.InternalNotes = a.InternalNotes
	}
	return v
}

type transitionResponse struct {
	Appointment  appointmentView `json:"appointment"`
	Outcome      string          `json:"outcome"`
	RescheduleID string          `json:"rescheduleId,omitempty"`
}

func transitionView(a *model.Appointment, p model.Party, out negotiation.Outcome) transitionResponse {
	return transitionResponse{
		Appointment:  view(a, p),
		Outcome:      string(out.Kind),
		RescheduleID: out.RescheduleID,
	}
}
