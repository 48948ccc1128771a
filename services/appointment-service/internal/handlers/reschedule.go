package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/messaging"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/slotwise/slotwise/services/appointment-service/internal/negotiation"
)

type actionRequest struct {
	AppointmentID   string `json:"appointmentId" validate:"required,max=64"`
	WorkspaceID     string `json:"workspaceId" validate:"required,max=64"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	Reason          string `json:"reason,omitempty" validate:"max=500"`
}

type rescheduleRequest struct {
	actionRequest
	NewDate              string `json:"newDate" validate:"required,datetime=2006-01-02"`
	NewTime              string `json:"newTime" validate:"required"`
	NewEndTime           string `json:"newEndTime" validate:"required"`
	TeamMemberID         string `json:"teamMemberId,omitempty"`
	TeamMemberPreference string `json:"teamMemberPreference" validate:"omitempty,oneof=specific any"`
}

type transitionFunc func(a *model.Appointment, by model.Party) (negotiation.Outcome, error)

func (h *Handler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	proposal, err := parseProposal(req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.transition(w, r, req.actionRequest, func(a *model.Appointment, by model.Party) (negotiation.Outcome, error) {
		return h.neg.Propose(a, by, proposal)
	}, proposal.Staff)
}

func (h *Handler) ConfirmReschedule(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.neg.Confirm)
}

func (h *Handler) DeclineReschedule(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.neg.Decline)
}

func (h *Handler) AcknowledgeReschedule(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.neg.Acknowledge)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.neg.ConfirmBooking)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, func(a *model.Appointment, _ model.Party) (negotiation.Outcome, error) {
		return h.neg.Cancel(a)
	})
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.transition(w, r, req, fn, model.AnyAvailable())
}

// transition authorizes the caller, applies fn to the locked appointment and queues the
// customer message in the same write. A customer with no reachable channel does not fail it.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, req actionRequest, fn transitionFunc, staff model.StaffPreference) {
	ctx := r.Context()
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)

	by, err := party(r, req.WorkspaceID, req.AppointmentID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	ws, err := h.store.Workspace(ctx, req.WorkspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	members, err := h.store.TeamMembers(ctx, req.WorkspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if id, ok := staff.MemberID(); ok && !hasMember(members, id) {
		h.writeErr(w, r, fmt.Errorf("%w: %s", errUnknownMember, id))
		return
	}

	var out negotiation.Outcome
	a, err := h.store.Mutate(ctx, req.WorkspaceID, req.AppointmentID, req.ExpectedVersion, func(a *model.Appointment) ([]outbox.Event, error) {
		o, err := fn(a, by)
		if err != nil {
			return nil, err
		}
		out = o
		evt, ok, err := h.messages.Build(a, o, messaging.Context{Workspace: ws, Members: members, Reason: req.Reason})
		if errors.Is(err, messaging.ErrNoRecipient) {
			h.logger.Warn("customer message skipped", "appointment_id", a.ID, "kind", o.Message, "err", err)
			return nil, nil
		}
		if err != nil || !ok {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("appointment transition",
		"appointment_id", a.ID,
		"workspace_id", a.WorkspaceID,
		"party", string(by),
		"outcome", string(out.Kind),
		"reschedule_id", out.RescheduleID,
		"version", a.Version,
	)
	httpx.WriteJSON(w, http.StatusOK, transitionView(a, by, out))
}

func parseProposal(req rescheduleRequest) (negotiation.Request, error) {
	start, err := clock.Normalize(req.NewTime)
	if err != nil {
		return negotiation.Request{}, err
	}
	end, err := clock.Normalize(req.NewEndTime)
	if err != nil {
		return negotiation.Request{}, err
	}
	duration := clock.DurationBetween(start, end)
	if duration <= 0 {
		return negotiation.Request{}, fmt.Errorf("%w: newEndTime must differ from newTime", negotiation.ErrInvalidProposal)
	}
	staff, err := model.ParseStaffPreference(req.TeamMemberPreference, req.TeamMemberID)
	if err != nil {
		return negotiation.Request{}, err
	}
	return negotiation.Request{Date: req.NewDate, Time: start, Duration: duration, Staff: staff}, nil
}

func hasMember(members []model.TeamMember, id string) bool {
	for _, m := range members {
		if m.ID == id {
			return true
		}
	}
	return false
}
