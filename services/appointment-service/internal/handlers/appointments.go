package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

const maxRangeDays = 62

type createRequest struct {
	WorkspaceID            string `json:"workspaceId" validate:"required,max=64"`
	Date                   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time                   string `json:"time" validate:"required"`
	Duration               int    `json:"duration" validate:"required,min=1,max=1439"`
	TeamMemberID           string `json:"teamMemberId,omitempty"`
	TeamMemberPreference   string `json:"teamMemberPreference" validate:"omitempty,oneof=specific any"`
	ServiceID              string `json:"serviceId,omitempty"`
	Status                 string `json:"status" validate:"omitempty,oneof=pending confirmed"`
	CustomerName           string `json:"customerName" validate:"required,max=200"`
	CustomerPhone          string `json:"customerPhone,omitempty" validate:"omitempty,e164"`
	CustomerEmail          string `json:"customerEmail,omitempty" validate:"omitempty,email"`
	CustomerTelegramChatID int64  `json:"customerTelegramChatId,omitempty"`
	Notes                  string `json:"notes,omitempty" validate:"max=2000"`
	InternalNotes          string `json:"internalNotes,omitempty" validate:"max=2000"`
}

// Appointments lists a date range on GET and records a new booking on POST.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	workspaceID := strings.TrimSpace(q.Get("workspaceId"))
	if err := requireWorkspaceMember(r, workspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	ws, err := h.store.Workspace(ctx, workspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	today := h.today(ws)
	from, err := dateParam(q.Get("from"), today)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	to, err := dateParam(q.Get("to"), from)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if to.Before(from) || to.Sub(from) > maxRangeDays*24*time.Hour {
		h.writeErr(w, r, fmt.Errorf("%w: range must be 0 to %d days", httpx.ErrBadRequest, maxRangeDays))
		return
	}

	appts, err := h.store.ListRange(ctx, workspaceID, from, to)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]appointmentView, 0, len(appts))
	for i := range appts {
		items = append(items, view(&appts[i], model.PartyWorkspace))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"from":         from.Format(clock.DateLayout),
		"to":           to.Format(clock.DateLayout),
		"appointments": items,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)
	if err := requireWorkspaceMember(r, req.WorkspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}

	start, err := clock.Normalize(req.Time)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	staff, err := model.ParseStaffPreference(req.TeamMemberPreference, req.TeamMemberID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if id, ok := staff.MemberID(); ok {
		members, err := h.store.TeamMembers(ctx, req.WorkspaceID)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		if !hasMember(members, id) {
			h.writeErr(w, r, fmt.Errorf("%w: %s", errUnknownMember, id))
			return
		}
	}

	a := &model.Appointment{
		WorkspaceID:            req.WorkspaceID,
		Date:                   req.Date,
		Time:                   start,
		Duration:               req.Duration,
		Staff:                  staff,
		Status:                 model.StatusPending,
		CustomerName:           strings.TrimSpace(req.CustomerName),
		CustomerPhone:          strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:          strings.TrimSpace(req.CustomerEmail),
		CustomerTelegramChatID: req.CustomerTelegramChatID,
		Notes:                  strings.TrimSpace(req.Notes),
		InternalNotes:          strings.TrimSpace(req.InternalNotes),
		ServiceID:              strings.TrimSpace(req.ServiceID),
	}
	if req.Status != "" {
		a.Status = model.Status(req.Status)
	}
	if a.ServiceID != "" {
		name, err := h.store.ServiceName(ctx, a.WorkspaceID, a.ServiceID)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		a.ServiceName = name
	}

	saved, created, err := h.store.Create(ctx, a, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
		h.logger.Info("appointment created", "appointment_id", saved.ID, "workspace_id", saved.WorkspaceID)
	}
	httpx.WriteJSON(w, code, view(saved, model.PartyWorkspace))
}

// Detail serves a single appointment to staff or to the customer it belongs to.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	workspaceID := strings.TrimSpace(q.Get("workspaceId"))
	appointmentID := strings.TrimSpace(q.Get("appointmentId"))
	by, err := party(r, workspaceID, appointmentID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if appointmentID == "" {
		h.writeErr(w, r, fmt.Errorf("%w: appointmentId is required", httpx.ErrBadRequest))
		return
	}
	a, err := h.store.Get(r.Context(), workspaceID, appointmentID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view(a, by))
}

// PendingReschedules returns pending appointments carrying a customer proposal as change-stream rows.
func (h *Handler) PendingReschedules(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
	if err := requireWorkspaceMember(r, workspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	appts, err := h.store.ListPendingReschedules(r.Context(), workspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	rows := make([]events.AppointmentRow, 0, len(appts))
	for i := range appts {
		rows = append(rows, appts[i].Row())
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": rows})
}

func (h *Handler) today(ws *model.Workspace) time.Time {
	now := h.now().In(ws.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func dateParam(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return clock.ParseDate(raw)
}
