package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/services/appointment-service/internal/calendar"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
)

func (h *Handler) Grid(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	workspaceID := strings.TrimSpace(q.Get("workspaceId"))
	if err := requireWorkspaceMember(r, workspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}

	mode := calendar.View(q.Get("view"))
	if mode == "" {
		mode = calendar.ViewDay
	}
	layout := calendar.Layout(q.Get("layout"))
	if layout == "" {
		layout = calendar.LayoutStack
	}
	if (mode != calendar.ViewDay && mode != calendar.ViewWeek) || (layout != calendar.LayoutStack && layout != calendar.LayoutColumns) {
		h.writeErr(w, r, fmt.Errorf("%w: view must be day|week and layout stack|columns", httpx.ErrBadRequest))
		return
	}

	ws, err := h.store.Workspace(ctx, workspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	date, err := dateParam(q.Get("date"), h.today(ws))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	from, to := date, date
	if mode == calendar.ViewWeek {
		from, to = clock.WeekRange(date)
	}
	appts, err := h.store.ListRange(ctx, workspaceID, from, to)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	opts := calendar.Options{
		Layout:         layout,
		WorkspaceHours: ws.Hours,
		HourCycle:      clock.PreferredHourCycle(ws.Locale),
	}
	if mode == calendar.ViewWeek {
		httpx.WriteJSON(w, http.StatusOK, calendar.BuildWeek(date, ws.Hours, appts, opts))
		return
	}
	members, err := h.store.TeamMembers(ctx, workspaceID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, calendar.BuildDay(date, members, appts, opts))
}
