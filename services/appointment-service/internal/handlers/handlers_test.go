package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotwise/slotwise/libs/auth"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/appointment-service/internal/messaging"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newServer(t *testing.T, store *memStore) http.Handler {
	t.Helper()
	h := New(store, messaging.Builder{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	h.Register(mux)
	return auth.RequireBearer(auth.Verifier{Secret: secret}, mux)
}

func token(t *testing.T, c auth.Claims) string {
	t.Helper()
	if c.Sub == "" {
		c.Sub = "user-1"
	}
	tok, err := auth.SignHS256(c, secret)
	require.NoError(t, err)
	return tok
}

func staffToken(t *testing.T) string {
	return token(t, auth.Claims{WorkspaceID: "ws-1", Role: auth.RoleOwner})
}

func customerToken(t *testing.T, appointmentID string) string {
	return token(t, auth.Claims{WorkspaceID: "ws-1", Role: auth.RoleCustomer, AppointmentID: appointmentID})
}

func do(t *testing.T, srv http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func seedX(store *memStore) {
	store.put(&model.Appointment{
		ID: "X", WorkspaceID: "ws-1", Date: "2024-06-05", Time: "09:00", Duration: 60,
		Staff: model.Specific("tm-1"), Status: model.StatusConfirmed,
		CustomerName: "Dana", CustomerPhone: "+15550100", InternalNotes: "prefers window seat",
	})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestWorkspaceProposeThenCustomerConfirms(t *testing.T) {
	store := newMemStore()
	seedX(store)
	srv := newServer(t, store)

	rec := do(t, srv, http.MethodPost, "/api/appointments/request-reschedule", staffToken(t), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
		"newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "14:30",
		"teamMemberPreference": "any",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[transitionResponse](t, rec)
	assert.Equal(t, "proposed", resp.Outcome)
	assert.Equal(t, "confirmed", resp.Appointment.Status)
	require.NotNil(t, resp.Appointment.Metadata.WorkspacePendingReschedule)
	assert.Equal(t, "14:30", resp.Appointment.Metadata.WorkspacePendingReschedule.NewEndTime)

	evts := store.events()
	require.Len(t, evts, 1)
	var msg events.MessageRequested
	require.NoError(t, json.Unmarshal(evts[0].Payload, &msg))
	assert.Equal(t, events.MessageRescheduleProposed, msg.Kind)
	assert.Equal(t, "2:00 PM", msg.TemplateData.ProposedTime)

	rec = do(t, srv, http.MethodPost, "/api/appointments/confirm-reschedule", customerToken(t, "X"), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[transitionResponse](t, rec)
	assert.Empty(t, resp.Appointment.InternalNotes, "customers never see internal notes")

	x := store.snapshot("X")
	assert.Equal(t, "2024-06-10", x.Date)
	assert.Equal(t, "14:00", x.Time)
	m := x.Ledger.Metadata()
	assert.Nil(t, m.WorkspacePendingReschedule)
	require.Len(t, m.RescheduleHistory, 1)
	assert.Equal(t, "confirmed", m.RescheduleHistory[0].Outcome)
	assert.Equal(t, "confirmed", m.WorkspaceRescheduleAction.Action)
	assert.Equal(t, int64(3), x.Version)

	rec = do(t, srv, http.MethodPost, "/api/appointments/acknowledge-reschedule", staffToken(t), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, store.snapshot("X").Ledger.Metadata().HasWorkspaceRescheduleAction())
}

func TestCustomerDeclineKeepsSchedule(t *testing.T) {
	store := newMemStore()
	seedX(store)
	srv := newServer(t, store)

	rec := do(t, srv, http.MethodPost, "/api/appointments/request-reschedule", staffToken(t), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
		"newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "14:30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/appointments/decline-reschedule", customerToken(t, "X"), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	x := store.snapshot("X")
	assert.Equal(t, "2024-06-05", x.Date)
	assert.Equal(t, "09:00", x.Time)
	assert.Equal(t, "declined", x.Ledger.Metadata().WorkspaceRescheduleAction.Action)
}

func TestCustomerProposalShowsInPendingReschedules(t *testing.T) {
	store := newMemStore()
	seedX(store)
	srv := newServer(t, store)

	rec := do(t, srv, http.MethodPost, "/api/appointments/request-reschedule", customerToken(t, "X"), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1",
		"newDate": "2024-06-11", "newTime": "10:00", "newEndTime": "11:00",
		"teamMemberId": "tm-2", "teamMemberPreference": "specific",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusPending, store.snapshot("X").Status)

	rec = do(t, srv, http.MethodGet, "/api/appointments/pending-reschedules?workspaceId=ws-1", staffToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Appointments []events.AppointmentRow `json:"appointments"`
	}](t, rec)
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "X", body.Appointments[0].ID)
	assert.True(t, body.Appointments[0].Metadata.HasPendingReschedule())

	rec = do(t, srv, http.MethodGet, "/api/appointments/pending-reschedules?workspaceId=ws-1", customerToken(t, "X"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusMapping(t *testing.T) {
	store := newMemStore()
	seedX(store)
	store.put(&model.Appointment{ID: "Y", WorkspaceID: "ws-1", Date: "2024-06-05", Time: "11:00", Duration: 30, Status: model.StatusCompleted})
	srv := newServer(t, store)
	action := func(id string) map[string]any { return map[string]any{"appointmentId": id, "workspaceId": "ws-1"} }

	tests := []struct {
		name string
		path string
		tok  string
		body any
		want int
	}{
		{"no token", "/api/appointments/confirm-reschedule", "", action("X"), http.StatusUnauthorized},
		{"other workspace", "/api/appointments/confirm-reschedule", token(t, auth.Claims{WorkspaceID: "ws-2", Role: auth.RoleOwner}), map[string]any{"appointmentId": "X", "workspaceId": "ws-2"}, http.StatusNotFound},
		{"foreign workspace id", "/api/appointments/confirm-reschedule", token(t, auth.Claims{WorkspaceID: "ws-2", Role: auth.RoleOwner}), action("X"), http.StatusForbidden},
		{"customer of another appointment", "/api/appointments/confirm-reschedule", customerToken(t, "Z"), action("X"), http.StatusForbidden},
		{"missing field", "/api/appointments/confirm-reschedule", staffToken(t), map[string]any{"workspaceId": "ws-1"}, http.StatusBadRequest},
		{"nothing to confirm", "/api/appointments/confirm-reschedule", staffToken(t), action("X"), http.StatusConflict},
		{"unknown appointment", "/api/appointments/cancel", staffToken(t), action("nope"), http.StatusNotFound},
		{"terminal", "/api/appointments/cancel", staffToken(t), action("Y"), http.StatusConflict},
		{"confirm booking not pending", "/api/appointments/confirm", staffToken(t), action("X"), http.StatusConflict},
		{"customer cannot confirm booking", "/api/appointments/confirm", customerToken(t, "X"), action("X"), http.StatusForbidden},
		{"stale version", "/api/appointments/cancel", staffToken(t), map[string]any{"appointmentId": "X", "workspaceId": "ws-1", "expectedVersion": 7}, http.StatusConflict},
		{"zero length proposal", "/api/appointments/request-reschedule", staffToken(t), map[string]any{"appointmentId": "X", "workspaceId": "ws-1", "newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "14:00"}, http.StatusBadRequest},
		{"specific without id", "/api/appointments/request-reschedule", staffToken(t), map[string]any{"appointmentId": "X", "workspaceId": "ws-1", "newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "15:00", "teamMemberPreference": "specific"}, http.StatusBadRequest},
		{"unknown member", "/api/appointments/request-reschedule", staffToken(t), map[string]any{"appointmentId": "X", "workspaceId": "ws-1", "newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "15:00", "teamMemberId": "ghost"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, tc.path, tc.tok, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.True(t, strings.Contains(rec.Body.String(), `"error"`), rec.Body.String())
		})
	}

	x := store.snapshot("X")
	assert.Equal(t, model.StatusConfirmed, x.Status, "failed requests leave the appointment untouched")
	assert.Equal(t, int64(1), x.Version)
}

func TestCancelIsIdempotentAndBlocksProposals(t *testing.T) {
	store := newMemStore()
	seedX(store)
	srv := newServer(t, store)
	body := map[string]any{"appointmentId": "X", "workspaceId": "ws-1", "reason": "closed for holiday"}

	rec := do(t, srv, http.MethodPost, "/api/appointments/cancel", customerToken(t, "X"), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodPost, "/api/appointments/cancel", staffToken(t), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), store.snapshot("X").Version, "second cancel writes nothing")
	assert.Len(t, store.events(), 1)

	rec = do(t, srv, http.MethodPost, "/api/appointments/request-reschedule", staffToken(t), map[string]any{
		"appointmentId": "X", "workspaceId": "ws-1", "newDate": "2024-06-10", "newTime": "14:00", "newEndTime": "14:30",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, newMemStore())
	rec := do(t, srv, http.MethodGet, "/api/appointments/confirm", staffToken(t), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateAndListAndDetail(t *testing.T) {
	store := newMemStore()
	srv := newServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(`{
		"workspaceId":"ws-1","date":"2024-06-10","time":"9:30","duration":45,
		"teamMemberId":"tm-1","serviceId":"svc-1","customerName":"Eli","customerEmail":"eli@example.com"}`))
	req.Header.Set("Authorization", "Bearer "+staffToken(t))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[appointmentView](t, rec)
	assert.Equal(t, "09:30", created.Time)
	assert.Equal(t, "10:15", created.EndTime)
	assert.Equal(t, "Haircut", created.ServiceName)
	assert.Equal(t, "pending", created.Status)

	rec = do(t, srv, http.MethodGet, "/api/appointments?workspaceId=ws-1", staffToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[struct {
		From         string            `json:"from"`
		Appointments []appointmentView `json:"appointments"`
	}](t, rec)
	assert.Equal(t, "2024-06-10", list.From)
	require.Len(t, list.Appointments, 1)

	rec = do(t, srv, http.MethodGet, "/api/appointments/detail?workspaceId=ws-1&appointmentId="+created.ID, customerToken(t, created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/appointments?workspaceId=ws-1&from=2024-06-10&to=2024-01-01", staffToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrid(t *testing.T) {
	store := newMemStore()
	store.put(&model.Appointment{
		ID: "L", WorkspaceID: "ws-1", Date: "2024-06-10", Time: "10:15", Duration: 90,
		Staff: model.Specific("tm-1"), Status: model.StatusConfirmed, CustomerName: "Dana",
	})
	srv := newServer(t, store)

	rec := do(t, srv, http.MethodGet, "/api/calendar/grid?workspaceId=ws-1&date=2024-06-10", staffToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var grid struct {
		View    string `json:"view"`
		Columns []struct {
			ID    string `json:"id"`
			Cells []struct {
				Slot      string `json:"slot"`
				Available bool   `json:"available"`
			} `json:"cells"`
			Hours []struct {
				Hour   string `json:"hour"`
				Blocks []struct {
					AppointmentID string `json:"appointmentId"`
					Top           string `json:"top"`
					Height        string `json:"height"`
				} `json:"blocks"`
			} `json:"hours"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	assert.Equal(t, "day", grid.View)
	require.Len(t, grid.Columns, 2)
	ana := grid.Columns[0]
	assert.False(t, ana.Cells[17].Available, "08:30")
	assert.True(t, ana.Cells[18].Available, "09:00")
	require.Len(t, ana.Hours[10].Blocks, 1)
	assert.Equal(t, "25%", ana.Hours[10].Blocks[0].Top)
	assert.Equal(t, "150%", ana.Hours[10].Blocks[0].Height)
	assert.Empty(t, ana.Hours[11].Blocks)

	rec = do(t, srv, http.MethodGet, "/api/calendar/grid?workspaceId=ws-1&date=2024-06-10&view=week&layout=columns", staffToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	assert.Len(t, grid.Columns, 7)

	rec = do(t, srv, http.MethodGet, "/api/calendar/grid?workspaceId=ws-1&view=month", staffToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
