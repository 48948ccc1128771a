package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/notification-service/internal/appointments"
	"github.com/slotwise/slotwise/services/notification-service/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func pendingServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		assert.Equal(t, "ws-1", r.URL.Query().Get("workspaceId"))
		_ = json.NewEncoder(w).Encode(map[string]any{"appointments": []events.AppointmentRow{{
			ID: "A", WorkspaceID: "ws-1", Status: "pending", CustomerName: "Dana",
			Metadata: events.Metadata{PendingReschedule: &events.Proposal{RescheduleID: "r1", NewDate: "2024-06-11", NewTime: "10:00"}},
		}}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListSeedsOnce(t *testing.T) {
	calls := 0
	srv := pendingServer(t, &calls)
	svc := NewService(NewMemoryStore(), appointments.NewClient(srv.URL, time.Second), discard(), 0)
	ctx := context.Background()

	list, err := svc.List(ctx, "ws-1", "tok")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notifications.TypeReschedule, list[0].Type)

	_, err = svc.List(ctx, "ws-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestListPropagatesUpstreamStatus(t *testing.T) {
	calls := 0
	srv := pendingServer(t, &calls)
	svc := NewService(NewMemoryStore(), appointments.NewClient(srv.URL, time.Second), discard(), 0)

	_, err := svc.List(context.Background(), "ws-1", "bad")
	var se *appointments.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestApplySkipsColdWorkspaceAndUpdatesWarmOne(t *testing.T) {
	calls := 0
	srv := pendingServer(t, &calls)
	store := NewMemoryStore()
	svc := NewService(store, appointments.NewClient(srv.URL, time.Second), discard(), 0)
	ctx := context.Background()

	ev := events.AppointmentChanged{
		WorkspaceID: "ws-1", Op: events.OpUpdate,
		Old: &events.AppointmentRow{ID: "X", Status: "confirmed"},
		New: &events.AppointmentRow{ID: "X", Status: "confirmed", Metadata: events.Metadata{WorkspaceRescheduleAction: &events.Action{Action: "confirmed"}}},
	}
	require.NoError(t, svc.Apply(ctx, ev))
	_, found, _ := store.Load(ctx, "ws-1")
	assert.False(t, found)

	_, err := svc.List(ctx, "ws-1", "tok")
	require.NoError(t, err)
	require.NoError(t, svc.Apply(ctx, ev))
	f, _, _ := store.Load(ctx, "ws-1")
	require.Len(t, f.Items, 2)
	assert.Equal(t, notifications.TypeRescheduleResponse, f.Items[0].Type)

	list, err := svc.Dismiss(ctx, "ws-1", "X", notifications.TypeRescheduleResponse)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = svc.MarkRead(ctx, "ws-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, notifications.Unread(list))
}

func TestTrimKeepsNewest(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, discard(), 2)
	ctx := context.Background()
	_, err := store.Update(ctx, "ws-1", func(Feed, bool) (Feed, error) {
		return Feed{}, nil
	})
	require.NoError(t, err)

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, svc.Apply(ctx, events.AppointmentChanged{
			WorkspaceID: "ws-1", Op: events.OpInsert,
			New: &events.AppointmentRow{ID: id, Status: "pending"},
		}))
	}
	f, _, _ := store.Load(ctx, "ws-1")
	require.Len(t, f.Items, 2)
	assert.Equal(t, "C", f.Items[0].AppointmentID)
	assert.Equal(t, "B", f.Items[1].AppointmentID)
}

type seederFunc func(ctx context.Context, workspaceID, bearer string) ([]events.AppointmentRow, error)

func (f seederFunc) PendingReschedules(ctx context.Context, workspaceID, bearer string) ([]events.AppointmentRow, error) {
	return f(ctx, workspaceID, bearer)
}

func TestChangesDuringSeedAreKept(t *testing.T) {
	ctx := context.Background()
	var svc *Service
	proposal := events.Metadata{PendingReschedule: &events.Proposal{RescheduleID: "r2", NewDate: "2024-06-12", NewTime: "09:00"}}
	svc = NewService(NewMemoryStore(), seederFunc(func(ctx context.Context, _, _ string) ([]events.AppointmentRow, error) {
		// C gets a customer proposal and B is resolved while the snapshot is in flight.
		require.NoError(t, svc.Apply(ctx, events.AppointmentChanged{
			WorkspaceID: "ws-1", Op: events.OpUpdate,
			Old: &events.AppointmentRow{ID: "C", Status: "confirmed"},
			New: &events.AppointmentRow{ID: "C", Status: "pending", CustomerName: "Cy", Metadata: proposal},
		}))
		require.NoError(t, svc.Apply(ctx, events.AppointmentChanged{
			WorkspaceID: "ws-1", Op: events.OpUpdate,
			Old: &events.AppointmentRow{ID: "B", Status: "pending", Metadata: proposal},
			New: &events.AppointmentRow{ID: "B", Status: "confirmed"},
		}))
		return []events.AppointmentRow{
			{ID: "A", WorkspaceID: "ws-1", Status: "pending", CustomerName: "Ann", Metadata: proposal},
			{ID: "B", WorkspaceID: "ws-1", Status: "pending", CustomerName: "Bo", Metadata: proposal},
		}, nil
	}), discard(), 0)

	list, err := svc.List(ctx, "ws-1", "tok")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.AppointmentID)
	}
	assert.Equal(t, []string{"C", "A"}, ids)

	again, err := svc.List(ctx, "ws-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, list, again)
}

func TestDismissBeforeListIsRejected(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, discard(), 0)
	_, err := svc.Dismiss(context.Background(), "ws-1", "A", notifications.TypeReschedule)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.MarkRead(context.Background(), "ws-1", nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestDecodeAcceptsBareItemArray(t *testing.T) {
	f, found, err := decode([]byte(`[{"id":"n1","type":"reschedule","appointmentId":"A"}]`), nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, f.Filling)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "A", f.Items[0].AppointmentID)

	f, _, err = decode([]byte(`{"items":[],"filling":true,"touched":["B"]}`), nil)
	require.NoError(t, err)
	assert.True(t, f.Filling)
	assert.Equal(t, []string{"B"}, f.Touched)
}
