package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaffPreference(t *testing.T) {
	p, err := ParseStaffPreference("specific", "tm-1")
	require.NoError(t, err)
	id, ok := p.MemberID()
	assert.True(t, ok)
	assert.Equal(t, "tm-1", id)

	_, err = ParseStaffPreference("specific", "")
	assert.ErrorIs(t, err, ErrInvalidStaffPreference)

	p, err = ParseStaffPreference("any", "tm-1")
	require.NoError(t, err)
	assert.True(t, p.IsAny())

	_, err = ParseStaffPreference("whoever", "")
	assert.ErrorIs(t, err, ErrInvalidStaffPreference)
}

func TestLegacyBagWithBothProposalsKeepsNewest(t *testing.T) {
	older := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	m := events.Metadata{
		PendingReschedule:          &events.Proposal{RescheduleID: "c", NewDate: "2024-06-11", NewTime: "10:00", NewEndTime: "10:30", TeamMemberPreference: "any", InitiatedAt: older},
		WorkspacePendingReschedule: &events.Proposal{RescheduleID: "w", NewDate: "2024-06-12", NewTime: "11:00", NewEndTime: "12:00", TeamMemberPreference: "any", InitiatedAt: newer},
	}
	l := LedgerFromMetadata(m, 45)
	assert.Equal(t, WorkspaceProposed, l.Kind())
	p, ok := l.Proposal()
	require.True(t, ok)
	assert.Equal(t, "w", p.RescheduleID)
	assert.Equal(t, 60, p.Duration)

	out := l.Metadata()
	assert.Nil(t, out.PendingReschedule)
	assert.NotNil(t, out.WorkspacePendingReschedule)
}

func TestProposalWithoutUsableEndTimeKeepsCurrentDuration(t *testing.T) {
	for _, end := range []string{"", "10:00", "25:99"} {
		m := events.Metadata{PendingReschedule: &events.Proposal{RescheduleID: "c", NewDate: "2024-06-11", NewTime: "10:00", NewEndTime: end, TeamMemberPreference: "any"}}
		l := LedgerFromMetadata(m, 45)
		p, ok := l.Proposal()
		require.True(t, ok)
		assert.Equal(t, 45, p.Duration, "end time %q", end)
		assert.Equal(t, "10:45", l.Metadata().PendingReschedule.NewEndTime)
	}

	m := events.Metadata{PendingReschedule: &events.Proposal{RescheduleID: "c", NewDate: "2024-06-11", NewTime: "23:30", NewEndTime: "00:15", TeamMemberPreference: "any"}}
	l := LedgerFromMetadata(m, 45)
	p, _ := l.Proposal()
	assert.Equal(t, 45, p.Duration)
}

func TestLedgerMetadataRoundTripKeepsForeignKeys(t *testing.T) {
	var m events.Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"booking_source":"widget"}`), &m))

	l := LedgerFromMetadata(m, 30)
	l.Open(Proposal{RescheduleID: "r1", InitiatedBy: PartyCustomer, Date: "2024-06-10", Time: "14:00", Duration: 30, PreviousStatus: StatusConfirmed})
	l.Append(HistoryEntry{RescheduleID: "r0", Outcome: OutcomeDeclined})

	b, err := json.Marshal(l.Metadata())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "widget", raw["booking_source"])
	pending := raw["pending_reschedule"].(map[string]any)
	assert.Equal(t, "14:30", pending["new_end_time"])
	assert.Equal(t, "confirmed", pending["previous_status"])
	assert.Equal(t, "r0", raw["current_reschedule"].(map[string]any)["reschedule_id"])
}

func TestOpenReplacesResponse(t *testing.T) {
	var l Ledger
	l.Respond(Response{Action: OutcomeConfirmed, RescheduleID: "r1"})
	assert.Equal(t, CustomerResponded, l.Kind())

	l.Open(Proposal{InitiatedBy: PartyWorkspace, Time: "09:00", Duration: 30})
	_, hasResponse := l.Response()
	assert.False(t, hasResponse)
	assert.Equal(t, WorkspaceProposed, l.Kind())
}

func TestWeeklyHoursAvailable(t *testing.T) {
	h := WeeklyHours{time.Monday: {{Open: "09:00", Close: "17:00"}}}
	assert.False(t, h.Available(time.Monday, 8*60+30))
	assert.True(t, h.Available(time.Monday, 9*60))
	assert.False(t, h.Available(time.Monday, 17*60))
	assert.False(t, h.Available(time.Tuesday, 10*60))
}

func TestCloneIsolatesHistory(t *testing.T) {
	a := &Appointment{ID: "a", Time: "09:00", Duration: 45}
	a.Ledger.Append(HistoryEntry{RescheduleID: "r1"})
	c := a.Clone()
	c.Ledger.Append(HistoryEntry{RescheduleID: "r2"})
	assert.Len(t, a.Ledger.History(), 1)
	assert.Equal(t, "09:45", a.EndTime())
}
