package notifications

import (
	"fmt"
	"testing"
	"time"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

var at = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func row(id, status string, m events.Metadata) *events.AppointmentRow {
	return &events.AppointmentRow{ID: id, Status: status, CustomerName: "Dana", Date: "2024-06-05", Time: "09:00", Metadata: m}
}

func customerProposal(date, tm string) events.Metadata {
	return events.Metadata{PendingReschedule: &events.Proposal{RescheduleID: "r1", NewDate: date, NewTime: tm, NewEndTime: "11:00"}}
}

func action(a string) events.Metadata {
	return events.Metadata{WorkspaceRescheduleAction: &events.Action{Action: a, Timestamp: at}}
}

func update(old, cur *events.AppointmentRow) events.AppointmentChanged {
	return events.AppointmentChanged{Op: events.OpUpdate, Old: old, New: cur, OccurredAt: at}
}

func TestSeedMapsPendingRows(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Seed([]events.AppointmentRow{
		*row("A", "pending", customerProposal("2024-06-11", "10:00")),
		*row("B", "pending", events.Metadata{}),
	})
	require.Len(t, list, 1)
	assert.Equal(t, TypeReschedule, list[0].Type)
	assert.Equal(t, "2024-06-11", list[0].Date)
	assert.Equal(t, "10:00", list[0].Time)
}

func TestRuleAUpsertsInPlace(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Reduce(nil, update(row("A", "confirmed", events.Metadata{}), row("A", "pending", customerProposal("2024-06-11", "10:00"))))
	list = r.Reduce(list, update(row("B", "confirmed", events.Metadata{}), row("B", "pending", customerProposal("2024-06-12", "12:00"))))
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].AppointmentID, "new entries are prepended")

	list = MarkRead(list, list[1].ID)
	list = r.Reduce(list, update(row("A", "pending", customerProposal("2024-06-11", "10:00")), row("A", "pending", customerProposal("2024-06-13", "15:00"))))
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[1].AppointmentID, "replaced in place")
	assert.Equal(t, "n1", list[1].ID)
	assert.Equal(t, "2024-06-13", list[1].Date)
	assert.False(t, list[1].Read, "changed proposal is unread again")
}

func TestRuleBThenD(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Reduce(nil, update(row("X", "confirmed", events.Metadata{}), row("X", "confirmed", action("confirmed"))))
	require.Len(t, list, 1)
	assert.Equal(t, TypeRescheduleResponse, list[0].Type)
	assert.Equal(t, "confirmed", list[0].Action)

	list = r.Reduce(list, update(row("X", "confirmed", action("confirmed")), row("X", "confirmed", action("declined"))))
	require.Len(t, list, 1)
	assert.Equal(t, "declined", list[0].Action)

	list = r.Reduce(list, update(row("X", "confirmed", action("declined")), row("X", "confirmed", events.Metadata{})))
	assert.Empty(t, list)
}

func TestRuleCRemovesResolvedProposal(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Seed([]events.AppointmentRow{*row("A", "pending", customerProposal("2024-06-11", "10:00"))})
	list = r.Reduce(list, update(row("A", "pending", customerProposal("2024-06-11", "10:00")), row("A", "confirmed", events.Metadata{})))
	assert.Empty(t, list)
}

func TestFirstMatchWins(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Seed([]events.AppointmentRow{*row("A", "pending", customerProposal("2024-06-11", "10:00"))})
	// pending_reschedule cleared and an action appeared in one write: rule b matches before c.
	list = r.Reduce(list, update(row("A", "pending", customerProposal("2024-06-11", "10:00")), row("A", "confirmed", action("confirmed"))))
	require.Len(t, list, 2)
	assert.Equal(t, TypeRescheduleResponse, list[0].Type)
	assert.Equal(t, TypeReschedule, list[1].Type)
}

func TestInsertAndDelete(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	list := r.Reduce(nil, events.AppointmentChanged{Op: events.OpInsert, New: row("N", "pending", events.Metadata{}), OccurredAt: at})
	require.Len(t, list, 1)
	assert.Equal(t, TypeNewBooking, list[0].Type)

	confirmed := r.Reduce(list, update(row("N", "pending", events.Metadata{}), row("N", "confirmed", events.Metadata{})))
	assert.Empty(t, confirmed)

	deleted := r.Reduce(list, events.AppointmentChanged{Op: events.OpDelete, Old: row("N", "pending", events.Metadata{}), OccurredAt: at})
	assert.Empty(t, deleted)
	assert.Len(t, list, 1, "input list is not modified")
}

func TestNeverDuplicatesAppointmentType(t *testing.T) {
	r := Reducer{NewID: seqIDs()}
	var list []Notification
	rows := []*events.AppointmentRow{
		row("A", "pending", customerProposal("2024-06-11", "10:00")),
		row("A", "confirmed", action("confirmed")),
		row("A", "pending", customerProposal("2024-06-12", "10:00")),
		row("B", "pending", customerProposal("2024-06-11", "10:00")),
		row("A", "confirmed", action("declined")),
		row("B", "pending", customerProposal("2024-06-14", "10:00")),
		row("A", "confirmed", events.Metadata{}),
	}
	var prev *events.AppointmentRow
	for _, cur := range rows {
		list = r.Reduce(list, update(prev, cur))
		prev = cur

		seen := map[string]bool{}
		for _, n := range list {
			key := n.AppointmentID + "/" + string(n.Type)
			require.False(t, seen[key], "duplicate %s", key)
			seen[key] = true
		}
	}
}

func TestDismissAndMarkRead(t *testing.T) {
	list := []Notification{
		{ID: "1", Type: TypeReschedule, AppointmentID: "A"},
		{ID: "2", Type: TypeRescheduleResponse, AppointmentID: "A"},
		{ID: "3", Type: TypeNewBooking, AppointmentID: "B"},
	}
	assert.Len(t, Dismiss(list, "A", TypeReschedule), 2)
	assert.Len(t, Dismiss(list, "A", ""), 1)

	read := MarkRead(list, "3")
	assert.Equal(t, 2, Unread(read))
	assert.Equal(t, 3, Unread(list))
	assert.Equal(t, 0, Unread(MarkRead(list)))
}
