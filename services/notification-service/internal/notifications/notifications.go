// Package notifications derives the workspace notification list from appointment
// row changes. Everything here is pure; callers own persistence and delivery.
package notifications

import (
	"time"

	"github.com/google/uuid"
	"github.com/slotwise/slotwise/libs/events"
)

type Type string

const (
	TypeReschedule         Type = "reschedule"
	TypeRescheduleResponse Type = "workspace_reschedule_response"
	TypeNewBooking         Type = "new_booking"
	TypeOther              Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeReschedule, TypeRescheduleResponse, TypeNewBooking, TypeOther:
		return true
	}
	return false
}

type Notification struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	AppointmentID string    `json:"appointmentId"`
	Action        string    `json:"action,omitempty"`
	CustomerName  string    `json:"customerName"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Reducer applies change events to a list. NewID defaults to a random UUID.
type Reducer struct {
	NewID func() string
}

func (r Reducer) id() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Seed maps the pending-reschedules query result to reschedule notifications.
func (r Reducer) Seed(rows []events.AppointmentRow) []Notification {
	list := make([]Notification, 0, len(rows))
	for i := range rows {
		n, ok := r.reschedule(&rows[i], rows[i].UpdatedAt)
		if !ok {
			continue
		}
		list = upsert(list, n)
	}
	return list
}

// Reduce applies the first matching rule for ev and returns the new list. list is not modified.
//
// Rules, in order:
//
//	a. new row pending with pending_reschedule: upsert reschedule
//	b. new row has workspace_reschedule_action: upsert workspace_reschedule_response
//	c. old row had pending_reschedule, new row does not: remove reschedule
//	d. old row had workspace_reschedule_action, new row does not: remove the response
//	e. insert of a pending row: upsert new_booking
//	f. delete: remove everything for the appointment
//	g. row left pending: remove new_booking
func (r Reducer) Reduce(list []Notification, ev events.AppointmentChanged) []Notification {
	list = append([]Notification(nil), list...)
	old, cur := ev.Old, ev.New
	at := ev.OccurredAt

	switch {
	case cur != nil && cur.Status == "pending" && cur.Metadata.HasPendingReschedule():
		n, _ := r.reschedule(cur, at)
		return upsert(list, n)
	case cur != nil && cur.Metadata.HasWorkspaceRescheduleAction():
		return upsert(list, Notification{
			ID:            r.id(),
			Type:          TypeRescheduleResponse,
			AppointmentID: cur.ID,
			Action:        cur.Metadata.WorkspaceRescheduleAction.Action,
			CustomerName:  cur.CustomerName,
			Date:          cur.Date,
			Time:          cur.Time,
			CreatedAt:     at,
		})
	case old != nil && old.Metadata.HasPendingReschedule() && (cur == nil || !cur.Metadata.HasPendingReschedule()):
		return Dismiss(list, old.ID, TypeReschedule)
	case old != nil && old.Metadata.HasWorkspaceRescheduleAction() && (cur == nil || !cur.Metadata.HasWorkspaceRescheduleAction()):
		return Dismiss(list, old.ID, TypeRescheduleResponse)
	case ev.Op == events.OpInsert && cur != nil && cur.Status == "pending":
		return upsert(list, Notification{
			ID:            r.id(),
			Type:          TypeNewBooking,
			AppointmentID: cur.ID,
			CustomerName:  cur.CustomerName,
			Date:          cur.Date,
			Time:          cur.Time,
			CreatedAt:     at,
		})
	case ev.Op == events.OpDelete && old != nil:
		return removeAll(list, old.ID)
	case old != nil && cur != nil && old.Status == "pending" && cur.Status != "pending":
		return Dismiss(list, cur.ID, TypeNewBooking)
	}
	return list
}

func (r Reducer) reschedule(row *events.AppointmentRow, at time.Time) (Notification, bool) {
	p := row.Metadata.PendingReschedule
	if p == nil {
		return Notification{}, false
	}
	if !p.InitiatedAt.IsZero() {
		at = p.InitiatedAt
	}
	return Notification{
		ID:            r.id(),
		Type:          TypeReschedule,
		AppointmentID: row.ID,
		CustomerName:  row.CustomerName,
		Date:          p.NewDate,
		Time:          p.NewTime,
		CreatedAt:     at,
	}, true
}

// upsert replaces the entry with the same appointment and type in place, keeping its id
// and read flag, or prepends n.
func upsert(list []Notification, n Notification) []Notification {
	for i := range list {
		if list[i].AppointmentID == n.AppointmentID && list[i].Type == n.Type {
			n.ID = list[i].ID
			n.Read = list[i].Read && list[i].Action == n.Action && list[i].Date == n.Date && list[i].Time == n.Time
			list[i] = n
			return list
		}
	}
	return append([]Notification{n}, list...)
}

// Dismiss removes the entry for (appointmentID, t). An empty t removes every entry for the appointment.
func Dismiss(list []Notification, appointmentID string, t Type) []Notification {
	if t == "" {
		return removeAll(list, appointmentID)
	}
	out := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.AppointmentID == appointmentID && n.Type == t {
			continue
		}
		out = append(out, n)
	}
	return out
}

func removeAll(list []Notification, appointmentID string) []Notification {
	out := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.AppointmentID != appointmentID {
			out = append(out, n)
		}
	}
	return out
}

// MarkRead flags the given ids, or every entry when ids is empty.
func MarkRead(list []Notification, ids ...string) []Notification {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := append([]Notification(nil), list...)
	for i := range out {
		if len(ids) == 0 || want[out[i].ID] {
			out[i].Read = true
		}
	}
	return out
}

// Unread counts entries not yet read.
func Unread(list []Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}
