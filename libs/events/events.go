// Package events holds the wire contracts shared by appointment-service and
// notification-service: Kafka topics, the appointment row snapshot, the JSONB
// negotiation metadata and customer message requests.
package events

import "time"

const (
	TopicAppointmentChanged = "appointments.row.changed.v1"
	TopicMessageRequested   = "messaging.customer.requested.v1"
	TopicMessageFailed      = "notification.failed.v1"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// AppointmentRow is the snapshot of one appointment row as the change stream and
// the pending-reschedules endpoint expose it.
type AppointmentRow struct {
	ID                   string    `json:"id"`
	WorkspaceID          string    `json:"workspace_id"`
	Date                 string    `json:"date"`
	Time                 string    `json:"time"`
	Duration             int       `json:"duration"`
	TeamMemberID         string    `json:"team_member_id,omitempty"`
	TeamMemberPreference string    `json:"team_member_preference"`
	Status               string    `json:"status"`
	CustomerName         string    `json:"customer_name"`
	ServiceName          string    `json:"service_name,omitempty"`
	Metadata             Metadata  `json:"metadata"`
	Version              int64     `json:"version"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AppointmentChanged carries old and new snapshots. Old is nil on insert, New is nil on delete.
type AppointmentChanged struct {
	WorkspaceID string          `json:"workspace_id"`
	Op          string          `json:"op"`
	Old         *AppointmentRow `json:"old,omitempty"`
	New         *AppointmentRow `json:"new,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

const (
	MessageRescheduleProposed  = "reschedule_proposed"
	MessageRescheduleConfirmed = "reschedule_confirmed"
	MessageRescheduleDeclined  = "reschedule_declined"
	MessageCancelled           = "appointment_cancelled"
	MessageBookingConfirmed    = "booking_confirmed"
)

const (
	ChannelSMS      = "sms"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

type TemplateData struct {
	CustomerName string `json:"customer_name"`
	BusinessName string `json:"business_name"`
	ServiceName  string `json:"service_name,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	StaffName    string `json:"staff_name,omitempty"`
	ProposedDate string `json:"proposed_date,omitempty"`
	ProposedTime string `json:"proposed_time,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type MessageRequested struct {
	AppointmentID string       `json:"appointment_id"`
	WorkspaceID   string       `json:"workspace_id"`
	Kind          string       `json:"kind"`
	Channel       string       `json:"channel"`
	Recipient     string       `json:"recipient"`
	TemplateData  TemplateData `json:"template_data"`
}

type MessageFailed struct {
	AppointmentID string    `json:"appointment_id"`
	WorkspaceID   string    `json:"workspace_id"`
	Kind          string    `json:"kind"`
	Channel       string    `json:"channel"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
}
