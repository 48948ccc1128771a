package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/services/notification-service/internal/inbox"
)

// Migrations run at startup in order.
var Migrations = []string{
	inbox.Schema,
	`CREATE TABLE IF NOT EXISTS message_log (
		id             BIGSERIAL PRIMARY KEY,
		appointment_id TEXT NOT NULL,
		workspace_id   TEXT NOT NULL,
		kind           TEXT NOT NULL,
		channel        TEXT NOT NULL,
		recipient      TEXT NOT NULL,
		subject        TEXT NOT NULL DEFAULT '',
		body           TEXT NOT NULL DEFAULT '',
		template_data  JSONB NOT NULL,
		status         TEXT NOT NULL,
		provider_id    TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS message_log_appointment_idx ON message_log (workspace_id, appointment_id, created_at DESC)`,
	outbox.Schema,
}

type Message struct {
	Request    events.MessageRequested
	Subject    string
	Body       string
	Status     string
	ProviderID string
	Error      string
}

// Record logs one delivery attempt and, for failures, queues notification.failed.v1
// in the same transaction.
func Record(ctx context.Context, tx pgx.Tx, m Message, now time.Time) error {
	data, err := json.Marshal(m.Request.TemplateData)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO message_log (appointment_id, workspace_id, kind, channel, recipient, subject, body, template_data, status, provider_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.Request.AppointmentID, m.Request.WorkspaceID, m.Request.Kind, m.Request.Channel, m.Request.Recipient,
		m.Subject, m.Body, data, m.Status, m.ProviderID, m.Error)
	if err != nil {
		return err
	}
	if m.Error == "" {
		return nil
	}

	evt, err := outbox.NewEvent("notification", m.Request.AppointmentID, "notification.failed", events.TopicMessageFailed, events.MessageFailed{
		AppointmentID: m.Request.AppointmentID,
		WorkspaceID:   m.Request.WorkspaceID,
		Kind:          m.Request.Kind,
		Channel:       m.Request.Channel,
		Error:         m.Error,
		FailedAt:      now.UTC(),
	})
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, tx, evt)
}
