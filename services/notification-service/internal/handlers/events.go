package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/notification-service/internal/consumer"
	"github.com/slotwise/slotwise/services/notification-service/internal/delivery"
	"github.com/slotwise/slotwise/services/notification-service/internal/storage"
)

// Applier folds change events into the notification feed. *feed.Service implements it.
type Applier interface {
	Apply(ctx context.Context, ev events.AppointmentChanged) error
}

// RecordFunc persists one delivery attempt inside the inbox transaction.
type RecordFunc func(ctx context.Context, tx pgx.Tx, m storage.Message, now time.Time) error

// AppointmentChanged handles appointments.row.changed.v1. Malformed payloads are logged and skipped.
func AppointmentChanged(feed Applier, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, _ pgx.Tx, msg kafka.Message) error {
		var ev events.AppointmentChanged
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("invalid change payload", "err", err, "offset", msg.Offset)
			return nil
		}
		if ev.WorkspaceID == "" {
			logger.Error("change event without workspace", "offset", msg.Offset)
			return nil
		}
		return feed.Apply(ctx, ev)
	}
}

// MessageRequested handles messaging.customer.requested.v1. Delivery failures are recorded
// and never returned, so the consumer does not retry a provider rejection.
func MessageRequested(d *delivery.Dispatcher, record RecordFunc, logger *slog.Logger, now func() time.Time) consumer.Handler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		var req events.MessageRequested
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			logger.Error("invalid message request", "err", err, "offset", msg.Offset)
			return nil
		}
		if req.AppointmentID == "" || req.Channel == "" || req.Recipient == "" || req.Kind == "" {
			logger.Error("message request missing fields", "appointment_id", req.AppointmentID, "kind", req.Kind)
			return nil
		}

		res := d.Deliver(ctx, req)
		m := storage.Message{
			Request:    req,
			Subject:    res.Rendered.Subject,
			Body:       res.Rendered.Body,
			Status:     string(res.Status),
			ProviderID: res.ProviderID,
		}
		if res.Err != nil {
			m.Error = res.Err.Error()
			logger.Error("customer message failed", "err", res.Err, "appointment_id", req.AppointmentID, "channel", req.Channel, "kind", req.Kind)
		}
		if err := record(ctx, tx, m, now()); err != nil {
			return err
		}
		logger.Info("customer message processed", "appointment_id", req.AppointmentID, "channel", req.Channel, "kind", req.Kind, "status", m.Status)
		return nil
	}
}
