package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/slotwise/slotwise/libs/otel"
)

// Schema creates the outbox table. Services include it in their migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox_events (
	id             BIGSERIAL PRIMARY KEY,
	event_id       UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	topic          TEXT NOT NULL,
	payload        JSONB NOT NULL,
	traceparent    TEXT NOT NULL DEFAULT '',
	tracestate     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_events_unpublished_idx ON outbox_events (id) WHERE published_at IS NULL;
`

// Event is written in the same transaction as the state change it describes.
// AggregateID doubles as the Kafka key.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType, topic string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		Payload:       b,
	}, nil
}

func Insert(ctx context.Context, tx pgx.Tx, evts ...Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, evt := range evts {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, topic, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Topic, evt.Payload, traceparent, tracestate)
		if err != nil {
			return fmt.Errorf("outbox insert %s: %w", evt.EventType, err)
		}
	}
	return nil
}

type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Topic       string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, topic, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.AggregateID, &r.EventType, &r.Topic, &r.Payload, &r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}
