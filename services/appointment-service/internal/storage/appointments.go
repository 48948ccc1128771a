package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

const aggregateType = "appointment"

// MutateFunc changes a locked appointment in place and returns extra outbox events to
// commit with it. Leaving the appointment untouched skips the write.
type MutateFunc func(a *model.Appointment) ([]outbox.Event, error)

type Repository struct {
	pool *db.Pool
	now  func() time.Time
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

const selectAppointment = `
	SELECT a.id, a.workspace_id, to_char(a.appointment_date, 'YYYY-MM-DD'), a.start_time, a.duration_minutes,
		COALESCE(a.team_member_id, ''), a.team_member_preference, a.status,
		a.customer_name, a.customer_phone, a.customer_email, a.customer_telegram_chat_id,
		a.notes, a.internal_notes, COALESCE(a.service_id, ''), COALESCE(s.name, ''),
		a.metadata, a.version, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN services s ON s.id = a.service_id`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a          model.Appointment
		memberID   string
		preference string
		status     string
		chatID     *int64
		rawMeta    []byte
	)
	err := row.Scan(&a.ID, &a.WorkspaceID, &a.Date, &a.Time, &a.Duration,
		&memberID, &preference, &status,
		&a.CustomerName, &a.CustomerPhone, &a.CustomerEmail, &chatID,
		&a.Notes, &a.InternalNotes, &a.ServiceID, &a.ServiceName,
		&rawMeta, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.Status(status)
	if chatID != nil {
		a.CustomerTelegramChatID = *chatID
	}
	a.Staff, err = model.ParseStaffPreference(preference, memberID)
	if err != nil {
		a.Staff = model.AnyAvailable()
	}
	var meta events.Metadata
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", a.ID, err)
		}
	}
	a.Ledger = model.LedgerFromMetadata(meta, a.Duration)
	return &a, nil
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, workspaceID, id string) (*model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, selectAppointment+`
		WHERE a.workspace_id = $1 AND a.id = $2`, workspaceID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListPendingReschedules returns pending appointments that carry a customer proposal.
func (r *Repository) ListPendingReschedules(ctx context.Context, workspaceID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.workspace_id = $1
			AND a.status = 'pending'
			AND jsonb_typeof(a.metadata->'pending_reschedule') = 'object'
		ORDER BY a.updated_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListRange returns appointments dated within [from, to], both inclusive.
func (r *Repository) ListRange(ctx context.Context, workspaceID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.workspace_id = $1
			AND a.appointment_date BETWEEN $2 AND $3
		ORDER BY a.appointment_date, a.start_time`, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Mutate locks one appointment, applies fn and writes the result only if the stored
// version still matches. The row-change event and fn's events commit atomically with it.
func (r *Repository) Mutate(ctx context.Context, workspaceID, id string, expectedVersion *int64, fn MutateFunc) (*model.Appointment, error) {
	var result *model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanAppointment(tx.QueryRow(ctx, selectAppointment+`
			WHERE a.workspace_id = $1 AND a.id = $2
			FOR UPDATE OF a`, workspaceID, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != cur.Version {
			return ErrVersionConflict
		}

		before := cur.Clone()
		extra, err := fn(cur)
		if err != nil {
			return err
		}
		if reflect.DeepEqual(before.Row(), cur.Row()) {
			result = cur
			return nil
		}

		date, err := clock.ParseDate(cur.Date)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(cur.Ledger.Metadata())
		if err != nil {
			return err
		}
		memberID, _ := cur.Staff.MemberID()
		err = tx.QueryRow(ctx, `
			UPDATE appointments
			SET appointment_date = $3,
				start_time = $4,
				duration_minutes = $5,
				team_member_id = NULLIF($6, ''),
				team_member_preference = $7,
				status = $8,
				metadata = $9,
				version = version + 1,
				updated_at = now()
			WHERE workspace_id = $1 AND id = $2 AND version = $10
			RETURNING version, updated_at
		`, workspaceID, id, date, cur.Time, cur.Duration, memberID, cur.Staff.Preference(), string(cur.Status), meta, before.Version,
		).Scan(&cur.Version, &cur.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}

		changed, err := r.changeEvent(before, cur, events.OpUpdate)
		if err != nil {
			return err
		}
		if err := outbox.Insert(ctx, tx, append([]outbox.Event{changed}, extra...)...); err != nil {
			return err
		}
		result = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts a booking. A repeated Idempotency-Key returns the appointment it created first.
func (r *Repository) Create(ctx context.Context, a *model.Appointment, idempotencyKey string) (*model.Appointment, bool, error) {
	var (
		result  *model.Appointment
		created bool
	)
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if idempotencyKey != "" {
			var existing string
			err := tx.QueryRow(ctx, `
				INSERT INTO appointment_idempotency_keys (workspace_id, idempotency_key, appointment_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (workspace_id, idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
				RETURNING appointment_id
			`, a.WorkspaceID, idempotencyKey, a.ID).Scan(&existing)
			if err != nil {
				return err
			}
			if existing != a.ID {
				prior, err := scanAppointment(tx.QueryRow(ctx, selectAppointment+`
					WHERE a.workspace_id = $1 AND a.id = $2`, a.WorkspaceID, existing))
				if err != nil {
					return err
				}
				result = prior
				return nil
			}
		}

		date, err := clock.ParseDate(a.Date)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(a.Ledger.Metadata())
		if err != nil {
			return err
		}
		memberID, _ := a.Staff.MemberID()
		var chatID *int64
		if a.CustomerTelegramChatID != 0 {
			chatID = &a.CustomerTelegramChatID
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, workspace_id, service_id, team_member_id, team_member_preference, appointment_date, start_time,
				 duration_minutes, status, customer_name, customer_phone, customer_email, customer_telegram_chat_id,
				 notes, internal_notes, metadata)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING version, created_at, updated_at
		`, a.ID, a.WorkspaceID, a.ServiceID, memberID, a.Staff.Preference(), date, a.Time,
			a.Duration, string(a.Status), a.CustomerName, a.CustomerPhone, a.CustomerEmail, chatID,
			a.Notes, a.InternalNotes, meta,
		).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return err
		}

		changed, err := r.changeEvent(nil, a, events.OpInsert)
		if err != nil {
			return err
		}
		if err := outbox.Insert(ctx, tx, changed); err != nil {
			return err
		}
		result, created = a, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *Repository) changeEvent(before, after *model.Appointment, op string) (outbox.Event, error) {
	evt := events.AppointmentChanged{
		WorkspaceID: after.WorkspaceID,
		Op:          op,
		OccurredAt:  r.now().UTC(),
	}
	if before != nil {
		row := before.Row()
		evt.Old = &row
	}
	row := after.Row()
	evt.New = &row
	eventType := "appointment.updated"
	if op == events.OpInsert {
		eventType = "appointment.created"
	}
	return outbox.NewEvent(aggregateType, after.ID, eventType, events.TopicAppointmentChanged, evt)
}
