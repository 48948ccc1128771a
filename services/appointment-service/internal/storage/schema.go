package storage

import "github.com/slotwise/slotwise/libs/outbox"

// Migrations are idempotent and run at startup in order.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS workspaces (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		timezone   TEXT NOT NULL DEFAULT 'UTC',
		locale     TEXT NOT NULL DEFAULT 'en-US',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS workspace_hours (
		workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		weekday      SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		open_time    TEXT NOT NULL,
		close_time   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS team_members (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		role         TEXT NOT NULL DEFAULT 'staff',
		active       BOOLEAN NOT NULL DEFAULT true,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS team_member_hours (
		team_member_id TEXT NOT NULL REFERENCES team_members(id) ON DELETE CASCADE,
		weekday        SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		open_time      TEXT NOT NULL,
		close_time     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id               TEXT PRIMARY KEY,
		workspace_id     TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		duration_minutes INT NOT NULL CHECK (duration_minutes > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id                        TEXT PRIMARY KEY,
		workspace_id              TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		service_id                TEXT REFERENCES services(id) ON DELETE SET NULL,
		team_member_id            TEXT,
		team_member_preference    TEXT NOT NULL DEFAULT 'any',
		appointment_date          DATE NOT NULL,
		start_time                TEXT NOT NULL,
		duration_minutes          INT NOT NULL CHECK (duration_minutes > 0),
		status                    TEXT NOT NULL,
		customer_name             TEXT NOT NULL,
		customer_phone            TEXT NOT NULL DEFAULT '',
		customer_email            TEXT NOT NULL DEFAULT '',
		customer_telegram_chat_id BIGINT,
		notes                     TEXT NOT NULL DEFAULT '',
		internal_notes            TEXT NOT NULL DEFAULT '',
		metadata                  JSONB NOT NULL DEFAULT '{}'::jsonb,
		version                   BIGINT NOT NULL DEFAULT 1,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS appointments_workspace_date_idx ON appointments (workspace_id, appointment_date)`,
	`CREATE INDEX IF NOT EXISTS appointments_pending_reschedule_idx ON appointments (workspace_id)
		WHERE status = 'pending' AND jsonb_typeof(metadata->'pending_reschedule') = 'object'`,
	`CREATE TABLE IF NOT EXISTS appointment_idempotency_keys (
		workspace_id    TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		appointment_id  TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (workspace_id, idempotency_key)
	)`,
	outbox.Schema,
}
