package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/slotwise/slotwise/libs/db"
)

const Schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
	event_id    TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Process records eventID and runs fn in the same transaction. It reports false without
// calling fn when the event was already processed. An error from fn rolls the record back
// so a redelivery is handled again.
func (r *Repository) Process(ctx context.Context, eventID, eventType string, fn func(pgx.Tx) error) (bool, error) {
	fresh := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		fresh = true
		return fn(tx)
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}
