package repository

import (
	"context"
	"database/sql"

	"stsemulator/backend/services/sts-emulator/internal/events"
)

const journalSchema = `
	CREATE TABLE IF NOT EXISTS sts_request_journal (
		id             UUID PRIMARY KEY,
		occurred_at    TIMESTAMPTZ NOT NULL,
		client         TEXT NOT NULL,
		request_line   TEXT NOT NULL,
		outcome        TEXT NOT NULL,
		channel        INTEGER,
		state          TEXT,
		response_bytes INTEGER NOT NULL
	)
`

// JournalRepository stores handled tally requests.
type JournalRepository struct {
	db *sql.DB
}

// NewJournalRepository ctor.
func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// EnsureSchema creates the journal table if it is missing.
func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, journalSchema)
	return err
}

// Save stores one event.
func (r *JournalRepository) Save(ctx context.Context, ev events.Event) error {
	const query = `
		INSERT INTO sts_request_journal (id, occurred_at, client, request_line, outcome, channel, state, response_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	channel := sql.NullInt32{Int32: int32(ev.Channel), Valid: ev.Channel != 0}
	state := sql.NullString{String: ev.State, Valid: ev.State != ""}
	_, err := r.db.ExecContext(ctx, query, ev.ID, ev.Time, ev.Client, ev.Request, string(ev.Outcome), channel, state, ev.Response)
	return err
}
