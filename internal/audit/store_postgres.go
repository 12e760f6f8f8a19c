package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"hatchery/contracts/spawn"
)

// PostgresStore persists the audit trail in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS audit_events (
//	    id        UUID PRIMARY KEY,
//	    ts        TIMESTAMPTZ NOT NULL,
//	    action    TEXT NOT NULL,
//	    actor     TEXT NOT NULL DEFAULT '',
//	    subject   TEXT NOT NULL DEFAULT '',
//	    owner     TEXT NOT NULL DEFAULT '',
//	    label     TEXT NOT NULL DEFAULT '',
//	    detail    TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX IF NOT EXISTS audit_events_subject ON audit_events (subject, ts);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs the store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a database/sql handle on the lib/pq driver and
// verifies connectivity.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return db, nil
}

// Append writes one trail entry. Idempotent per event ID.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, ts, action, actor, subject, owner, label, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Timestamp,
		string(event.Action),
		string(event.Actor),
		string(event.Subject),
		string(event.Owner),
		event.Label,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns the trail for one subject address in append order.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	query := `
		SELECT ts, action, actor, subject, owner, label, detail
		FROM audit_events
		WHERE subject = $1
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event                         Event
			action, actor, subject, owner string
		)
		err := rows.Scan(
			&event.Timestamp,
			&action,
			&actor,
			&subject,
			&owner,
			&event.Label,
			&event.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		event.Actor = spawn.Address(actor)
		event.Subject = spawn.Address(subject)
		event.Owner = spawn.Address(owner)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
