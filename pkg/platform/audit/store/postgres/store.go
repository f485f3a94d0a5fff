package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	audit "enrolld/pkg/platform/audit"
)

// Store implements audit.Store on PostgreSQL for deployments that need the
// trail to survive restarts.
type Store struct {
	db *sql.DB
}

// Open connects to the database and ensures the audit table exists.
func Open(url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle; the caller owns its lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS enrollment_audit_events (
			id UUID PRIMARY KEY,
			attempt_id UUID NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			registered BOOLEAN NOT NULL DEFAULT FALSE,
			at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_enrollment_audit_attempt
			ON enrollment_audit_events (attempt_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO enrollment_audit_events (id, attempt_id, username, kind, strategy, registered, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.AttemptID,
		event.Username,
		string(event.Kind),
		event.Strategy,
		event.Registered,
		event.At,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]audit.Event, error) {
	query := `
		SELECT id, attempt_id, username, kind, strategy, registered, at
		FROM enrollment_audit_events
		WHERE attempt_id = $1
		ORDER BY at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, attempt_id, username, kind, strategy, registered, at
		FROM enrollment_audit_events
		ORDER BY at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var out []audit.Event
	for rows.Next() {
		var ev audit.Event
		var kind string
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.Username, &kind, &ev.Strategy, &ev.Registered, &ev.At); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Kind = audit.Kind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}
