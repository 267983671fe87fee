package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "udyam/pkg/platform/audit"
	txcontext "udyam/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is present on the context, so an audit row
// commits or rolls back with the registration change it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an event. Duplicate IDs are ignored so redelivery is safe.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	var registrationID *uuid.UUID
	if event.RegistrationID != uuid.Nil {
		rid := event.RegistrationID
		registrationID = &rid
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, registration_id, subject, action,
			decision, reason, request_id, client_ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		registrationID,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, category, timestamp, registration_id, subject, action,
	       decision, reason, request_id, client_ip, device
	FROM audit_events
`

// ListByRegistration returns a registration's events, oldest first.
func (s *Store) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE registration_id = $1
		ORDER BY timestamp ASC
	`, registrationID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns up to limit events, newest first. A non-positive limit
// returns everything.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category       string
			event          audit.Event
			registrationID *uuid.UUID
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&registrationID,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if registrationID != nil {
			event.RegistrationID = *registrationID
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
