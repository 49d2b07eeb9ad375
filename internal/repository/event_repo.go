package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
)

// EventRepository stores the append-only session lifecycle audit trail.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts an event and fills in its ID. A zero CreatedAt is set to now.
func (r *EventRepository) Append(ctx context.Context, event *model.SessionEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO session_events (session_id, kind, pid, shell, exit_code, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.SessionID,
		event.Kind,
		event.PID,
		event.Shell,
		event.ExitCode,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append session event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read event id: %w", err)
	}
	event.ID = id

	return nil
}

// ListBySession returns the events of one session, oldest first.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.SessionEvent, error) {
	query := `
		SELECT id, session_id, kind, pid, shell, exit_code, detail, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Recent returns up to limit events across all sessions, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]*model.SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, kind, pid, shell, exit_code, detail, created_at
		FROM session_events
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*model.SessionEvent, error) {
	var events []*model.SessionEvent
	for rows.Next() {
		event := &model.SessionEvent{}
		var pid sql.NullInt64
		var exitCode sql.NullInt64

		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Kind,
			&pid,
			&event.Shell,
			&exitCode,
			&event.Detail,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}

		if pid.Valid {
			p := int(pid.Int64)
			event.PID = &p
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			event.ExitCode = &code
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session events: %w", err)
	}

	return events, nil
}
