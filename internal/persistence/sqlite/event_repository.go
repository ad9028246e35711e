package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// GetMetadata loads the singleton metadata record.
func (s *Store) GetMetadata(ctx context.Context) (schedule.Metadata, error) {
	var (
		metadata    schedule.Metadata
		generatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone, generated_at FROM schedule_metadata WHERE id = 1`).
		Scan(&metadata.Timezone, &generatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.Metadata{}, persistence.ErrNotFound
		}
		return schedule.Metadata{}, fmt.Errorf("sqlite: get metadata: %w", err)
	}
	if metadata.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return schedule.Metadata{}, err
	}
	return metadata, nil
}

// SetMetadata writes the singleton metadata record, creating it when absent.
func (s *Store) SetMetadata(ctx context.Context, m schedule.Metadata) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO schedule_metadata (id, timezone, generated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET timezone = excluded.timezone, generated_at = excluded.generated_at`,
		m.Timezone, formatTime(m.GeneratedAt))
	if err != nil {
		return fmt.Errorf("sqlite: set metadata: %w", mapError(err))
	}
	return nil
}

// AppendEvent inserts an audit event and returns it with the assigned id.
func (s *Store) AppendEvent(ctx context.Context, event schedule.AuditEvent) (schedule.AuditEvent, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return schedule.AuditEvent{}, fmt.Errorf("sqlite: encode event metadata: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO audit_events
		(timestamp, action, actor, subject_type, subject_id, reason, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(event.Timestamp), event.Action, event.Actor,
		event.SubjectType, event.SubjectID, event.Reason, string(metadata))
	if err != nil {
		return schedule.AuditEvent{}, fmt.Errorf("sqlite: append event: %w", mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return schedule.AuditEvent{}, fmt.Errorf("sqlite: append event: %w", err)
	}
	event.ID = id
	return event, nil
}

// ListEvents returns the most recent audit events, newest first. A limit of
// zero or less means no limit.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]schedule.AuditEvent, error) {
	query := `SELECT id, timestamp, action, actor, subject_type, subject_id, reason, metadata_json
		FROM audit_events ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var events []schedule.AuditEvent
	for rows.Next() {
		var (
			event     schedule.AuditEvent
			timestamp string
			metadata  string
		)
		err := rows.Scan(&event.ID, &timestamp, &event.Action, &event.Actor,
			&event.SubjectType, &event.SubjectID, &event.Reason, &metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list events: %w", err)
		}
		if event.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: decode event %d metadata: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	return events, nil
}
