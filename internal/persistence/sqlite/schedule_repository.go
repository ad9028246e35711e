package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

const scheduleColumns = `id, scope, owner_key, group_id, label, description,
	targets_json, start_action, end_action, window_start, window_end,
	recurrence_json, exceptions_json, enabled, created_at, updated_at`

// CreateSchedule inserts a new schedule row.
func (s *Store) CreateSchedule(ctx context.Context, sched schedule.DeviceSchedule) error {
	row, err := scheduleRow(sched)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.scope, row.ownerKey, row.groupID, row.label, row.description,
		row.targets, row.startAction, row.endAction, row.windowStart, row.windowEnd,
		row.recurrence, row.exceptions, row.enabled, row.createdAt, row.updatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: create schedule %s: %w", sched.ID, mapError(err))
	}
	return nil
}

// UpdateSchedule replaces an existing schedule row.
func (s *Store) UpdateSchedule(ctx context.Context, sched schedule.DeviceSchedule) error {
	row, err := scheduleRow(sched)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE schedules SET
		scope = ?, owner_key = ?, group_id = ?, label = ?, description = ?,
		targets_json = ?, start_action = ?, end_action = ?,
		window_start = ?, window_end = ?, recurrence_json = ?, exceptions_json = ?,
		enabled = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		row.scope, row.ownerKey, row.groupID, row.label, row.description,
		row.targets, row.startAction, row.endAction,
		row.windowStart, row.windowEnd, row.recurrence, row.exceptions,
		row.enabled, row.createdAt, row.updatedAt,
		row.id)
	if err != nil {
		return fmt.Errorf("sqlite: update schedule %s: %w", sched.ID, mapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update schedule %s: %w", sched.ID, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetSchedule loads one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (schedule.DeviceSchedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.DeviceSchedule{}, persistence.ErrNotFound
		}
		return schedule.DeviceSchedule{}, fmt.Errorf("sqlite: get schedule %s: %w", id, err)
	}
	return sched, nil
}

// ListSchedules returns schedules matching the filter, ordered by id for a
// stable listing.
func (s *Store) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]schedule.DeviceSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var (
		clauses []string
		args    []any
	)
	if filter.Scope != nil {
		clauses = append(clauses, "scope = ?")
		args = append(args, string(*filter.Scope))
	}
	if filter.OwnerKey != nil {
		clauses = append(clauses, "owner_key = ?")
		args = append(args, *filter.OwnerKey)
	}
	if filter.GroupID != nil {
		clauses = append(clauses, "group_id = ?")
		args = append(args, *filter.GroupID)
	}
	if filter.Enabled != nil {
		clauses = append(clauses, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []schedule.DeviceSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list schedules: %w", err)
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list schedules: %w", err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule row by id.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete schedule %s: %w", id, mapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete schedule %s: %w", id, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

type scheduleRowValues struct {
	id          string
	scope       string
	ownerKey    sql.NullString
	groupID     sql.NullString
	label       string
	description sql.NullString
	targets     string
	startAction string
	endAction   string
	windowStart string
	windowEnd   string
	recurrence  string
	exceptions  string
	enabled     int
	createdAt   string
	updatedAt   string
}

func scheduleRow(sched schedule.DeviceSchedule) (scheduleRowValues, error) {
	targets, err := json.Marshal(schedule.TargetRecordOf(sched.Target))
	if err != nil {
		return scheduleRowValues{}, fmt.Errorf("sqlite: encode targets: %w", err)
	}
	rule, err := json.Marshal(schedule.RecurrenceRecordOf(sched.Recurrence))
	if err != nil {
		return scheduleRowValues{}, fmt.Errorf("sqlite: encode recurrence: %w", err)
	}
	exceptions, err := json.Marshal(schedule.ExceptionRecordsOf(sched.Exceptions))
	if err != nil {
		return scheduleRowValues{}, fmt.Errorf("sqlite: encode exceptions: %w", err)
	}
	return scheduleRowValues{
		id:          sched.ID,
		scope:       string(sched.Scope),
		ownerKey:    nullableString(sched.OwnerKey),
		groupID:     nullableString(sched.GroupID),
		label:       sched.Label,
		description: nullableString(sched.Description),
		targets:     string(targets),
		startAction: string(sched.StartAction),
		endAction:   string(sched.EndAction),
		windowStart: formatTime(sched.Window.Start),
		windowEnd:   formatTime(sched.Window.End),
		recurrence:  string(rule),
		exceptions:  string(exceptions),
		enabled:     boolToInt(sched.Enabled),
		createdAt:   formatTime(sched.CreatedAt),
		updatedAt:   formatTime(sched.UpdatedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(scanner rowScanner) (schedule.DeviceSchedule, error) {
	var row scheduleRowValues
	err := scanner.Scan(
		&row.id, &row.scope, &row.ownerKey, &row.groupID, &row.label, &row.description,
		&row.targets, &row.startAction, &row.endAction, &row.windowStart, &row.windowEnd,
		&row.recurrence, &row.exceptions, &row.enabled, &row.createdAt, &row.updatedAt)
	if err != nil {
		return schedule.DeviceSchedule{}, err
	}

	var targetRecord schedule.TargetRecord
	if err := json.Unmarshal([]byte(row.targets), &targetRecord); err != nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("decode targets for %s: %w", row.id, err)
	}
	var recurrenceRecord schedule.RecurrenceRecord
	if err := json.Unmarshal([]byte(row.recurrence), &recurrenceRecord); err != nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("decode recurrence for %s: %w", row.id, err)
	}
	rule, err := recurrenceRecord.Rule()
	if err != nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("decode recurrence for %s: %w", row.id, err)
	}
	var exceptionRecords []schedule.ExceptionRecord
	if err := json.Unmarshal([]byte(row.exceptions), &exceptionRecords); err != nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("decode exceptions for %s: %w", row.id, err)
	}
	exceptions, err := schedule.ExceptionsOf(exceptionRecords)
	if err != nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("decode exceptions for %s: %w", row.id, err)
	}

	windowStart, err := parseTime(row.windowStart)
	if err != nil {
		return schedule.DeviceSchedule{}, err
	}
	windowEnd, err := parseTime(row.windowEnd)
	if err != nil {
		return schedule.DeviceSchedule{}, err
	}
	createdAt, err := parseTime(row.createdAt)
	if err != nil {
		return schedule.DeviceSchedule{}, err
	}
	updatedAt, err := parseTime(row.updatedAt)
	if err != nil {
		return schedule.DeviceSchedule{}, err
	}

	return schedule.DeviceSchedule{
		ID:          row.id,
		Scope:       schedule.Scope(row.scope),
		OwnerKey:    stringPtr(row.ownerKey),
		Label:       row.label,
		Description: stringPtr(row.description),
		Target:      targetRecord.Target(),
		StartAction: schedule.Action(row.startAction),
		EndAction:   schedule.Action(row.endAction),
		Window:      recurrence.Window{Start: windowStart, End: windowEnd},
		Recurrence:  rule,
		Exceptions:  exceptions,
		Enabled:     row.enabled != 0,
		GroupID:     stringPtr(row.groupID),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
