package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

const groupColumns = `id, owner_key, name, description, active_schedule_id, created_at, updated_at`

// CreateGroup inserts a new group row.
func (s *Store) CreateGroup(ctx context.Context, group schedule.Group) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO schedule_groups (`+groupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID, nullableString(group.OwnerKey), group.Name,
		nullableString(group.Description), nullableString(group.ActiveScheduleID),
		formatTime(group.CreatedAt), formatTime(group.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: create group %s: %w", group.ID, mapError(err))
	}
	return nil
}

// UpdateGroup replaces an existing group row.
func (s *Store) UpdateGroup(ctx context.Context, group schedule.Group) error {
	result, err := s.db.ExecContext(ctx, `UPDATE schedule_groups SET
		owner_key = ?, name = ?, description = ?, active_schedule_id = ?,
		created_at = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(group.OwnerKey), group.Name,
		nullableString(group.Description), nullableString(group.ActiveScheduleID),
		formatTime(group.CreatedAt), formatTime(group.UpdatedAt),
		group.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update group %s: %w", group.ID, mapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update group %s: %w", group.ID, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetGroup loads one group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (schedule.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM schedule_groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.Group{}, persistence.ErrNotFound
		}
		return schedule.Group{}, fmt.Errorf("sqlite: get group %s: %w", id, err)
	}
	return group, nil
}

// ListGroups returns all groups, or only those of one owner when ownerKey is
// set, ordered by id.
func (s *Store) ListGroups(ctx context.Context, ownerKey *string) ([]schedule.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM schedule_groups`
	var args []any
	if ownerKey != nil {
		query += ` WHERE owner_key = ?`
		args = append(args, *ownerKey)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list groups: %w", err)
	}
	defer rows.Close()

	var groups []schedule.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list groups: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list groups: %w", err)
	}
	return groups, nil
}

// DeleteGroup removes a group row and detaches its member schedules.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE schedules SET group_id = NULL WHERE group_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: detach group %s members: %w", id, mapError(err))
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM schedule_groups WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: delete group %s: %w", id, mapError(err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: delete group %s: %w", id, err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func scanGroup(scanner rowScanner) (schedule.Group, error) {
	var (
		group       schedule.Group
		ownerKey    sql.NullString
		description sql.NullString
		activeID    sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := scanner.Scan(&group.ID, &ownerKey, &group.Name, &description,
		&activeID, &createdAt, &updatedAt)
	if err != nil {
		return schedule.Group{}, err
	}
	group.OwnerKey = stringPtr(ownerKey)
	group.Description = stringPtr(description)
	group.ActiveScheduleID = stringPtr(activeID)
	if group.CreatedAt, err = parseTime(createdAt); err != nil {
		return schedule.Group{}, err
	}
	if group.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return schedule.Group{}, err
	}
	return group, nil
}
