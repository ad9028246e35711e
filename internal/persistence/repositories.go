package persistence

import (
	"context"

	"github.com/example/netlock/internal/schedule"
)

// ScheduleFilter narrows schedule queries. Nil fields match everything.
type ScheduleFilter struct {
	Scope    *schedule.Scope
	OwnerKey *string
	GroupID  *string
	Enabled  *bool
}

// ScheduleRepository exposes CRUD operations for device schedules.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s schedule.DeviceSchedule) error
	UpdateSchedule(ctx context.Context, s schedule.DeviceSchedule) error
	GetSchedule(ctx context.Context, id string) (schedule.DeviceSchedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]schedule.DeviceSchedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// GroupRepository exposes CRUD operations for schedule groups.
type GroupRepository interface {
	CreateGroup(ctx context.Context, g schedule.Group) error
	UpdateGroup(ctx context.Context, g schedule.Group) error
	GetGroup(ctx context.Context, id string) (schedule.Group, error)
	ListGroups(ctx context.Context, ownerKey *string) ([]schedule.Group, error)
	DeleteGroup(ctx context.Context, id string) error
}

// MetadataRepository stores the singleton schedule metadata record.
type MetadataRepository interface {
	GetMetadata(ctx context.Context) (schedule.Metadata, error)
	SetMetadata(ctx context.Context, m schedule.Metadata) error
}

// EventRepository appends and lists audit events.
type EventRepository interface {
	AppendEvent(ctx context.Context, event schedule.AuditEvent) (schedule.AuditEvent, error)
	ListEvents(ctx context.Context, limit int) ([]schedule.AuditEvent, error)
}

// Store aggregates every repository the application needs.
type Store interface {
	ScheduleRepository
	GroupRepository
	MetadataRepository
	EventRepository
}
