package application

import (
	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	Scope       schedule.Scope
	OwnerKey    *string
	Label       string
	Description *string
	Target      schedule.Target
	StartAction schedule.Action
	// EndAction defaults to the opposite of StartAction when nil.
	EndAction  *schedule.Action
	Window     recurrence.Window
	Recurrence recurrence.Rule
	Exceptions []recurrence.Exception
	// Enabled defaults to true when nil.
	Enabled *bool
}

// ListSchedulesParams narrows schedule listings.
type ListSchedulesParams struct {
	Scope    *schedule.Scope
	OwnerKey *string
	Enabled  *bool
	// OwnerView includes global schedules alongside the owner's own.
	OwnerView bool
}

// CreateGroupParams wraps the data required to create a group.
type CreateGroupParams struct {
	Name             string
	Description      *string
	OwnerKey         *string
	ScheduleIDs      []string
	ActiveScheduleID *string
}

// UpdateGroupParams wraps the data required to update a group. Nil fields are
// left unchanged; a non-nil ScheduleIDs replaces the membership.
type UpdateGroupParams struct {
	GroupID          string
	Name             *string
	Description      *string
	ScheduleIDs      *[]string
	ActiveScheduleID *string
}

// CopyMode selects how owner-to-owner replication treats the target's
// existing schedules.
type CopyMode string

const (
	// CopyModeMerge appends clones to whatever the target already has.
	CopyModeMerge CopyMode = "merge"
	// CopyModeReplace deletes the target's owner schedules before cloning.
	CopyModeReplace CopyMode = "replace"
)

// Valid reports whether the mode is one of the supported values.
func (m CopyMode) Valid() bool {
	return m == CopyModeMerge || m == CopyModeReplace
}

// CopyResult reports the outcome of an owner-to-owner copy.
type CopyResult struct {
	Created       []schedule.DeviceSchedule
	ReplacedCount int
}
