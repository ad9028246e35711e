package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/netlock/internal/recurrence"
)

// Action is the lock state a schedule drives a device toward.
type Action string

const (
	// ActionLock blocks the device's network access.
	ActionLock Action = "lock"
	// ActionUnlock restores the device's network access.
	ActionUnlock Action = "unlock"
)

// Valid reports whether the action is one of the supported values.
func (a Action) Valid() bool {
	return a == ActionLock || a == ActionUnlock
}

// Opposite returns the counteracting action.
func (a Action) Opposite() Action {
	if a == ActionLock {
		return ActionUnlock
	}
	return ActionLock
}

// Scope determines whether a schedule belongs to a single owner or applies
// household wide.
type Scope string

const (
	// ScopeOwner schedules belong to one owner and require an owner key.
	ScopeOwner Scope = "owner"
	// ScopeGlobal schedules apply across the household.
	ScopeGlobal Scope = "global"
)

// Valid reports whether the scope is one of the supported values.
func (s Scope) Valid() bool {
	return s == ScopeOwner || s == ScopeGlobal
}

// DeviceSchedule is a time-windowed lock/unlock policy applied to a set of
// target devices. The anchor Window is the first occurrence; Recurrence
// derives the rest and Exceptions adjust individual dates after expansion.
type DeviceSchedule struct {
	ID          string
	Scope       Scope
	OwnerKey    *string // required iff Scope is ScopeOwner
	Label       string
	Description *string
	Target      Target
	StartAction Action
	EndAction   Action
	Window      recurrence.Window
	Recurrence  recurrence.Rule
	Exceptions  []recurrence.Exception
	Enabled     bool
	GroupID     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the structural invariants every stored schedule must hold:
// a label, a known scope, an owner key exactly when the scope is owner, and a
// window whose start precedes its end. Recurrence and exception validity are
// checked by their own packages.
func (s DeviceSchedule) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("schedule %s: label is required", s.ID)
	}
	if !s.Scope.Valid() {
		return fmt.Errorf("schedule %s: unknown scope %q", s.ID, s.Scope)
	}
	if s.Scope == ScopeOwner && (s.OwnerKey == nil || strings.TrimSpace(*s.OwnerKey) == "") {
		return fmt.Errorf("schedule %s: owner key is required for owner scope", s.ID)
	}
	if s.Scope == ScopeGlobal && s.OwnerKey != nil {
		return fmt.Errorf("schedule %s: owner key must be empty for global scope", s.ID)
	}
	if !s.StartAction.Valid() {
		return fmt.Errorf("schedule %s: unknown action %q", s.ID, s.StartAction)
	}
	if !s.EndAction.Valid() {
		return fmt.Errorf("schedule %s: unknown end action %q", s.ID, s.EndAction)
	}
	if !s.Window.Valid() {
		return fmt.Errorf("schedule %s: window start must be before end", s.ID)
	}
	return nil
}

// Clone returns a deep copy that shares no mutable state with the receiver.
func (s DeviceSchedule) Clone() DeviceSchedule {
	out := s
	out.OwnerKey = clonePtr(s.OwnerKey)
	out.Description = clonePtr(s.Description)
	out.GroupID = clonePtr(s.GroupID)
	out.Target = s.Target.Clone()
	out.Recurrence.Weekdays = append([]time.Weekday(nil), s.Recurrence.Weekdays...)
	if s.Recurrence.Until != nil {
		until := *s.Recurrence.Until
		out.Recurrence.Until = &until
	}
	if len(s.Exceptions) > 0 {
		out.Exceptions = make([]recurrence.Exception, len(s.Exceptions))
		for i, exception := range s.Exceptions {
			copied := exception
			if exception.Override != nil {
				window := *exception.Override
				copied.Override = &window
			}
			out.Exceptions[i] = copied
		}
	}
	return out
}

// Group bundles schedules under a mutual-exclusion invariant: at most one
// member may be enabled, and that member's id equals ActiveScheduleID.
type Group struct {
	ID               string
	OwnerKey         *string // nil means a household-wide group
	Name             string
	Description      *string
	ActiveScheduleID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy of the group record.
func (g Group) Clone() Group {
	out := g
	out.OwnerKey = clonePtr(g.OwnerKey)
	out.Description = clonePtr(g.Description)
	out.ActiveScheduleID = clonePtr(g.ActiveScheduleID)
	return out
}

// Metadata is the singleton record describing the schedule set as a whole.
// Timezone names the zone used to interpret calendar dates; GeneratedAt is
// bumped by every mutating operation.
type Metadata struct {
	Timezone    string
	GeneratedAt time.Time
}

// Location resolves the configured timezone, falling back to UTC when the
// name is empty or unknown.
func (m Metadata) Location() *time.Location {
	if m.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AuditEvent records a mutation or executor transition for later inspection.
type AuditEvent struct {
	ID          int64
	Timestamp   time.Time
	Action      string
	Actor       string
	SubjectType string
	SubjectID   string
	Reason      string
	Metadata    map[string]string
}

func clonePtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
