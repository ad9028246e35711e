package application

import "errors"

var (
	// ErrScheduleNotFound is returned when the referenced schedule does not exist.
	ErrScheduleNotFound = errors.New("application: schedule not found")
	// ErrGroupNotFound is returned when the referenced group does not exist.
	ErrGroupNotFound = errors.New("application: group not found")
	// ErrScheduleNotInGroup is returned when activating a schedule that is not a group member.
	ErrScheduleNotInGroup = errors.New("application: schedule not in group")
	// ErrEmptyMembership is returned when a group with no members names an active schedule.
	ErrEmptyMembership = errors.New("application: group has no members")
	// ErrConflict is returned when a concurrent mutation touched an aggregate that expected exclusive access.
	ErrConflict = errors.New("application: concurrent mutation conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
