package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

// ScheduleService orchestrates validation and persistence for schedule
// operations. Group membership is mutated only through GroupService; this
// service guards the enabled flag of grouped schedules so the group invariant
// cannot be broken from the schedule side.
type ScheduleService struct {
	store       persistence.Store
	locks       *Locks
	idGenerator func() string
	now         func() time.Time
	actor       string
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(store persistence.Store, locks *Locks, idGenerator func() string, now func() time.Time) *ScheduleService {
	if locks == nil {
		locks = &Locks{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		store:       store,
		locks:       locks,
		idGenerator: idGenerator,
		now:         now,
		actor:       "api",
	}
}

// Create validates the input and persists a new schedule.
func (s *ScheduleService) Create(ctx context.Context, input ScheduleInput) (schedule.DeviceSchedule, error) {
	if s == nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("ScheduleService is nil")
	}

	normalizeScheduleInput(&input)

	vErr := &ValidationError{}
	validateScheduleInput(input, vErr)
	if vErr.HasErrors() {
		logger := serviceLogger(ctx, "schedules", "create")
		logger.Debug().
			Str("errorKind", ErrorKind(vErr)).
			Msg("rejected invalid schedule input")
		return schedule.DeviceSchedule{}, vErr
	}

	if input.OwnerKey != nil {
		defer s.locks.lockOwner(*input.OwnerKey)()
	}

	now := s.now()
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	endAction := input.StartAction.Opposite()
	if input.EndAction != nil {
		endAction = *input.EndAction
	}

	created := schedule.DeviceSchedule{
		ID:          s.idGenerator(),
		Scope:       input.Scope,
		OwnerKey:    input.OwnerKey,
		Label:       strings.TrimSpace(input.Label),
		Description: input.Description,
		Target:      input.Target,
		StartAction: input.StartAction,
		EndAction:   endAction,
		Window:      input.Window,
		Recurrence:  input.Recurrence,
		Exceptions:  input.Exceptions,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateSchedule(ctx, created); err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.DeviceSchedule{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedule.created", "schedule", created.ID, nil)
	logger := serviceLogger(ctx, "schedules", "create")
	logger.Info().
		Str("schedule", created.ID).
		Msg("schedule created")
	return created, nil
}

// Get returns one schedule by id.
func (s *ScheduleService) Get(ctx context.Context, id string) (schedule.DeviceSchedule, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	return sched, nil
}

// List enumerates schedules matching the params. With OwnerView set, global
// schedules are included alongside the owner's own.
func (s *ScheduleService) List(ctx context.Context, params ListSchedulesParams) ([]schedule.DeviceSchedule, error) {
	if params.OwnerView && params.OwnerKey != nil {
		ownerScope := schedule.ScopeOwner
		owned, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{
			Scope:    &ownerScope,
			OwnerKey: params.OwnerKey,
			Enabled:  params.Enabled,
		})
		if err != nil {
			return nil, err
		}
		globalScope := schedule.ScopeGlobal
		global, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{
			Scope:   &globalScope,
			Enabled: params.Enabled,
		})
		if err != nil {
			return nil, err
		}
		return append(owned, global...), nil
	}

	return s.store.ListSchedules(ctx, persistence.ScheduleFilter{
		Scope:    params.Scope,
		OwnerKey: params.OwnerKey,
		Enabled:  params.Enabled,
	})
}

// Update validates the input and replaces the mutable fields of an existing
// schedule. Group membership and audit timestamps are preserved.
func (s *ScheduleService) Update(ctx context.Context, id string, input ScheduleInput) (schedule.DeviceSchedule, error) {
	if s == nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("ScheduleService is nil")
	}

	normalizeScheduleInput(&input)

	vErr := &ValidationError{}
	validateScheduleInput(input, vErr)
	if vErr.HasErrors() {
		return schedule.DeviceSchedule{}, vErr
	}

	existing, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	defer s.locks.lockGroupThenOwner(deref(existing.GroupID), deref(existing.OwnerKey))()

	// Re-read under the lock so concurrent group mutations are observed.
	existing, err = s.store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}

	enabled := existing.Enabled
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	if enabled != existing.Enabled && existing.GroupID != nil {
		if err := s.applyGroupEnabledGuard(ctx, existing, enabled); err != nil {
			return schedule.DeviceSchedule{}, err
		}
	}

	endAction := input.StartAction.Opposite()
	if input.EndAction != nil {
		endAction = *input.EndAction
	}

	now := s.now()
	updated := existing
	updated.Scope = input.Scope
	updated.OwnerKey = input.OwnerKey
	updated.Label = strings.TrimSpace(input.Label)
	updated.Description = input.Description
	updated.Target = input.Target
	updated.StartAction = input.StartAction
	updated.EndAction = endAction
	updated.Window = input.Window
	updated.Recurrence = input.Recurrence
	updated.Exceptions = input.Exceptions
	updated.Enabled = enabled
	updated.UpdatedAt = now

	if err := s.store.UpdateSchedule(ctx, updated); err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.DeviceSchedule{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedule.updated", "schedule", updated.ID, nil)
	return updated, nil
}

// SetEnabled toggles a schedule. Enabling a grouped schedule must go through
// group activation; disabling the active member clears the group's active
// schedule id so the group invariant holds.
func (s *ScheduleService) SetEnabled(ctx context.Context, id string, enabled bool) (schedule.DeviceSchedule, error) {
	if s == nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("ScheduleService is nil")
	}

	existing, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	defer s.locks.lockGroupThenOwner(deref(existing.GroupID), deref(existing.OwnerKey))()

	existing, err = s.store.GetSchedule(ctx, id)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	if existing.Enabled == enabled {
		return existing, nil
	}

	if existing.GroupID != nil {
		if err := s.applyGroupEnabledGuard(ctx, existing, enabled); err != nil {
			return schedule.DeviceSchedule{}, err
		}
	}

	now := s.now()
	existing.Enabled = enabled
	existing.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, existing); err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}
	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.DeviceSchedule{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedule.toggled", "schedule", existing.ID,
		map[string]string{"enabled": fmt.Sprintf("%t", enabled)})
	return existing, nil
}

// Delete removes a schedule. When the schedule was its group's active member,
// the group is left with no active schedule; no sibling is promoted.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	existing, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	defer s.locks.lockGroupThenOwner(deref(existing.GroupID), deref(existing.OwnerKey))()

	existing, err = s.store.GetSchedule(ctx, id)
	if err != nil {
		return mapScheduleRepoError(err)
	}

	now := s.now()
	if existing.GroupID != nil {
		group, err := s.store.GetGroup(ctx, *existing.GroupID)
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		if err == nil && group.ActiveScheduleID != nil && *group.ActiveScheduleID == id {
			group.ActiveScheduleID = nil
			group.UpdatedAt = now
			if err := s.store.UpdateGroup(ctx, group); err != nil {
				return err
			}
		}
	}

	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return mapScheduleRepoError(err)
	}
	if err := touchMetadata(ctx, s.store, now); err != nil {
		return err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedule.deleted", "schedule", id, nil)
	logger := serviceLogger(ctx, "schedules", "delete")
	logger.Info().
		Str("schedule", id).
		Msg("schedule deleted")
	return nil
}

// applyGroupEnabledGuard enforces the group invariant when a grouped
// schedule's enabled flag changes outside group activation.
func (s *ScheduleService) applyGroupEnabledGuard(ctx context.Context, sched schedule.DeviceSchedule, enabled bool) error {
	group, err := s.store.GetGroup(ctx, *sched.GroupID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	active := group.ActiveScheduleID != nil && *group.ActiveScheduleID == sched.ID
	if enabled && !active {
		vErr := &ValidationError{}
		vErr.add("enabled", "schedule belongs to a group; enable it by activating it in the group")
		return vErr
	}
	if !enabled && active {
		group.ActiveScheduleID = nil
		group.UpdatedAt = s.now()
		if err := s.store.UpdateGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

func normalizeScheduleInput(input *ScheduleInput) {
	if input.OwnerKey != nil {
		key := schedule.NormalizeKey(*input.OwnerKey)
		if key == "" {
			input.OwnerKey = nil
		} else {
			input.OwnerKey = &key
		}
	}
	input.Target.Normalize()
}

func validateScheduleInput(input ScheduleInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Label) == "" {
		vErr.add("label", "label is required")
	}

	if !input.Scope.Valid() {
		vErr.add("scope", "scope must be owner or global")
	} else if input.Scope == schedule.ScopeOwner && input.OwnerKey == nil {
		vErr.add("ownerKey", "owner key is required for owner scope")
	} else if input.Scope == schedule.ScopeGlobal && input.OwnerKey != nil {
		vErr.add("ownerKey", "owner key must be empty for global scope")
	}

	if !input.StartAction.Valid() {
		vErr.add("action", "action must be lock or unlock")
	}
	if input.EndAction != nil && !input.EndAction.Valid() {
		vErr.add("endAction", "end action must be lock or unlock")
	}

	if !input.Window.Valid() {
		vErr.add("window", "window start must be before end")
	}

	if err := input.Recurrence.Validate(); err != nil {
		vErr.add("recurrence", err.Error())
	}
	if err := recurrence.ValidateExceptions(input.Exceptions); err != nil {
		vErr.add("exceptions", err.Error())
	}
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrScheduleNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		vErr := &ValidationError{}
		vErr.add("id", "schedule id already exists")
		return vErr
	}
	return err
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
