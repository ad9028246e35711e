package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// GroupService owns the group mutual-exclusion invariant: at most one member
// of a group may be enabled, and that member's id equals the group's active
// schedule id. Every mutation re-applies the invariant before returning.
type GroupService struct {
	store       persistence.Store
	locks       *Locks
	idGenerator func() string
	now         func() time.Time
	actor       string
}

// NewGroupService wires dependencies for group operations.
func NewGroupService(store persistence.Store, locks *Locks, idGenerator func() string, now func() time.Time) *GroupService {
	if locks == nil {
		locks = &Locks{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{
		store:       store,
		locks:       locks,
		idGenerator: idGenerator,
		now:         now,
		actor:       "api",
	}
}

// Create builds a new group, attaches the listed schedules, and enforces the
// invariant. When no active schedule id is given and membership is non-empty,
// the first listed schedule becomes active.
func (s *GroupService) Create(ctx context.Context, params CreateGroupParams) (schedule.Group, error) {
	if s == nil {
		return schedule.Group{}, fmt.Errorf("GroupService is nil")
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(params.Name) == "" {
		vErr.add("name", "name is required")
	}
	if vErr.HasErrors() {
		return schedule.Group{}, vErr
	}

	scheduleIDs := uniqueStrings(params.ScheduleIDs)
	if len(scheduleIDs) == 0 && params.ActiveScheduleID != nil {
		return schedule.Group{}, ErrEmptyMembership
	}

	activeID := params.ActiveScheduleID
	if activeID == nil && len(scheduleIDs) > 0 {
		activeID = &scheduleIDs[0]
	}
	if activeID != nil && !containsString(scheduleIDs, *activeID) {
		return schedule.Group{}, ErrScheduleNotInGroup
	}

	ownerKey := params.OwnerKey
	if ownerKey != nil {
		key := schedule.NormalizeKey(*ownerKey)
		if key == "" {
			ownerKey = nil
		} else {
			ownerKey = &key
		}
	}

	groupID := s.idGenerator()
	defer s.locks.lockGroup(groupID)()

	members, err := s.loadSchedules(ctx, scheduleIDs)
	if err != nil {
		return schedule.Group{}, err
	}
	for _, member := range members {
		if member.GroupID != nil {
			vErr := &ValidationError{}
			vErr.add("scheduleIds", fmt.Sprintf("schedule %s already belongs to a group", member.ID))
			return schedule.Group{}, vErr
		}
	}

	now := s.now()
	group := schedule.Group{
		ID:               groupID,
		OwnerKey:         ownerKey,
		Name:             strings.TrimSpace(params.Name),
		Description:      params.Description,
		ActiveScheduleID: activeID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return schedule.Group{}, mapGroupRepoError(err)
	}

	for _, member := range members {
		member.GroupID = &groupID
		member.Enabled = activeID != nil && member.ID == *activeID
		member.UpdatedAt = now
		if err := s.store.UpdateSchedule(ctx, member); err != nil {
			return schedule.Group{}, mapScheduleRepoError(err)
		}
	}

	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.Group{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "group.created", "group", groupID, nil)
	return group, nil
}

// Update changes a group's attributes and, when ScheduleIDs is given,
// replaces its membership. Removed members are detached; when the previously
// active member leaves and no replacement is named, the first remaining
// member becomes active.
func (s *GroupService) Update(ctx context.Context, params UpdateGroupParams) (schedule.Group, error) {
	if s == nil {
		return schedule.Group{}, fmt.Errorf("GroupService is nil")
	}

	defer s.locks.lockGroup(params.GroupID)()

	group, err := s.store.GetGroup(ctx, params.GroupID)
	if err != nil {
		return schedule.Group{}, mapGroupRepoError(err)
	}
	current, err := s.members(ctx, group.ID)
	if err != nil {
		return schedule.Group{}, err
	}

	now := s.now()
	touched := make(map[string]schedule.DeviceSchedule)

	memberIDs := make([]string, 0, len(current))
	for _, member := range current {
		memberIDs = append(memberIDs, member.ID)
	}

	if params.ScheduleIDs != nil {
		wanted := uniqueStrings(*params.ScheduleIDs)

		for _, member := range current {
			if !containsString(wanted, member.ID) {
				member.GroupID = nil
				member.UpdatedAt = now
				touched[member.ID] = member
			}
		}

		for _, id := range wanted {
			if containsString(memberIDs, id) {
				continue
			}
			joined, err := s.store.GetSchedule(ctx, id)
			if err != nil {
				return schedule.Group{}, mapScheduleRepoError(err)
			}
			if joined.GroupID != nil && *joined.GroupID != group.ID {
				vErr := &ValidationError{}
				vErr.add("scheduleIds", fmt.Sprintf("schedule %s already belongs to a group", id))
				return schedule.Group{}, vErr
			}
			joined.GroupID = &group.ID
			joined.UpdatedAt = now
			touched[id] = joined
		}

		memberIDs = wanted
	}

	activeID := group.ActiveScheduleID
	if params.ActiveScheduleID != nil {
		activeID = params.ActiveScheduleID
	} else if activeID != nil && !containsString(memberIDs, *activeID) {
		// Previously active member left the group.
		activeID = nil
		if len(memberIDs) > 0 {
			activeID = &memberIDs[0]
		}
	}
	if len(memberIDs) == 0 && activeID != nil {
		return schedule.Group{}, ErrEmptyMembership
	}
	if activeID != nil && !containsString(memberIDs, *activeID) {
		return schedule.Group{}, ErrScheduleNotInGroup
	}

	// Re-apply the invariant over the resulting membership.
	for _, id := range memberIDs {
		member, ok := touched[id]
		if !ok {
			found := false
			for _, existing := range current {
				if existing.ID == id {
					member = existing
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		enabled := activeID != nil && member.ID == *activeID
		if member.Enabled != enabled || member.GroupID == nil || *member.GroupID != group.ID {
			member.Enabled = enabled
			member.GroupID = &group.ID
			member.UpdatedAt = now
			touched[member.ID] = member
		}
	}

	for _, member := range touched {
		if err := s.store.UpdateSchedule(ctx, member); err != nil {
			return schedule.Group{}, mapScheduleRepoError(err)
		}
	}

	if params.Name != nil {
		group.Name = strings.TrimSpace(*params.Name)
	}
	if params.Description != nil {
		group.Description = params.Description
	}
	group.ActiveScheduleID = activeID
	group.UpdatedAt = now
	if err := s.store.UpdateGroup(ctx, group); err != nil {
		return schedule.Group{}, mapGroupRepoError(err)
	}

	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.Group{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "group.updated", "group", group.ID, nil)
	return group, nil
}

// Activate makes the named schedule the group's single enabled member.
func (s *GroupService) Activate(ctx context.Context, groupID, scheduleID string) (schedule.Group, error) {
	if s == nil {
		return schedule.Group{}, fmt.Errorf("GroupService is nil")
	}

	defer s.locks.lockGroup(groupID)()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return schedule.Group{}, mapGroupRepoError(err)
	}
	members, err := s.members(ctx, groupID)
	if err != nil {
		return schedule.Group{}, err
	}

	found := false
	for _, member := range members {
		if member.ID == scheduleID {
			found = true
			break
		}
	}
	if !found {
		if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
			return schedule.Group{}, mapScheduleRepoError(err)
		}
		return schedule.Group{}, ErrScheduleNotInGroup
	}

	now := s.now()
	for _, member := range members {
		enabled := member.ID == scheduleID
		if member.Enabled == enabled {
			continue
		}
		member.Enabled = enabled
		member.UpdatedAt = now
		if err := s.store.UpdateSchedule(ctx, member); err != nil {
			return schedule.Group{}, mapScheduleRepoError(err)
		}
	}

	group.ActiveScheduleID = &scheduleID
	group.UpdatedAt = now
	if err := s.store.UpdateGroup(ctx, group); err != nil {
		return schedule.Group{}, mapGroupRepoError(err)
	}

	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.Group{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "group.activated", "group", group.ID,
		map[string]string{"scheduleId": scheduleID})
	logger := serviceLogger(ctx, "groups", "activate")
	logger.Info().
		Str("group", group.ID).
		Str("schedule", scheduleID).
		Msg("group activated")
	return group, nil
}

// Delete detaches all members and removes the group. Member enabled flags are
// left as they are; ungrouped schedules are independently controlled.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}

	defer s.locks.lockGroup(groupID)()

	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return mapGroupRepoError(err)
	}

	now := s.now()
	if err := touchMetadata(ctx, s.store, now); err != nil {
		return err
	}
	recordAudit(ctx, s.store, now, s.actor, "group.deleted", "group", groupID, nil)
	return nil
}

// Get returns a group together with its member schedules.
func (s *GroupService) Get(ctx context.Context, groupID string) (schedule.Group, []schedule.DeviceSchedule, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return schedule.Group{}, nil, mapGroupRepoError(err)
	}
	members, err := s.members(ctx, groupID)
	if err != nil {
		return schedule.Group{}, nil, err
	}
	return group, members, nil
}

// List enumerates groups, optionally narrowed to one owner.
func (s *GroupService) List(ctx context.Context, ownerKey *string) ([]schedule.Group, error) {
	return s.store.ListGroups(ctx, ownerKey)
}

func (s *GroupService) members(ctx context.Context, groupID string) ([]schedule.DeviceSchedule, error) {
	return s.store.ListSchedules(ctx, persistence.ScheduleFilter{GroupID: &groupID})
}

func (s *GroupService) loadSchedules(ctx context.Context, ids []string) ([]schedule.DeviceSchedule, error) {
	schedules := make([]schedule.DeviceSchedule, 0, len(ids))
	for _, id := range ids {
		sched, err := s.store.GetSchedule(ctx, id)
		if err != nil {
			return nil, mapScheduleRepoError(err)
		}
		schedules = append(schedules, sched)
	}
	return schedules, nil
}

func mapGroupRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrGroupNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		vErr := &ValidationError{}
		vErr.add("id", "group id already exists")
		return vErr
	}
	return err
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func containsString(values []string, wanted string) bool {
	for _, value := range values {
		if value == wanted {
			return true
		}
	}
	return false
}
