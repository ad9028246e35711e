package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// ReplicationService copies schedules between owners. Clones carry the source
// schedule's target, actions, window, recurrence, and exceptions, but always
// start ungrouped, enabled, and with fresh identity and timestamps.
type ReplicationService struct {
	store       persistence.Store
	locks       *Locks
	idGenerator func() string
	now         func() time.Time
	actor       string
}

// NewReplicationService wires dependencies for replication operations.
func NewReplicationService(store persistence.Store, locks *Locks, idGenerator func() string, now func() time.Time) *ReplicationService {
	if locks == nil {
		locks = &Locks{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ReplicationService{
		store:       store,
		locks:       locks,
		idGenerator: idGenerator,
		now:         now,
		actor:       "api",
	}
}

// Clone copies one schedule to the target owner.
func (s *ReplicationService) Clone(ctx context.Context, scheduleID, targetOwner string) (schedule.DeviceSchedule, error) {
	if s == nil {
		return schedule.DeviceSchedule{}, fmt.Errorf("ReplicationService is nil")
	}

	targetOwner = schedule.NormalizeKey(targetOwner)
	if targetOwner == "" {
		vErr := &ValidationError{}
		vErr.add("targetOwner", "target owner is required")
		return schedule.DeviceSchedule{}, vErr
	}

	source, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}

	defer s.locks.lockOwner(targetOwner)()

	now := s.now()
	clone := s.cloneForOwner(source, targetOwner, now)
	if err := s.store.CreateSchedule(ctx, clone); err != nil {
		return schedule.DeviceSchedule{}, mapScheduleRepoError(err)
	}

	if err := touchMetadata(ctx, s.store, now); err != nil {
		return schedule.DeviceSchedule{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedule.cloned", "schedule", clone.ID,
		map[string]string{"sourceId": source.ID, "targetOwner": targetOwner})
	return clone, nil
}

// CopyOwnerSchedules clones every owner-scoped schedule of sourceOwner into
// targetOwner. Replace mode first deletes the target's existing owner
// schedules, except when the source has none: an empty source never wipes the
// target.
func (s *ReplicationService) CopyOwnerSchedules(ctx context.Context, sourceOwner, targetOwner string, mode CopyMode) (CopyResult, error) {
	if s == nil {
		return CopyResult{}, fmt.Errorf("ReplicationService is nil")
	}

	sourceOwner = schedule.NormalizeKey(sourceOwner)
	targetOwner = schedule.NormalizeKey(targetOwner)

	vErr := &ValidationError{}
	if sourceOwner == "" {
		vErr.add("sourceOwner", "source owner is required")
	}
	if targetOwner == "" {
		vErr.add("targetOwner", "target owner is required")
	}
	if sourceOwner != "" && sourceOwner == targetOwner {
		vErr.add("targetOwner", "source and target owners must differ")
	}
	if !mode.Valid() {
		vErr.add("mode", "mode must be merge or replace")
	}
	if vErr.HasErrors() {
		return CopyResult{}, vErr
	}

	ownerScope := schedule.ScopeOwner

	// Replace mode may detach target schedules from their groups; those group
	// locks must be taken before the owner locks to keep the global order.
	if mode == CopyModeReplace {
		existing, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{
			Scope:    &ownerScope,
			OwnerKey: &targetOwner,
		})
		if err != nil {
			return CopyResult{}, err
		}
		for _, groupID := range groupIDsOf(existing) {
			defer s.locks.lockGroup(groupID)()
		}
	}

	// Lock both owners in a fixed order so two concurrent copies between the
	// same pair cannot deadlock.
	first, second := sourceOwner, targetOwner
	if second < first {
		first, second = second, first
	}
	defer s.locks.lockOwner(first)()
	defer s.locks.lockOwner(second)()

	sources, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{
		Scope:    &ownerScope,
		OwnerKey: &sourceOwner,
	})
	if err != nil {
		return CopyResult{}, err
	}
	if len(sources) == 0 {
		return CopyResult{Created: []schedule.DeviceSchedule{}}, nil
	}

	now := s.now()
	result := CopyResult{Created: make([]schedule.DeviceSchedule, 0, len(sources))}

	if mode == CopyModeReplace {
		existing, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{
			Scope:    &ownerScope,
			OwnerKey: &targetOwner,
		})
		if err != nil {
			return CopyResult{}, err
		}
		for _, victim := range existing {
			if victim.GroupID != nil {
				if err := s.detachFromGroup(ctx, victim, now); err != nil {
					return CopyResult{}, err
				}
			}
			if err := s.store.DeleteSchedule(ctx, victim.ID); err != nil {
				return CopyResult{}, mapScheduleRepoError(err)
			}
			result.ReplacedCount++
		}
	}

	for _, source := range sources {
		clone := s.cloneForOwner(source, targetOwner, now)
		if err := s.store.CreateSchedule(ctx, clone); err != nil {
			return CopyResult{}, mapScheduleRepoError(err)
		}
		result.Created = append(result.Created, clone)
	}

	if err := touchMetadata(ctx, s.store, now); err != nil {
		return CopyResult{}, err
	}
	recordAudit(ctx, s.store, now, s.actor, "schedules.copied", "owner", targetOwner,
		map[string]string{
			"sourceOwner": sourceOwner,
			"mode":        string(mode),
			"created":     fmt.Sprintf("%d", len(result.Created)),
			"replaced":    fmt.Sprintf("%d", result.ReplacedCount),
		})
	logger := serviceLogger(ctx, "replication", "copy")
	logger.Info().
		Str("sourceOwner", sourceOwner).
		Str("targetOwner", targetOwner).
		Int("created", len(result.Created)).
		Int("replaced", result.ReplacedCount).
		Msg("owner schedules copied")
	return result, nil
}

// cloneForOwner builds the owner-scoped copy of a schedule.
func (s *ReplicationService) cloneForOwner(source schedule.DeviceSchedule, targetOwner string, now time.Time) schedule.DeviceSchedule {
	clone := source.Clone()
	clone.ID = s.idGenerator()
	clone.Scope = schedule.ScopeOwner
	clone.OwnerKey = &targetOwner
	clone.GroupID = nil
	clone.Enabled = true
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return clone
}

// detachFromGroup clears a deleted member's group linkage and, when it was
// the active member, leaves the group with no active schedule. The caller
// already holds the group lock.
func (s *ReplicationService) detachFromGroup(ctx context.Context, sched schedule.DeviceSchedule, now time.Time) error {
	group, err := s.store.GetGroup(ctx, *sched.GroupID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	if group.ActiveScheduleID != nil && *group.ActiveScheduleID == sched.ID {
		group.ActiveScheduleID = nil
		group.UpdatedAt = now
		if err := s.store.UpdateGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

func groupIDsOf(schedules []schedule.DeviceSchedule) []string {
	var ids []string
	for _, sched := range schedules {
		if sched.GroupID != nil && !containsString(ids, *sched.GroupID) {
			ids = append(ids, *sched.GroupID)
		}
	}
	sort.Strings(ids)
	return ids
}
