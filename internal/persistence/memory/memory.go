// Package memory provides an in-memory Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// Store keeps all records in process memory. Values are deep-copied on the
// way in and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	schedules   map[string]schedule.DeviceSchedule
	groups      map[string]schedule.Group
	metadata    *schedule.Metadata
	events      []schedule.AuditEvent
	nextEventID int64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		schedules:   make(map[string]schedule.DeviceSchedule),
		groups:      make(map[string]schedule.Group),
		nextEventID: 1,
	}
}

// CreateSchedule stores a new schedule.
func (s *Store) CreateSchedule(_ context.Context, sched schedule.DeviceSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[sched.ID]; exists {
		return persistence.ErrDuplicate
	}
	s.schedules[sched.ID] = sched.Clone()
	return nil
}

// UpdateSchedule replaces an existing schedule.
func (s *Store) UpdateSchedule(_ context.Context, sched schedule.DeviceSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[sched.ID]; !exists {
		return persistence.ErrNotFound
	}
	s.schedules[sched.ID] = sched.Clone()
	return nil
}

// GetSchedule returns one schedule by id.
func (s *Store) GetSchedule(_ context.Context, id string) (schedule.DeviceSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, exists := s.schedules[id]
	if !exists {
		return schedule.DeviceSchedule{}, persistence.ErrNotFound
	}
	return sched.Clone(), nil
}

// ListSchedules returns schedules matching the filter, ordered by id.
func (s *Store) ListSchedules(_ context.Context, filter persistence.ScheduleFilter) ([]schedule.DeviceSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var schedules []schedule.DeviceSchedule
	for _, sched := range s.schedules {
		if filter.Scope != nil && sched.Scope != *filter.Scope {
			continue
		}
		if filter.OwnerKey != nil {
			if sched.OwnerKey == nil || *sched.OwnerKey != *filter.OwnerKey {
				continue
			}
		}
		if filter.GroupID != nil {
			if sched.GroupID == nil || *sched.GroupID != *filter.GroupID {
				continue
			}
		}
		if filter.Enabled != nil && sched.Enabled != *filter.Enabled {
			continue
		}
		schedules = append(schedules, sched.Clone())
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })
	return schedules, nil
}

// DeleteSchedule removes a schedule by id.
func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[id]; !exists {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

// CreateGroup stores a new group.
func (s *Store) CreateGroup(_ context.Context, group schedule.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; exists {
		return persistence.ErrDuplicate
	}
	s.groups[group.ID] = group.Clone()
	return nil
}

// UpdateGroup replaces an existing group.
func (s *Store) UpdateGroup(_ context.Context, group schedule.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; !exists {
		return persistence.ErrNotFound
	}
	s.groups[group.ID] = group.Clone()
	return nil
}

// GetGroup returns one group by id.
func (s *Store) GetGroup(_ context.Context, id string) (schedule.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, exists := s.groups[id]
	if !exists {
		return schedule.Group{}, persistence.ErrNotFound
	}
	return group.Clone(), nil
}

// ListGroups returns all groups, or one owner's groups, ordered by id.
func (s *Store) ListGroups(_ context.Context, ownerKey *string) ([]schedule.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []schedule.Group
	for _, group := range s.groups {
		if ownerKey != nil {
			if group.OwnerKey == nil || *group.OwnerKey != *ownerKey {
				continue
			}
		}
		groups = append(groups, group.Clone())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// DeleteGroup removes a group and detaches its member schedules.
func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[id]; !exists {
		return persistence.ErrNotFound
	}
	delete(s.groups, id)
	for scheduleID, sched := range s.schedules {
		if sched.GroupID != nil && *sched.GroupID == id {
			sched.GroupID = nil
			s.schedules[scheduleID] = sched
		}
	}
	return nil
}

// GetMetadata returns the singleton metadata record.
func (s *Store) GetMetadata(_ context.Context) (schedule.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadata == nil {
		return schedule.Metadata{}, persistence.ErrNotFound
	}
	return *s.metadata, nil
}

// SetMetadata writes the singleton metadata record.
func (s *Store) SetMetadata(_ context.Context, m schedule.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = &m
	return nil
}

// AppendEvent records an audit event and returns it with the assigned id.
func (s *Store) AppendEvent(_ context.Context, event schedule.AuditEvent) (schedule.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextEventID
	s.nextEventID++
	if event.Metadata != nil {
		copied := make(map[string]string, len(event.Metadata))
		for key, value := range event.Metadata {
			copied[key] = value
		}
		event.Metadata = copied
	}
	s.events = append(s.events, event)
	return event, nil
}

// ListEvents returns the most recent events, newest first. A limit of zero or
// less means no limit.
func (s *Store) ListEvents(_ context.Context, limit int) ([]schedule.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]schedule.AuditEvent, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		if limit > 0 && len(events) == limit {
			break
		}
		events = append(events, s.events[i])
	}
	return events, nil
}
