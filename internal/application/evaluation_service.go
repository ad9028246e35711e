package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/netlock/internal/evaluation"
	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// EvaluationService answers "what should this device be doing right now"
// queries over the persisted schedule set, using the configured timezone from
// the metadata record.
type EvaluationService struct {
	store persistence.Store
	now   func() time.Time
}

// NewEvaluationService wires dependencies for evaluation queries.
func NewEvaluationService(store persistence.Store, now func() time.Time) *EvaluationService {
	if now == nil {
		now = time.Now
	}
	return &EvaluationService{store: store, now: now}
}

// EffectiveState resolves the action the device should exhibit at the given
// instant. A zero instant means now. The second return value is false when no
// enabled schedule is firing for the device.
func (s *EvaluationService) EffectiveState(ctx context.Context, device schedule.DeviceRef, at time.Time) (evaluation.Resolution, bool, error) {
	if s == nil {
		return evaluation.Resolution{}, false, fmt.Errorf("EvaluationService is nil")
	}
	if at.IsZero() {
		at = s.now()
	}

	loc, err := s.location(ctx)
	if err != nil {
		return evaluation.Resolution{}, false, err
	}

	enabled := true
	schedules, err := s.store.ListSchedules(ctx, persistence.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return evaluation.Resolution{}, false, err
	}

	return evaluation.EffectiveState(device, schedules, at, loc)
}

// FiringWindow reports whether the named schedule is firing at the instant
// and returns the occurrence that contains it.
func (s *EvaluationService) FiringWindow(ctx context.Context, scheduleID string, at time.Time) (evaluation.Resolution, bool, error) {
	if s == nil {
		return evaluation.Resolution{}, false, fmt.Errorf("EvaluationService is nil")
	}
	if at.IsZero() {
		at = s.now()
	}

	sched, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return evaluation.Resolution{}, false, mapScheduleRepoError(err)
	}
	loc, err := s.location(ctx)
	if err != nil {
		return evaluation.Resolution{}, false, err
	}

	window, active, err := evaluation.FiringWindow(sched, at, loc)
	if err != nil || !active {
		return evaluation.Resolution{}, false, err
	}
	return evaluation.Resolution{
		Action:     sched.StartAction,
		ScheduleID: sched.ID,
		Window:     window,
	}, true, nil
}

func (s *EvaluationService) location(ctx context.Context) (*time.Location, error) {
	metadata, err := s.store.GetMetadata(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return time.UTC, nil
		}
		return nil, err
	}
	return metadata.Location(), nil
}
