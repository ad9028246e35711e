// Package executor periodically evaluates schedules and drives lock state
// transitions through a LockController port on occurrence edges.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/netlock/internal/evaluation"
	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// LockController applies a lock or unlock action to one device. Hardware
// control lives behind this port; the executor never talks to devices
// directly.
type LockController interface {
	Apply(ctx context.Context, device schedule.DeviceRef, action schedule.Action) error
}

// DeviceDirectory lists the devices the household knows about.
type DeviceDirectory interface {
	Devices(ctx context.Context) ([]schedule.DeviceRef, error)
}

// Config collects the executor's dependencies and tuning.
type Config struct {
	Store      persistence.Store
	Controller LockController
	Directory  DeviceDirectory
	Logger     zerolog.Logger
	// Interval between evaluation ticks.
	Interval time.Duration
	// DispatchRate caps lock commands per second. Zero means 5/s.
	DispatchRate float64
	Now          func() time.Time
}

// Executor runs the edge-triggered evaluation loop. A schedule transitions
// through its start action when an occurrence begins containing the current
// instant and through its end action when it stops.
type Executor struct {
	store      persistence.Store
	controller LockController
	directory  DeviceDirectory
	logger     zerolog.Logger
	limiter    *rate.Limiter
	interval   time.Duration
	now        func() time.Time

	cron *cron.Cron

	mu sync.Mutex
	// firing schedule ids as of the previous tick
	active map[string]bool
}

// New builds an executor. Start must be called to begin ticking.
func New(cfg Config) (*Executor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("executor: store is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("executor: lock controller is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("executor: device directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.DispatchRate <= 0 {
		cfg.DispatchRate = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		store:      cfg.Store,
		controller: cfg.Controller,
		directory:  cfg.Directory,
		logger:     cfg.Logger,
		limiter:    rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1),
		interval:   cfg.Interval,
		now:        cfg.Now,
		active:     make(map[string]bool),
	}, nil
}

// Start schedules the periodic evaluation. The first tick runs after one
// interval; call EvaluateOnce first for an immediate pass.
func (e *Executor) Start(ctx context.Context) error {
	if e.cron != nil {
		return fmt.Errorf("executor: already started")
	}
	e.cron = cron.New()
	_, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.interval), func() {
		if err := e.EvaluateOnce(ctx); err != nil {
			e.logger.Error().Err(err).Msg("evaluation tick failed")
		}
	})
	if err != nil {
		return fmt.Errorf("executor: schedule tick: %w", err)
	}
	e.cron.Start()
	e.logger.Info().Dur("interval", e.interval).Msg("executor started")
	return nil
}

// Stop halts the tick loop and waits for a running tick to finish.
func (e *Executor) Stop() {
	if e.cron == nil {
		return
	}
	<-e.cron.Stop().Done()
	e.logger.Info().Msg("executor stopped")
}

// EvaluateOnce runs a single evaluation pass: it computes which schedules are
// firing now, compares against the previous pass, and dispatches actions for
// the edges.
func (e *Executor) EvaluateOnce(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.now()
	loc, err := e.location(ctx)
	if err != nil {
		return err
	}

	enabled := true
	schedules, err := e.store.ListSchedules(ctx, persistence.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("executor: list schedules: %w", err)
	}

	devices, err := e.directory.Devices(ctx)
	if err != nil {
		return fmt.Errorf("executor: list devices: %w", err)
	}

	firing := make(map[string]bool, len(schedules))
	for _, sched := range schedules {
		_, active, err := evaluation.FiringWindow(sched, at, loc)
		if err != nil {
			e.logger.Warn().Err(err).Str("schedule", sched.ID).Msg("skipping schedule with invalid recurrence")
			continue
		}
		firing[sched.ID] = active

		wasActive := e.active[sched.ID]
		switch {
		case active && !wasActive:
			e.dispatch(ctx, sched, sched.StartAction, devices, at, "window start")
		case !active && wasActive:
			e.dispatch(ctx, sched, sched.EndAction, devices, at, "window end")
		}
	}

	// Schedules that disappeared (deleted or disabled) while firing still get
	// their end transition.
	for id, wasActive := range e.active {
		if !wasActive || firing[id] {
			continue
		}
		if _, stillListed := firing[id]; stillListed {
			continue
		}
		sched, err := e.store.GetSchedule(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return fmt.Errorf("executor: reload schedule %s: %w", id, err)
		}
		e.dispatch(ctx, sched, sched.EndAction, devices, at, "schedule retired")
	}

	e.active = firing
	return nil
}

// dispatch applies the action to every device the schedule targets, rate
// limited across the whole pass.
func (e *Executor) dispatch(ctx context.Context, sched schedule.DeviceSchedule, action schedule.Action, devices []schedule.DeviceRef, at time.Time, reason string) {
	count := 0
	for _, device := range devices {
		if !sched.Target.Matches(device) {
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("dispatch aborted")
			return
		}
		if err := e.controller.Apply(ctx, device, action); err != nil {
			e.logger.Error().Err(err).
				Str("schedule", sched.ID).
				Str("device", device.MAC).
				Str("action", string(action)).
				Msg("lock command failed")
			continue
		}
		count++
	}

	e.logger.Info().
		Str("schedule", sched.ID).
		Str("action", string(action)).
		Int("devices", count).
		Str("reason", reason).
		Msg("schedule transition")

	if _, err := e.store.AppendEvent(ctx, schedule.AuditEvent{
		Timestamp:   at,
		Action:      "executor." + string(action),
		Actor:       "executor",
		SubjectType: "schedule",
		SubjectID:   sched.ID,
		Reason:      reason,
		Metadata:    map[string]string{"devices": fmt.Sprintf("%d", count)},
	}); err != nil {
		e.logger.Warn().Err(err).Msg("audit event dropped")
	}
}

func (e *Executor) location(ctx context.Context) (*time.Location, error) {
	metadata, err := e.store.GetMetadata(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return time.UTC, nil
		}
		return nil, fmt.Errorf("executor: load metadata: %w", err)
	}
	return metadata.Location(), nil
}
