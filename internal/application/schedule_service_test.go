package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/netlock/internal/persistence/memory"
	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
	"github.com/example/netlock/internal/testfixtures"
)

type testEnv struct {
	store       *memory.Store
	clock       *testfixtures.Clock
	schedules   *ScheduleService
	groups      *GroupService
	replication *ReplicationService
	evaluation  *EvaluationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("id")
	locks := &Locks{}
	return &testEnv{
		store:       store,
		clock:       clock,
		schedules:   NewScheduleService(store, locks, ids.NextFunc(), clock.NowFunc()),
		groups:      NewGroupService(store, locks, ids.NextFunc(), clock.NowFunc()),
		replication: NewReplicationService(store, locks, ids.NextFunc(), clock.NowFunc()),
		evaluation:  NewEvaluationService(store, clock.NowFunc()),
	}
}

func validInput(owner string) ScheduleInput {
	input := ScheduleInput{
		Scope:       schedule.ScopeOwner,
		Label:       "bedtime",
		Target:      schedule.Target{Tags: []string{owner + "-all"}},
		StartAction: schedule.ActionLock,
		Window: recurrence.Window{
			Start: time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC),
		},
		Recurrence: recurrence.Rule{Kind: recurrence.KindDaily, Interval: 1},
	}
	if owner != "" {
		input.OwnerKey = &owner
	}
	return input
}

func TestScheduleServiceCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("applies defaults", func(t *testing.T) {
		created, err := env.schedules.Create(ctx, validInput("alice"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == "" {
			t.Fatalf("id not assigned")
		}
		if !created.Enabled {
			t.Fatalf("enabled must default to true")
		}
		if created.EndAction != schedule.ActionUnlock {
			t.Fatalf("end action must default to opposite of start, got %s", created.EndAction)
		}
		if !created.CreatedAt.Equal(env.clock.Now()) || !created.UpdatedAt.Equal(created.CreatedAt) {
			t.Fatalf("timestamps not taken from the clock: %+v", created)
		}
	})

	t.Run("normalizes owner key", func(t *testing.T) {
		input := validInput("  Alice ")
		created, err := env.schedules.Create(ctx, input)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.OwnerKey == nil || *created.OwnerKey != "alice" {
			t.Fatalf("owner key not normalized: %v", created.OwnerKey)
		}
	})

	t.Run("bumps metadata", func(t *testing.T) {
		env := newTestEnv(t)
		before := env.clock.Now()
		env.clock.Advance(time.Minute)
		if _, err := env.schedules.Create(ctx, validInput("alice")); err != nil {
			t.Fatalf("create: %v", err)
		}
		metadata, err := env.store.GetMetadata(ctx)
		if err != nil {
			t.Fatalf("metadata: %v", err)
		}
		if !metadata.GeneratedAt.After(before) {
			t.Fatalf("generatedAt not bumped: %v", metadata.GeneratedAt)
		}
	})

	t.Run("records an audit event", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.schedules.Create(ctx, validInput("alice")); err != nil {
			t.Fatalf("create: %v", err)
		}
		events, err := env.store.ListEvents(ctx, 1)
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		if len(events) != 1 || events[0].Action != "schedule.created" {
			t.Fatalf("expected a schedule.created event, got %+v", events)
		}
	})
}

func TestScheduleServiceCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*ScheduleInput)
		field  string
	}{
		{"missing label", func(in *ScheduleInput) { in.Label = " " }, "label"},
		{"bad scope", func(in *ScheduleInput) { in.Scope = "team" }, "scope"},
		{"owner scope without key", func(in *ScheduleInput) { in.OwnerKey = nil }, "ownerKey"},
		{"global scope with key", func(in *ScheduleInput) { in.Scope = schedule.ScopeGlobal }, "ownerKey"},
		{"bad action", func(in *ScheduleInput) { in.StartAction = "toggle" }, "action"},
		{"inverted window", func(in *ScheduleInput) {
			in.Window.Start, in.Window.End = in.Window.End, in.Window.Start
		}, "window"},
		{"bad recurrence", func(in *ScheduleInput) { in.Recurrence.Interval = 0 }, "recurrence"},
		{"ambiguous exception", func(in *ScheduleInput) {
			window := recurrence.Window{
				Start: time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 1, 3, 20, 0, 0, 0, time.UTC),
			}
			in.Exceptions = []recurrence.Exception{
				{Date: recurrence.Date{Year: 2024, Month: time.January, Day: 3}, Skip: true, Override: &window},
			}
		}, "exceptions"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput("alice")
			tc.mutate(&input)

			_, err := env.schedules.Create(ctx, input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on field %q, got %v", tc.field, vErr.FieldErrors)
			}
		})
	}

	t.Run("nothing persisted on validation failure", func(t *testing.T) {
		schedules, err := env.schedules.List(ctx, ListSchedulesParams{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(schedules) != 0 {
			t.Fatalf("validation failures must not persist schedules, found %d", len(schedules))
		}
	})
}

func TestScheduleServiceUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.clock.Advance(time.Hour)
	input := validInput("alice")
	input.Label = "school nights"
	updated, err := env.schedules.Update(ctx, created.ID, input)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Label != "school nights" {
		t.Fatalf("label not updated: %q", updated.Label)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("updatedAt not bumped")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt must be preserved")
	}

	if _, err := env.schedules.Update(ctx, "missing", input); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduleServiceGroupedEnableGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	group, err := env.groups.Create(ctx, CreateGroupParams{
		Name:        "modes",
		ScheduleIDs: []string{first.ID, second.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	t.Run("enabling a non-active member is rejected", func(t *testing.T) {
		_, err := env.schedules.SetEnabled(ctx, second.ID, true)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("disabling the active member clears the active id", func(t *testing.T) {
		if _, err := env.schedules.SetEnabled(ctx, first.ID, false); err != nil {
			t.Fatalf("set enabled: %v", err)
		}
		stored, err := env.store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("get group: %v", err)
		}
		if stored.ActiveScheduleID != nil {
			t.Fatalf("active schedule id not cleared: %v", *stored.ActiveScheduleID)
		}
	})
}

func TestScheduleServiceDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	active, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sibling, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	group, err := env.groups.Create(ctx, CreateGroupParams{
		Name:        "modes",
		ScheduleIDs: []string{active.ID, sibling.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	if err := env.schedules.Delete(ctx, active.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	stored, err := env.store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if stored.ActiveScheduleID != nil {
		t.Fatalf("deleting the active member must leave the group with no active schedule")
	}

	// No automatic promotion of the sibling.
	remaining, err := env.store.GetSchedule(ctx, sibling.ID)
	if err != nil {
		t.Fatalf("get sibling: %v", err)
	}
	if remaining.Enabled {
		t.Fatalf("sibling must not be auto-promoted")
	}

	if err := env.schedules.Delete(ctx, "missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduleServiceOwnerView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.schedules.Create(ctx, validInput("alice")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.schedules.Create(ctx, validInput("bob")); err != nil {
		t.Fatalf("create: %v", err)
	}
	global := validInput("")
	global.Scope = schedule.ScopeGlobal
	global.Target = schedule.Target{Tags: []string{schedule.TagAllDevices}}
	if _, err := env.schedules.Create(ctx, global); err != nil {
		t.Fatalf("create global: %v", err)
	}

	owner := "alice"
	got, err := env.schedules.List(ctx, ListSchedulesParams{OwnerKey: &owner, OwnerView: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("owner view must include owner and global schedules, got %d", len(got))
	}
}
