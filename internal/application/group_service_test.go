package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/netlock/internal/schedule"
)

func createSchedules(t *testing.T, env *testEnv, owner string, count int) []schedule.DeviceSchedule {
	t.Helper()
	schedules := make([]schedule.DeviceSchedule, 0, count)
	for i := 0; i < count; i++ {
		created, err := env.schedules.Create(context.Background(), validInput(owner))
		if err != nil {
			t.Fatalf("create schedule: %v", err)
		}
		schedules = append(schedules, created)
	}
	return schedules
}

func assertSingleEnabled(t *testing.T, env *testEnv, groupID string, wantActive string) {
	t.Helper()
	ctx := context.Background()

	group, members, err := env.groups.Get(ctx, groupID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}

	var enabled []string
	for _, member := range members {
		if member.Enabled {
			enabled = append(enabled, member.ID)
		}
	}

	if wantActive == "" {
		if group.ActiveScheduleID != nil {
			t.Fatalf("expected no active schedule, got %s", *group.ActiveScheduleID)
		}
		if len(enabled) != 0 {
			t.Fatalf("expected no enabled members, got %v", enabled)
		}
		return
	}
	if group.ActiveScheduleID == nil || *group.ActiveScheduleID != wantActive {
		t.Fatalf("active schedule id = %v, want %s", group.ActiveScheduleID, wantActive)
	}
	if len(enabled) != 1 || enabled[0] != wantActive {
		t.Fatalf("enabled members = %v, want exactly %s", enabled, wantActive)
	}
}

func TestGroupServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("first member becomes active by default", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 3)

		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID, members[1].ID, members[2].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[0].ID)
	})

	t.Run("explicit active member wins", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 2)

		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:             "modes",
			ScheduleIDs:      []string{members[0].ID, members[1].ID},
			ActiveScheduleID: &members[1].ID,
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[1].ID)
	})

	t.Run("empty membership with an active id is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		active := "sched-1"
		_, err := env.groups.Create(ctx, CreateGroupParams{Name: "modes", ActiveScheduleID: &active})
		if !errors.Is(err, ErrEmptyMembership) {
			t.Fatalf("expected ErrEmptyMembership, got %v", err)
		}
	})

	t.Run("active id outside membership is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 1)
		outsider := "sched-outside"
		_, err := env.groups.Create(ctx, CreateGroupParams{
			Name:             "modes",
			ScheduleIDs:      []string{members[0].ID},
			ActiveScheduleID: &outsider,
		})
		if !errors.Is(err, ErrScheduleNotInGroup) {
			t.Fatalf("expected ErrScheduleNotInGroup, got %v", err)
		}
	})

	t.Run("already grouped schedules are rejected", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 1)
		if _, err := env.groups.Create(ctx, CreateGroupParams{Name: "first", ScheduleIDs: []string{members[0].ID}}); err != nil {
			t.Fatalf("create group: %v", err)
		}

		_, err := env.groups.Create(ctx, CreateGroupParams{Name: "second", ScheduleIDs: []string{members[0].ID}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("missing group is reported", func(t *testing.T) {
		env := newTestEnv(t)
		if _, _, err := env.groups.Get(ctx, "missing"); !errors.Is(err, ErrGroupNotFound) {
			t.Fatalf("expected ErrGroupNotFound, got %v", err)
		}
	})
}

func TestGroupServiceActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("successive activations keep one member enabled", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 3)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID, members[1].ID, members[2].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		if _, err := env.groups.Activate(ctx, group.ID, members[1].ID); err != nil {
			t.Fatalf("activate: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[1].ID)

		if _, err := env.groups.Activate(ctx, group.ID, members[2].ID); err != nil {
			t.Fatalf("activate: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[2].ID)
	})

	t.Run("non-member schedule is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 2)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		if _, err := env.groups.Activate(ctx, group.ID, members[1].ID); !errors.Is(err, ErrScheduleNotInGroup) {
			t.Fatalf("expected ErrScheduleNotInGroup, got %v", err)
		}
	})

	t.Run("missing schedule is reported", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 1)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		if _, err := env.groups.Activate(ctx, group.ID, "missing"); !errors.Is(err, ErrScheduleNotFound) {
			t.Fatalf("expected ErrScheduleNotFound, got %v", err)
		}
	})
}

func TestGroupServiceUpdateMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("removed active member hands over to the first remaining", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 3)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID, members[1].ID, members[2].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		remaining := []string{members[1].ID, members[2].ID}
		if _, err := env.groups.Update(ctx, UpdateGroupParams{GroupID: group.ID, ScheduleIDs: &remaining}); err != nil {
			t.Fatalf("update: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[1].ID)

		detached, err := env.store.GetSchedule(ctx, members[0].ID)
		if err != nil {
			t.Fatalf("get detached: %v", err)
		}
		if detached.GroupID != nil {
			t.Fatalf("removed member still grouped: %v", *detached.GroupID)
		}
	})

	t.Run("joining members are disabled unless active", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 2)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		both := []string{members[0].ID, members[1].ID}
		if _, err := env.groups.Update(ctx, UpdateGroupParams{GroupID: group.ID, ScheduleIDs: &both}); err != nil {
			t.Fatalf("update: %v", err)
		}
		assertSingleEnabled(t, env, group.ID, members[0].ID)
	})

	t.Run("renames without touching membership", func(t *testing.T) {
		env := newTestEnv(t)
		members := createSchedules(t, env, "alice", 2)
		group, err := env.groups.Create(ctx, CreateGroupParams{
			Name:        "modes",
			ScheduleIDs: []string{members[0].ID, members[1].ID},
		})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}

		name := "quiet hours"
		updated, err := env.groups.Update(ctx, UpdateGroupParams{GroupID: group.ID, Name: &name})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Name != "quiet hours" {
			t.Fatalf("name not updated: %q", updated.Name)
		}
		assertSingleEnabled(t, env, group.ID, members[0].ID)
	})
}

func TestGroupServiceDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	members := createSchedules(t, env, "alice", 2)
	group, err := env.groups.Create(ctx, CreateGroupParams{
		Name:        "modes",
		ScheduleIDs: []string{members[0].ID, members[1].ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	if err := env.groups.Delete(ctx, group.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := env.groups.Get(ctx, group.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("group still present: %v", err)
	}

	// Members keep their enabled flags but lose the group linkage.
	active, err := env.store.GetSchedule(ctx, members[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if active.GroupID != nil {
		t.Fatalf("member still grouped")
	}
	if !active.Enabled {
		t.Fatalf("active member's enabled flag must survive group deletion")
	}
	sibling, err := env.store.GetSchedule(ctx, members[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sibling.Enabled {
		t.Fatalf("disabled member must stay disabled")
	}

	if err := env.groups.Delete(ctx, "missing"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestGroupServiceList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := "alice"
	bob := "bob"
	if _, err := env.groups.Create(ctx, CreateGroupParams{Name: "alice modes", OwnerKey: &alice}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := env.groups.Create(ctx, CreateGroupParams{Name: "bob modes", OwnerKey: &bob}); err != nil {
		t.Fatalf("create group: %v", err)
	}

	groups, err := env.groups.List(ctx, &alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "alice modes" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
