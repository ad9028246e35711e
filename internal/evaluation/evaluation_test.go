package evaluation

import (
	"testing"
	"time"

	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

func ownedSchedule(id string, start time.Time, duration time.Duration) schedule.DeviceSchedule {
	owner := "alice"
	return schedule.DeviceSchedule{
		ID:          id,
		Scope:       schedule.ScopeOwner,
		OwnerKey:    &owner,
		Label:       id,
		Target:      schedule.Target{Tags: []string{"alice-all"}},
		StartAction: schedule.ActionLock,
		EndAction:   schedule.ActionUnlock,
		Window:      recurrence.Window{Start: start, End: start.Add(duration)},
		Recurrence:  recurrence.Rule{Kind: recurrence.KindDaily, Interval: 1},
		Enabled:     true,
		UpdatedAt:   start,
	}
}

func aliceLaptop() schedule.DeviceRef {
	return schedule.DeviceRef{MAC: "aa:bb:cc:dd:ee:ff", OwnerKey: "alice", Tags: nil}
}

func TestEffectiveStateLatestStartWins(t *testing.T) {
	// Two overlapping windows: 20:00-23:00 unlock and 21:00-22:00 lock.
	early := ownedSchedule("sched-early", time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), 3*time.Hour)
	early.StartAction = schedule.ActionUnlock
	late := ownedSchedule("sched-late", time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC), time.Hour)

	at := time.Date(2024, 1, 3, 21, 30, 0, 0, time.UTC)
	resolution, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{early, late}, at, time.UTC)
	if err != nil {
		t.Fatalf("effective state: %v", err)
	}
	if !found {
		t.Fatalf("expected a firing schedule")
	}
	if resolution.ScheduleID != "sched-late" || resolution.Action != schedule.ActionLock {
		t.Fatalf("expected the later-starting schedule to win, got %+v", resolution)
	}
}

func TestEffectiveStateTieBreaks(t *testing.T) {
	start := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 2, 21, 30, 0, 0, time.UTC)

	t.Run("latest update wins on equal starts", func(t *testing.T) {
		older := ownedSchedule("sched-a", start, time.Hour)
		older.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := ownedSchedule("sched-b", start, time.Hour)
		newer.UpdatedAt = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		newer.StartAction = schedule.ActionUnlock

		resolution, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{older, newer}, at, time.UTC)
		if err != nil || !found {
			t.Fatalf("effective state: found=%t err=%v", found, err)
		}
		if resolution.ScheduleID != "sched-b" {
			t.Fatalf("expected the most recently updated schedule, got %s", resolution.ScheduleID)
		}
	})

	t.Run("smallest id wins on full tie", func(t *testing.T) {
		updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		first := ownedSchedule("sched-a", start, time.Hour)
		first.UpdatedAt = updated
		second := ownedSchedule("sched-b", start, time.Hour)
		second.UpdatedAt = updated

		resolution, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{second, first}, at, time.UTC)
		if err != nil || !found {
			t.Fatalf("effective state: found=%t err=%v", found, err)
		}
		if resolution.ScheduleID != "sched-a" {
			t.Fatalf("expected the smallest id, got %s", resolution.ScheduleID)
		}
	})
}

func TestEffectiveStateFiltersCandidates(t *testing.T) {
	start := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 2, 21, 30, 0, 0, time.UTC)

	t.Run("disabled schedules never fire", func(t *testing.T) {
		disabled := ownedSchedule("sched-a", start, time.Hour)
		disabled.Enabled = false
		_, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{disabled}, at, time.UTC)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if found {
			t.Fatalf("disabled schedule fired")
		}
	})

	t.Run("non-matching targets never fire", func(t *testing.T) {
		other := ownedSchedule("sched-a", start, time.Hour)
		other.Target = schedule.Target{Tags: []string{"bob-all"}}
		_, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{other}, at, time.UTC)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if found {
			t.Fatalf("schedule fired for a device outside its target")
		}
	})

	t.Run("unmanaged outside any window", func(t *testing.T) {
		sched := ownedSchedule("sched-a", start, time.Hour)
		outside := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
		_, found, err := EffectiveState(aliceLaptop(), []schedule.DeviceSchedule{sched}, outside, time.UTC)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if found {
			t.Fatalf("schedule fired outside its window")
		}
	})
}

func TestFiringWindowHonorsExceptions(t *testing.T) {
	sched := ownedSchedule("sched-a", time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC), time.Hour)

	t.Run("skip suppresses the day", func(t *testing.T) {
		sched := sched.Clone()
		sched.Exceptions = []recurrence.Exception{
			{Date: recurrence.Date{Year: 2024, Month: time.January, Day: 3}, Skip: true},
		}
		_, active, err := FiringWindow(sched, time.Date(2024, 1, 3, 21, 30, 0, 0, time.UTC), time.UTC)
		if err != nil {
			t.Fatalf("firing window: %v", err)
		}
		if active {
			t.Fatalf("skipped occurrence still fires")
		}
	})

	t.Run("override moves the window", func(t *testing.T) {
		override := recurrence.Window{
			Start: time.Date(2024, 1, 3, 6, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 3, 7, 0, 0, 0, time.UTC),
		}
		sched := sched.Clone()
		sched.Exceptions = []recurrence.Exception{
			{Date: recurrence.Date{Year: 2024, Month: time.January, Day: 3}, Override: &override},
		}

		window, active, err := FiringWindow(sched, time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC), time.UTC)
		if err != nil {
			t.Fatalf("firing window: %v", err)
		}
		if !active {
			t.Fatalf("override window not firing")
		}
		if !window.Start.Equal(override.Start) {
			t.Fatalf("unexpected window: %+v", window)
		}

		_, active, err = FiringWindow(sched, time.Date(2024, 1, 3, 21, 30, 0, 0, time.UTC), time.UTC)
		if err != nil {
			t.Fatalf("firing window: %v", err)
		}
		if active {
			t.Fatalf("original window still fires after override")
		}
	})
}

func TestFiringWindowLongOvernightWindow(t *testing.T) {
	// Ten-hour overnight window: the occurrence that started yesterday still
	// contains early-morning instants.
	sched := ownedSchedule("sched-a", time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC), 10*time.Hour)

	window, active, err := FiringWindow(sched, time.Date(2024, 1, 5, 3, 0, 0, 0, time.UTC), time.UTC)
	if err != nil {
		t.Fatalf("firing window: %v", err)
	}
	if !active {
		t.Fatalf("overnight occurrence not found")
	}
	if window.Start.Day() != 4 {
		t.Fatalf("expected the Jan 4 occurrence, got %+v", window)
	}
}
