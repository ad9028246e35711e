package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

func TestEvaluationServiceEffectiveState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	device := schedule.DeviceRef{MAC: "aa:bb:cc:dd:ee:ff", OwnerKey: "alice"}

	t.Run("inside the window", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC)
		resolution, found, err := env.evaluation.EffectiveState(ctx, device, at)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if !found || resolution.ScheduleID != created.ID {
			t.Fatalf("expected %s firing, got found=%t %+v", created.ID, found, resolution)
		}
		if resolution.Action != schedule.ActionLock {
			t.Fatalf("action = %s, want lock", resolution.Action)
		}
	})

	t.Run("outside the window", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
		_, found, err := env.evaluation.EffectiveState(ctx, device, at)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if found {
			t.Fatalf("nothing should fire at noon")
		}
	})

	t.Run("disabled schedules are ignored", func(t *testing.T) {
		if _, err := env.schedules.SetEnabled(ctx, created.ID, false); err != nil {
			t.Fatalf("disable: %v", err)
		}
		at := time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC)
		_, found, err := env.evaluation.EffectiveState(ctx, device, at)
		if err != nil {
			t.Fatalf("effective state: %v", err)
		}
		if found {
			t.Fatalf("disabled schedule fired")
		}
	})
}

func TestEvaluationServiceFiringWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.schedules.Create(ctx, validInput("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolution, active, err := env.evaluation.FiringWindow(ctx, created.ID, time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("firing window: %v", err)
	}
	if !active {
		t.Fatalf("expected the schedule to be firing")
	}
	if resolution.Window.Start.Day() != 2 {
		t.Fatalf("unexpected occurrence: %+v", resolution.Window)
	}

	if _, _, err := env.evaluation.FiringWindow(ctx, "missing", time.Time{}); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestEvaluationServiceUsesConfiguredTimezone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.store.SetMetadata(ctx, schedule.Metadata{Timezone: "Asia/Tokyo"}); err != nil {
		t.Fatalf("metadata: %v", err)
	}

	// The schedule fires daily 21:00-07:00 UTC. An exception keyed to the Tokyo
	// calendar date of the occurrence start must suppress it.
	input := validInput("alice")
	input.Exceptions = nil
	created, err := env.schedules.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	update := validInput("alice")
	update.Exceptions = []recurrence.Exception{
		{Date: recurrence.Date{Year: 2024, Month: time.January, Day: 3}, Skip: true},
	}
	if _, err := env.schedules.Update(ctx, created.ID, update); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Jan 2 21:00 UTC is Jan 3 in Tokyo, so the exception applies.
	at := time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC)
	_, active, err := env.evaluation.FiringWindow(ctx, created.ID, at)
	if err != nil {
		t.Fatalf("firing window: %v", err)
	}
	if active {
		t.Fatalf("occurrence should be skipped via its Tokyo date")
	}
}
