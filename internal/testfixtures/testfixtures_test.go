package testfixtures

import (
	"testing"
	"time"
)

func TestClockAdvance(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected reference time, got %v", clock.Now())
	}

	updated := clock.Advance(90 * time.Minute)
	if want := ReferenceTime().Add(90 * time.Minute); !updated.Equal(want) {
		t.Fatalf("expected %v, got %v", want, updated)
	}
	if !clock.Now().Equal(updated) {
		t.Fatalf("Now diverged from Advance result")
	}
}

func TestIDGeneratorSequence(t *testing.T) {
	gen := NewIDGenerator("sched")
	if got := gen.Next(); got != "sched-1" {
		t.Fatalf("expected sched-1, got %q", got)
	}
	if got := gen.Next(); got != "sched-2" {
		t.Fatalf("expected sched-2, got %q", got)
	}
}
