package evaluation

import (
	"time"

	"github.com/example/netlock/internal/recurrence"
	"github.com/example/netlock/internal/schedule"
)

// Resolution names the action a device should currently exhibit and the
// schedule occurrence that decided it.
type Resolution struct {
	Action     schedule.Action
	ScheduleID string
	Window     recurrence.Window
}

// lookbackSlack widens the expansion query beyond the anchor duration so
// occurrences shifted earlier by an override exception are still considered.
const lookbackSlack = 31 * 24 * time.Hour

// EffectiveState resolves the action a device should exhibit at the given
// instant across all supplied schedules. Only enabled schedules whose target
// matches the device participate. When several occurrences contain the
// instant, the one with the latest start wins; ties fall back to the most
// recently updated schedule, then to the smallest schedule id. The second
// return value is false when no schedule is currently firing, in which case
// the device is unmanaged and the caller keeps its last known state.
func EffectiveState(device schedule.DeviceRef, schedules []schedule.DeviceSchedule, at time.Time, loc *time.Location) (Resolution, bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	at = at.In(loc)

	var (
		winner        Resolution
		winnerUpdated time.Time
		found         bool
	)
	for _, candidate := range schedules {
		if !candidate.Enabled || !candidate.Target.Matches(device) {
			continue
		}
		window, active, err := FiringWindow(candidate, at, loc)
		if err != nil {
			return Resolution{}, false, err
		}
		if !active {
			continue
		}
		if found && !wins(window.Start, candidate.UpdatedAt, candidate.ID, winner, winnerUpdated) {
			continue
		}
		winner = Resolution{
			Action:     candidate.StartAction,
			ScheduleID: candidate.ID,
			Window:     window,
		}
		winnerUpdated = candidate.UpdatedAt
		found = true
	}
	return winner, found, nil
}

// FiringWindow reports whether the schedule has an occurrence containing the
// given instant, after recurrence expansion and exception adjustment, and
// returns that occurrence.
func FiringWindow(s schedule.DeviceSchedule, at time.Time, loc *time.Location) (recurrence.Window, bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	at = at.In(loc)

	anchor := recurrence.Window{
		Start: s.Window.Start.In(loc),
		End:   s.Window.End.In(loc),
	}
	query := recurrence.Range{
		Start: at.Add(-(anchor.Duration() + lookbackSlack)),
		End:   at.Add(time.Nanosecond),
	}

	occurrences, err := recurrence.Expand(s.Recurrence, anchor, query)
	if err != nil {
		return recurrence.Window{}, false, err
	}
	occurrences = recurrence.ApplyExceptions(occurrences, s.Exceptions, loc)

	// Walk backwards: the latest containing occurrence is authoritative
	// within a single schedule.
	for i := len(occurrences) - 1; i >= 0; i-- {
		if occurrences[i].Contains(at) {
			return occurrences[i], true, nil
		}
	}
	return recurrence.Window{}, false, nil
}

// wins implements the cross-schedule precedence policy: latest occurrence
// start, then latest schedule update, then smallest id.
func wins(start, updated time.Time, id string, current Resolution, currentUpdated time.Time) bool {
	if !start.Equal(current.Window.Start) {
		return start.After(current.Window.Start)
	}
	if !updated.Equal(currentUpdated) {
		return updated.After(currentUpdated)
	}
	return id < current.ScheduleID
}
