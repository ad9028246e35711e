package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the supported recurrence rule variants.
type Kind string

const (
	// KindOneShot emits exactly the anchor window, with no repetition.
	KindOneShot Kind = "one_shot"
	// KindDaily repeats the anchor window every Interval days.
	KindDaily Kind = "daily"
	// KindWeekly repeats the anchor window on selected weekdays every Interval weeks.
	KindWeekly Kind = "weekly"
	// KindMonthly repeats the anchor window on a fixed day of month every Interval months.
	KindMonthly Kind = "monthly"
)

// Rule describes a recurrence configuration for a schedule. Which fields are
// meaningful depends on Kind; Validate enforces the per-kind requirements.
type Rule struct {
	Kind       Kind
	Interval   int
	Weekdays   []time.Weekday // weekly: empty means the anchor window's weekday
	DayOfMonth int            // monthly: 1-31, clamped to shorter months
	Until      *time.Time     // inclusive bound on occurrence starts
}

// ErrInvalidRule indicates a recurrence rule that fails validation.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// ErrInvalidWindow indicates an anchor or query window whose end does not
// follow its start.
var ErrInvalidWindow = errors.New("recurrence: invalid window")

// Validate reports whether the rule is internally consistent.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindOneShot:
		return nil
	case KindDaily:
		if r.Interval < 1 {
			return fmt.Errorf("%w: daily interval must be at least 1", ErrInvalidRule)
		}
	case KindWeekly:
		if r.Interval < 1 {
			return fmt.Errorf("%w: weekly interval must be at least 1", ErrInvalidRule)
		}
	case KindMonthly:
		if r.Interval < 1 {
			return fmt.Errorf("%w: monthly interval must be at least 1", ErrInvalidRule)
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month must be between 1 and 31", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}
	return nil
}

// Window is a half-open interval of instants: Start is included, End is not.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether the window intersects [r.Start, r.End).
func (w Window) Overlaps(r Range) bool {
	return w.Start.Before(r.End) && w.End.After(r.Start)
}

// Valid reports whether the window has positive length.
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Range bounds an expansion query. Both ends are required; an unbounded
// expansion cannot terminate.
type Range struct {
	Start time.Time
	End   time.Time
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseWeekday resolves a three-letter weekday abbreviation (Mon..Sun).
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, name)
	}
	return day, nil
}

// ParseWeekdays resolves a list of weekday abbreviations, preserving order and
// dropping duplicates.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	seen := make(map[time.Weekday]struct{}, len(names))
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}

// FormatWeekday returns the three-letter abbreviation for day.
func FormatWeekday(day time.Weekday) string {
	return day.String()[:3]
}

// FormatWeekdays returns abbreviations for each day in order.
func FormatWeekdays(days []time.Weekday) []string {
	if len(days) == 0 {
		return nil
	}
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = FormatWeekday(day)
	}
	return names
}
