package recurrence

import (
	"fmt"
	"sort"
	"time"
)

// Expand generates the occurrence windows of rule that intersect query,
// ordered ascending by start. Every occurrence copies the anchor window's
// time of day and duration; only the date part changes.
//
// The expansion enforces the following semantics:
//   - The anchor window is the first possible occurrence: candidates computed
//     earlier in the anchor's own period are discarded.
//   - Until, when set, bounds occurrence starts inclusively.
//   - The query range must be bounded on both ends so expansion terminates.
func Expand(rule Rule, anchor Window, query Range) ([]Window, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if !anchor.Valid() {
		return nil, fmt.Errorf("%w: anchor must end after it starts", ErrInvalidWindow)
	}
	if !query.End.After(query.Start) {
		return nil, fmt.Errorf("%w: query range must end after it starts", ErrInvalidWindow)
	}

	switch rule.Kind {
	case KindOneShot:
		if anchor.Overlaps(query) {
			return []Window{anchor}, nil
		}
		return nil, nil
	case KindDaily:
		return expandDaily(rule, anchor, query), nil
	case KindWeekly:
		return expandWeekly(rule, anchor, query), nil
	case KindMonthly:
		return expandMonthly(rule, anchor, query), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, rule.Kind)
}

func expandDaily(rule Rule, anchor Window, query Range) []Window {
	duration := anchor.Duration()
	var occurrences []Window

	for step := 0; ; step++ {
		start := anchor.Start.AddDate(0, 0, step*rule.Interval)
		if pastUntil(rule, start) {
			break
		}
		if !start.Before(query.End) {
			break
		}
		window := Window{Start: start, End: start.Add(duration)}
		if window.Overlaps(query) {
			occurrences = append(occurrences, window)
		}
	}
	return occurrences
}

func expandWeekly(rule Rule, anchor Window, query Range) []Window {
	duration := anchor.Duration()
	loc := anchor.Start.Location()

	days := rule.Weekdays
	if len(days) == 0 {
		days = []time.Weekday{anchor.Start.Weekday()}
	}
	offsets := weekdayOffsets(days)

	// Weeks are Monday-based and counted from the anchor's own week.
	anchorMonday := startOfWeek(anchor.Start)

	var occurrences []Window
	var lastStart time.Time

	for week := 0; ; week += rule.Interval {
		weekMonday := anchorMonday.AddDate(0, 0, 7*week)
		if !weekMonday.Before(query.End) {
			break
		}
		if rule.Until != nil && weekMonday.After(*rule.Until) {
			break
		}
		for _, offset := range offsets {
			day := weekMonday.AddDate(0, 0, offset)
			start := combineDateTime(day, anchor.Start, loc)
			if start.Before(anchor.Start) {
				continue
			}
			if pastUntil(rule, start) {
				continue
			}
			if !lastStart.IsZero() && start.Equal(lastStart) {
				continue
			}
			window := Window{Start: start, End: start.Add(duration)}
			if window.Overlaps(query) {
				occurrences = append(occurrences, window)
				lastStart = start
			}
		}
	}
	return occurrences
}

func expandMonthly(rule Rule, anchor Window, query Range) []Window {
	duration := anchor.Duration()
	loc := anchor.Start.Location()
	anchorYear, anchorMonth := anchor.Start.Year(), anchor.Start.Month()

	var occurrences []Window

	for step := 0; ; step++ {
		months := int(anchorMonth) - 1 + step*rule.Interval
		year := anchorYear + months/12
		month := time.Month(months%12 + 1)
		day := rule.DayOfMonth
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		start := time.Date(year, month, day,
			anchor.Start.Hour(), anchor.Start.Minute(), anchor.Start.Second(), anchor.Start.Nanosecond(), loc)
		if pastUntil(rule, start) {
			break
		}
		if !start.Before(query.End) {
			break
		}
		if start.Before(anchor.Start) {
			continue
		}
		window := Window{Start: start, End: start.Add(duration)}
		if window.Overlaps(query) {
			occurrences = append(occurrences, window)
		}
	}
	return occurrences
}

func pastUntil(rule Rule, start time.Time) bool {
	return rule.Until != nil && start.After(*rule.Until)
}

// weekdayOffsets maps weekdays to Monday-based day offsets, sorted so days
// enumerate in chronological order within a week.
func weekdayOffsets(days []time.Weekday) []int {
	offsets := make([]int, 0, len(days))
	for _, day := range days {
		offsets = append(offsets, (int(day)+6)%7)
	}
	sort.Ints(offsets)
	return offsets
}

func startOfWeek(t time.Time) time.Time {
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	offset := (int(t.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

func combineDateTime(dateSource, template time.Time, loc *time.Location) time.Time {
	y, m, d := dateSource.Date()
	return time.Date(y, m, d, template.Hour(), template.Minute(), template.Second(), template.Nanosecond(), loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
