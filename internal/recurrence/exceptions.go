package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Date identifies a calendar day independent of any clock time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: bad date %q", ErrInvalidException, value)
	}
	return DateOf(t), nil
}

// Exception adjusts a single occurrence, keyed by the calendar date of the
// occurrence's start. Skip removes the occurrence; Override replaces its
// window. The two are mutually exclusive.
type Exception struct {
	Date     Date
	Reason   string
	Skip     bool
	Override *Window
}

// ErrInvalidException indicates an exception that fails validation.
var ErrInvalidException = errors.New("recurrence: invalid exception")

// ValidateExceptions rejects exception lists that could resolve ambiguously:
// an entry with both Skip and Override set, or two entries sharing a date.
func ValidateExceptions(exceptions []Exception) error {
	seen := make(map[Date]struct{}, len(exceptions))
	for _, exception := range exceptions {
		if exception.Skip && exception.Override != nil {
			return fmt.Errorf("%w: %s sets both skip and override", ErrInvalidException, exception.Date)
		}
		if _, ok := seen[exception.Date]; ok {
			return fmt.Errorf("%w: duplicate date %s", ErrInvalidException, exception.Date)
		}
		seen[exception.Date] = struct{}{}
	}
	return nil
}

// ApplyExceptions adjusts expanded occurrences: occurrences whose start date
// (interpreted in loc) matches a Skip exception are dropped, and Override
// exceptions replace the matching occurrence's window. An override whose end
// does not follow its start keeps the occurrence's original duration.
func ApplyExceptions(occurrences []Window, exceptions []Exception, loc *time.Location) []Window {
	if len(occurrences) == 0 || len(exceptions) == 0 {
		return occurrences
	}
	if loc == nil {
		loc = time.UTC
	}

	byDate := make(map[Date]Exception, len(exceptions))
	for _, exception := range exceptions {
		byDate[exception.Date] = exception
	}

	adjusted := make([]Window, 0, len(occurrences))
	for _, occurrence := range occurrences {
		exception, ok := byDate[DateOf(occurrence.Start.In(loc))]
		if !ok {
			adjusted = append(adjusted, occurrence)
			continue
		}
		if exception.Skip {
			continue
		}
		if exception.Override != nil {
			window := *exception.Override
			if !window.End.After(window.Start) {
				window.End = window.Start.Add(occurrence.Duration())
			}
			adjusted = append(adjusted, window)
			continue
		}
		adjusted = append(adjusted, occurrence)
	}
	return adjusted
}
