package schedule

import (
	"fmt"
	"time"

	"github.com/example/netlock/internal/recurrence"
)

// Wire records mirror the JSON/YAML shape of schedule documents. The same
// records back the serialized columns of the SQLite store and the schedule
// config files imported by the seed package.

// WindowRecord is the wire form of a recurrence.Window.
type WindowRecord struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window converts the record to its domain form.
func (r WindowRecord) Window() recurrence.Window {
	return recurrence.Window{Start: r.Start, End: r.End}
}

// WindowRecordOf converts a domain window to its wire form.
func WindowRecordOf(w recurrence.Window) WindowRecord {
	return WindowRecord{Start: w.Start, End: w.End}
}

// RecurrenceRecord is the wire form of a recurrence.Rule.
type RecurrenceRecord struct {
	Type       string     `json:"type"`
	Interval   int        `json:"interval,omitempty"`
	DaysOfWeek []string   `json:"daysOfWeek,omitempty"`
	DayOfMonth int        `json:"dayOfMonth,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
}

// Rule converts the record to a validated recurrence rule.
func (r RecurrenceRecord) Rule() (recurrence.Rule, error) {
	days, err := recurrence.ParseWeekdays(r.DaysOfWeek)
	if err != nil {
		return recurrence.Rule{}, err
	}
	interval := r.Interval
	if interval == 0 {
		interval = 1
	}
	rule := recurrence.Rule{
		Kind:       recurrence.Kind(r.Type),
		Interval:   interval,
		Weekdays:   days,
		DayOfMonth: r.DayOfMonth,
		Until:      r.Until,
	}
	if err := rule.Validate(); err != nil {
		return recurrence.Rule{}, err
	}
	return rule, nil
}

// RecurrenceRecordOf converts a rule to its wire form.
func RecurrenceRecordOf(rule recurrence.Rule) RecurrenceRecord {
	return RecurrenceRecord{
		Type:       string(rule.Kind),
		Interval:   rule.Interval,
		DaysOfWeek: recurrence.FormatWeekdays(rule.Weekdays),
		DayOfMonth: rule.DayOfMonth,
		Until:      rule.Until,
	}
}

// ExceptionRecord is the wire form of a recurrence.Exception.
type ExceptionRecord struct {
	Date           string        `json:"date"`
	Reason         string        `json:"reason,omitempty"`
	Skip           bool          `json:"skip,omitempty"`
	OverrideWindow *WindowRecord `json:"overrideWindow,omitempty"`
}

// Exception converts the record to its domain form.
func (r ExceptionRecord) Exception() (recurrence.Exception, error) {
	date, err := recurrence.ParseDate(r.Date)
	if err != nil {
		return recurrence.Exception{}, err
	}
	exception := recurrence.Exception{
		Date:   date,
		Reason: r.Reason,
		Skip:   r.Skip,
	}
	if r.OverrideWindow != nil {
		window := r.OverrideWindow.Window()
		exception.Override = &window
	}
	return exception, nil
}

// ExceptionsOf converts wire exceptions to validated domain exceptions.
func ExceptionsOf(records []ExceptionRecord) ([]recurrence.Exception, error) {
	if len(records) == 0 {
		return nil, nil
	}
	exceptions := make([]recurrence.Exception, 0, len(records))
	for _, record := range records {
		exception, err := record.Exception()
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}
	if err := recurrence.ValidateExceptions(exceptions); err != nil {
		return nil, err
	}
	return exceptions, nil
}

// ExceptionRecordsOf converts domain exceptions to their wire form.
func ExceptionRecordsOf(exceptions []recurrence.Exception) []ExceptionRecord {
	if len(exceptions) == 0 {
		return nil
	}
	records := make([]ExceptionRecord, 0, len(exceptions))
	for _, exception := range exceptions {
		record := ExceptionRecord{
			Date:   exception.Date.String(),
			Reason: exception.Reason,
			Skip:   exception.Skip,
		}
		if exception.Override != nil {
			window := WindowRecordOf(*exception.Override)
			record.OverrideWindow = &window
		}
		records = append(records, record)
	}
	return records
}

// TargetRecord is the wire form of a Target.
type TargetRecord struct {
	Devices []string `json:"devices,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Target converts the record to its domain form.
func (r TargetRecord) Target() Target {
	return Target{
		Devices: append([]string(nil), r.Devices...),
		Tags:    append([]string(nil), r.Tags...),
	}
}

// TargetRecordOf converts a target to its wire form.
func TargetRecordOf(t Target) TargetRecord {
	return TargetRecord{
		Devices: append([]string(nil), t.Devices...),
		Tags:    append([]string(nil), t.Tags...),
	}
}

// ScheduleRecord is the wire form of a DeviceSchedule.
type ScheduleRecord struct {
	ID          string            `json:"id"`
	Scope       string            `json:"scope"`
	OwnerKey    *string           `json:"ownerKey,omitempty"`
	GroupID     *string           `json:"groupId,omitempty"`
	Label       string            `json:"label"`
	Description *string           `json:"description,omitempty"`
	Targets     TargetRecord      `json:"targets"`
	Action      string            `json:"action"`
	EndAction   *string           `json:"endAction,omitempty"`
	Window      WindowRecord      `json:"window"`
	Recurrence  RecurrenceRecord  `json:"recurrence"`
	Exceptions  []ExceptionRecord `json:"exceptions,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

// Schedule converts the record to its domain form. Missing optional fields
// take their documented defaults: enabled true, end action the opposite of
// the start action.
func (r ScheduleRecord) Schedule() (DeviceSchedule, error) {
	rule, err := r.Recurrence.Rule()
	if err != nil {
		return DeviceSchedule{}, err
	}
	exceptions, err := ExceptionsOf(r.Exceptions)
	if err != nil {
		return DeviceSchedule{}, err
	}

	startAction := Action(r.Action)
	if !startAction.Valid() {
		return DeviceSchedule{}, fmt.Errorf("schedule %s: unknown action %q", r.ID, r.Action)
	}
	endAction := startAction.Opposite()
	if r.EndAction != nil {
		endAction = Action(*r.EndAction)
		if !endAction.Valid() {
			return DeviceSchedule{}, fmt.Errorf("schedule %s: unknown end action %q", r.ID, *r.EndAction)
		}
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	out := DeviceSchedule{
		ID:          r.ID,
		Scope:       Scope(r.Scope),
		OwnerKey:    clonePtr(r.OwnerKey),
		Label:       r.Label,
		Description: clonePtr(r.Description),
		Target:      r.Targets.Target(),
		StartAction: startAction,
		EndAction:   endAction,
		Window:      r.Window.Window(),
		Recurrence:  rule,
		Exceptions:  exceptions,
		Enabled:     enabled,
		GroupID:     clonePtr(r.GroupID),
	}
	if r.CreatedAt != nil {
		out.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		out.UpdatedAt = *r.UpdatedAt
	}
	return out, nil
}

// RecordOf converts a schedule to its wire form.
func RecordOf(s DeviceSchedule) ScheduleRecord {
	endAction := string(s.EndAction)
	enabled := s.Enabled
	createdAt := s.CreatedAt
	updatedAt := s.UpdatedAt
	return ScheduleRecord{
		ID:          s.ID,
		Scope:       string(s.Scope),
		OwnerKey:    clonePtr(s.OwnerKey),
		GroupID:     clonePtr(s.GroupID),
		Label:       s.Label,
		Description: clonePtr(s.Description),
		Targets:     TargetRecordOf(s.Target),
		Action:      string(s.StartAction),
		EndAction:   &endAction,
		Window:      WindowRecordOf(s.Window),
		Recurrence:  RecurrenceRecordOf(s.Recurrence),
		Exceptions:  ExceptionRecordsOf(s.Exceptions),
		Enabled:     &enabled,
		CreatedAt:   &createdAt,
		UpdatedAt:   &updatedAt,
	}
}

// MetadataRecord is the wire form of Metadata.
type MetadataRecord struct {
	Timezone    string    `json:"timezone"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// DeviceRecord is the wire form of a known household device.
type DeviceRecord struct {
	MAC      string   `json:"mac"`
	OwnerKey string   `json:"ownerKey,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// DeviceRef converts the record to its domain form, normalizing the MAC and
// owner key.
func (r DeviceRecord) DeviceRef() DeviceRef {
	return DeviceRef{
		MAC:      NormalizeKey(r.MAC),
		OwnerKey: NormalizeKey(r.OwnerKey),
		Tags:     append([]string(nil), r.Tags...),
	}
}

// Document is a complete schedule configuration: metadata, devices, and
// schedules.
type Document struct {
	Metadata  MetadataRecord   `json:"metadata"`
	Devices   []DeviceRecord   `json:"devices,omitempty"`
	Schedules []ScheduleRecord `json:"schedules"`
}
