// Package seed imports schedule configuration documents from YAML files and
// keeps the store in sync when the file changes.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// Mode selects how a sync treats schedules already in the store.
type Mode string

const (
	// ModeMerge inserts documents records whose ids are not present yet.
	ModeMerge Mode = "merge"
	// ModeReplace drops every stored schedule and loads the document.
	ModeReplace Mode = "replace"
)

// ParseMode validates a mode string.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("seed: unknown sync mode %q", value)
	}
}

// Importer loads schedule documents and applies them to a store.
type Importer struct {
	store       persistence.Store
	logger      zerolog.Logger
	idGenerator func() string
	now         func() time.Time
	onSync      func(schedule.Document)
}

// NewImporter wires dependencies for document import.
func NewImporter(store persistence.Store, logger zerolog.Logger, idGenerator func() string, now func() time.Time) *Importer {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &Importer{
		store:       store,
		logger:      logger,
		idGenerator: idGenerator,
		now:         now,
	}
}

// OnSync registers a callback invoked with the document after every
// successful sync, including re-syncs triggered by the watcher. Consumers use
// it to refresh state derived from the document, such as the device
// inventory.
func (i *Importer) OnSync(fn func(schedule.Document)) {
	i.onSync = fn
}

// LoadFile reads and decodes a YAML schedule document. The YAML is decoded
// generically and re-marshalled through JSON so the wire records' json tags
// apply to both encodings.
func LoadFile(path string) (schedule.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schedule.Document{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses a YAML schedule document.
func Decode(raw []byte) (schedule.Document, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return schedule.Document{}, fmt.Errorf("seed: parse yaml: %w", err)
	}
	buf, err := json.Marshal(generic)
	if err != nil {
		return schedule.Document{}, fmt.Errorf("seed: convert document: %w", err)
	}
	var doc schedule.Document
	decoder := json.NewDecoder(bytes.NewReader(buf))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return schedule.Document{}, fmt.Errorf("seed: decode document: %w", err)
	}
	return doc, nil
}

// Sync applies a document to the store. Every record is validated before any
// write happens, so a bad document never leaves the store half-loaded.
func (i *Importer) Sync(ctx context.Context, doc schedule.Document, mode Mode) error {
	if i == nil {
		return fmt.Errorf("seed: importer is nil")
	}

	now := i.now()
	schedules := make([]schedule.DeviceSchedule, 0, len(doc.Schedules))
	for index, record := range doc.Schedules {
		sched, err := record.Schedule()
		if err != nil {
			return fmt.Errorf("seed: schedule %d: %w", index, err)
		}
		if sched.ID == "" {
			sched.ID = i.idGenerator()
		}
		if sched.CreatedAt.IsZero() {
			sched.CreatedAt = now
		}
		if sched.UpdatedAt.IsZero() {
			sched.UpdatedAt = now
		}
		if err := sched.Validate(); err != nil {
			return fmt.Errorf("seed: schedule %d: %w", index, err)
		}
		schedules = append(schedules, sched)
	}

	if mode == ModeReplace {
		existing, err := i.store.ListSchedules(ctx, persistence.ScheduleFilter{})
		if err != nil {
			return fmt.Errorf("seed: list schedules: %w", err)
		}
		for _, victim := range existing {
			if err := i.clearGroupActive(ctx, victim, now); err != nil {
				return err
			}
			if err := i.store.DeleteSchedule(ctx, victim.ID); err != nil {
				return fmt.Errorf("seed: delete schedule %s: %w", victim.ID, err)
			}
		}
	}

	created := 0
	for _, sched := range schedules {
		err := i.store.CreateSchedule(ctx, sched)
		if errors.Is(err, persistence.ErrDuplicate) {
			// Merge keeps the stored version of known ids.
			continue
		}
		if err != nil {
			return fmt.Errorf("seed: create schedule %s: %w", sched.ID, err)
		}
		created++
	}

	timezone := doc.Metadata.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if err := i.store.SetMetadata(ctx, schedule.Metadata{Timezone: timezone, GeneratedAt: now}); err != nil {
		return fmt.Errorf("seed: set metadata: %w", err)
	}

	i.logger.Info().
		Int("documents", len(doc.Schedules)).
		Int("created", created).
		Str("mode", string(mode)).
		Msg("schedule document synced")

	if i.onSync != nil {
		i.onSync(doc)
	}
	return nil
}

// SyncFile loads the document at path and applies it.
func (i *Importer) SyncFile(ctx context.Context, path string, mode Mode) error {
	doc, err := LoadFile(path)
	if err != nil {
		return err
	}
	return i.Sync(ctx, doc, mode)
}

func (i *Importer) clearGroupActive(ctx context.Context, sched schedule.DeviceSchedule, now time.Time) error {
	if sched.GroupID == nil {
		return nil
	}
	group, err := i.store.GetGroup(ctx, *sched.GroupID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("seed: load group %s: %w", *sched.GroupID, err)
	}
	if group.ActiveScheduleID != nil && *group.ActiveScheduleID == sched.ID {
		group.ActiveScheduleID = nil
		group.UpdatedAt = now
		if err := i.store.UpdateGroup(ctx, group); err != nil {
			return fmt.Errorf("seed: update group %s: %w", group.ID, err)
		}
	}
	return nil
}
