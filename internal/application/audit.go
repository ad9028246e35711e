package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/netlock/internal/logging"
	"github.com/example/netlock/internal/persistence"
	"github.com/example/netlock/internal/schedule"
)

// recordAudit appends an audit event. Audit failures are logged, not
// propagated, so they never roll back an already committed mutation.
func recordAudit(ctx context.Context, store persistence.Store, at time.Time, actor, action, subjectType, subjectID string, metadata map[string]string) {
	_, err := store.AppendEvent(ctx, schedule.AuditEvent{
		Timestamp:   at,
		Action:      action,
		Actor:       actor,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Metadata:    metadata,
	})
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("action", action).Msg("audit event dropped")
	}
}

// touchMetadata bumps the generatedAt stamp after a mutation, creating the
// singleton record on first use.
func touchMetadata(ctx context.Context, store persistence.Store, at time.Time) error {
	metadata, err := store.GetMetadata(ctx)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		metadata = schedule.Metadata{Timezone: "UTC"}
	}
	metadata.GeneratedAt = at
	return store.SetMetadata(ctx, metadata)
}
