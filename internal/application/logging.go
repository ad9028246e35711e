package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/netlock/internal/logging"
)

// serviceLogger derives an operation-scoped logger from the context.
func serviceLogger(ctx context.Context, serviceName, operation string) zerolog.Logger {
	logger := logging.FromContext(ctx)
	return logger.With().
		Str("service", serviceName).
		Str("operation", operation).
		Logger()
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, ErrGroupNotFound):
		return "group_not_found"
	case errors.Is(err, ErrScheduleNotInGroup):
		return "schedule_not_in_group"
	case errors.Is(err, ErrEmptyMembership):
		return "empty_membership"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
