package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Logger wraps a Log implementation so that append failures never
// propagate: on error it logs locally via slog, and Record returns
// nothing to the caller.
type Logger struct {
	backend Log
	log     *slog.Logger
}

func NewLogger(backend Log, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{backend: backend, log: log}
}

// Record fills in ID/IP sanitization/CreatedAt and appends through the
// backend, swallowing write errors.
func (l *Logger) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.IPAddress = sanitizeIP(e.IPAddress)

	if err := l.backend.Append(ctx, &e); err != nil {
		l.log.Error("audit_append_failed",
			"event_type", e.EventType,
			"user_id", e.UserID,
			"session_id", e.SessionID,
			"error", err,
		)
	}
}

func (l *Logger) FindByUser(ctx context.Context, userID string, limit int) ([]*Event, error) {
	return l.backend.FindByUser(ctx, userID, limit)
}

func (l *Logger) FindBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	return l.backend.FindBySession(ctx, sessionID, limit)
}

func (l *Logger) FindByType(ctx context.Context, eventType EventType, limit int) ([]*Event, error) {
	return l.backend.FindByType(ctx, eventType, limit)
}

func (l *Logger) FindBySeverityInWindow(ctx context.Context, minSeverity Severity, windowSeconds, limit int) ([]*Event, error) {
	return l.backend.FindBySeverityInWindow(ctx, minSeverity, windowSeconds, limit)
}

func (l *Logger) Recent(ctx context.Context, limit int) ([]*Event, error) {
	return l.backend.Recent(ctx, limit)
}

// VerifyChain delegates straight to the backend: unlike Record, a failed
// verification is exactly the caller's business, not something to
// swallow.
func (l *Logger) VerifyChain(ctx context.Context) error {
	return l.backend.VerifyChain(ctx)
}
