// Package audit holds the AuditSink implementations wired by the service.
package audit

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

// LogSink writes audit events as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger.With("component", "audit")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(ctx context.Context, e domain.AuditEvent) error {
	level := slog.LevelInfo
	if e.Level == domain.LevelWarn {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("action", string(e.Action)),
		slog.String("user_id", e.UserID),
		slog.String("method", string(e.Details.Method)),
		slog.Time("occurred_at", e.OccurredAt),
	}
	if e.Details.RemainingBackupCodes != nil {
		attrs = append(attrs, slog.Int("remaining_backup_codes", *e.Details.RemainingBackupCodes))
	}
	if e.Meta.IP != "" {
		attrs = append(attrs, slog.String("ip", e.Meta.IP))
	}
	if e.Meta.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", e.Meta.UserAgent))
	}

	s.Logger.LogAttrs(ctx, level, "audit_event", attrs...)
	return nil
}
