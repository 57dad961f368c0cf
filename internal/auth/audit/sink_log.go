package audit

import (
	"context"
	"log/slog"
)

// LogSink writes every entry as a structured log line. It is the fallback when no
// durable sink is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, e Entry) error {
	level := slog.LevelInfo
	if e.Action == ActionLoginFailure || e.Action == ActionSuspiciousLoginNewIP || e.Action == ActionSuspiciousLoginNewUserAgent {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "audit.entry",
		"entry_id", e.ID,
		"action", string(e.Action),
		"identity_id", e.IdentityID,
		"session_id", e.SessionID,
		"ip", e.IP,
		"metadata", e.Metadata,
		"created_at", e.CreatedAt,
	)
	return nil
}
