package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result values recorded on audit events.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AuditEvent represents a registration, submission or authorization decision.
type AuditEvent struct {
	ID        string
	Timestamp time.Time
	EventType string // e.g., "RegisterNgo", "SubmitBatch", "Authorization"
	EntityID  string // caller identity
	Result    string
	Reason    string
	Metadata  map[string]string
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

// ZerologAuditLogger writes audit events as structured log lines.
type ZerologAuditLogger struct {
	logger zerolog.Logger
}

func NewZerologAuditLogger(logger zerolog.Logger) *ZerologAuditLogger {
	return &ZerologAuditLogger{logger: logger.With().Str("component", "audit").Logger()}
}

func (l *ZerologAuditLogger) LogEvent(event AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	lvl := zerolog.InfoLevel
	if event.Result == ResultFailure {
		lvl = zerolog.WarnLevel
	}
	ev := l.logger.WithLevel(lvl).
		Str("audit_id", event.ID).
		Time("at", event.Timestamp).
		Str("event_type", event.EventType).
		Str("entity", event.EntityID).
		Str("result", event.Result)
	if event.Reason != "" {
		ev = ev.Str("reason", event.Reason)
	}
	for k, v := range event.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}

// NopAuditLogger discards events.
type NopAuditLogger struct{}

func (NopAuditLogger) LogEvent(AuditEvent) {}
