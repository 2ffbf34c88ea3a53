// Package audit records security-relevant operations (sharing, revocation,
// rollback, deletion) as structured log entries.
package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time
	Action       string
	Actor        string // acting user's public id
	ResourceType string
	ResourceID   string
	IPAddress    string
	Outcome      string // "success" or "failure"
	Details      map[string]string
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	event := l.logger.Info().
		Time("timestamp", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("outcome", entry.Outcome)
	if entry.ResourceType != "" {
		event = event.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		event = event.Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		event = event.Str("ip_address", entry.IPAddress)
	}
	for key, value := range entry.Details {
		event = event.Str(key, value)
	}
	event.Msg("audit")
}

func (l *Logger) Success(action, actor, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Outcome:      "success",
		Details:      details,
	})
}

func (l *Logger) Failure(action, actor, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Outcome:      "failure",
		Details:      details,
	})
}

// ClientIP resolves the client address from RemoteAddr. Forwarding headers
// are client-controlled and are never trusted, matching the rate limiter's
// keying.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type contextKey string

const auditLoggerKey contextKey = "auditLogger"

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext retrieves the audit logger from the context, falling back to a
// no-op logger so call sites never nil-check.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(zerolog.Nop())
}
