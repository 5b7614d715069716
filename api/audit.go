package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/linkgate/linkgate/internal/uuid"
)

// AuditEvent identifies the type of lifecycle action being logged.
type AuditEvent string

const (
	AuditSessionCreated    AuditEvent = "session_created"
	AuditSessionVerified   AuditEvent = "session_verified"
	AuditVerifyRejected    AuditEvent = "verify_rejected"
	AuditKeyFetched        AuditEvent = "key_fetched"
	AuditKeyChecked        AuditEvent = "key_checked"
	AuditKeyCheckRejected  AuditEvent = "key_check_rejected"
	AuditShortenerFallback AuditEvent = "shortener_fallback"
	AuditStoreFailure      AuditEvent = "store_failure"
)

// auditLogger wraps slog.Logger for structured audit logging of the four
// lifecycle operations.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit entry. Tokens and keys never appear in
// attrs — only event metadata and client addresses.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("event_id", uuid.New()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

func errAttr(err error) slog.Attr {
	return slog.String("error", err.Error())
}
