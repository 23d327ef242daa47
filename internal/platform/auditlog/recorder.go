package auditlog

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/univer-labs/plugins-api/internal/platform/auth"
	"github.com/univer-labs/plugins-api/internal/platform/requestid"
)

// Appender persists audit events.
type Appender interface {
	Append(ctx context.Context, event Event) (int64, error)
}

// DBAppender writes events through Insert.
type DBAppender struct {
	DB *sql.DB
}

func (a DBAppender) Append(ctx context.Context, event Event) (int64, error) {
	return Insert(ctx, a.DB, event)
}

// Recorder turns API activity into audit events. A nil Recorder, or one
// without an Appender, records nothing. Failures are logged and never
// returned to the request path.
type Recorder struct {
	appender Appender
	logger   *slog.Logger
	service  string
	now      func() time.Time
}

func NewRecorder(appender Appender, logger *slog.Logger, service string) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{appender: appender, logger: logger, service: service, now: time.Now}
}

// Record appends an event for a request that changed a resource.
func (r *Recorder) Record(req *http.Request, action, resourceType, resourceID string, payload map[string]any) {
	if r == nil || r.appender == nil {
		return
	}
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(req.Context()); ok {
		actor = identity.Actor()
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["service"] = r.service
	payload["request_path"] = req.URL.Path

	rid := requestid.FromRequest(req)
	_, err := r.appender.Append(req.Context(), Event{
		OccurredAt:   r.now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    rid,
		IP:           remoteIP(req.RemoteAddr),
		UserAgent:    req.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		r.logger.WarnContext(req.Context(), "audit append failed", "action", action, "resource_id", resourceID, "request_id", rid, "error", err)
	}
}

// AuthDeny records a request rejected by the auth middleware.
func (r *Recorder) AuthDeny(ctx context.Context, event auth.DenyEvent) error {
	if r == nil || r.appender == nil {
		return nil
	}
	actor := "anonymous"
	if s := strings.TrimSpace(event.Subject); s != "" {
		actor = s
	}
	_, err := r.appender.Append(ctx, Event{
		OccurredAt:   event.Time,
		Actor:        actor,
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: "http",
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		IP:           remoteIP(event.RemoteAddr),
		UserAgent:    event.UserAgent,
		Payload: map[string]any{
			"service": r.service,
			"status":  event.Status,
			"reason":  event.Reason,
			"error":   event.Error,
			"subject": event.Subject,
			"email":   event.Email,
			"roles":   event.Roles,
		},
	})
	return err
}

func remoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
