package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
	"github.com/univer-labs/plugins-api/internal/platform/requestid"
)

// DenyEvent describes a rejected request for the audit trail.
type DenyEvent struct {
	Time       time.Time
	Status     int
	Reason     string
	Error      string
	RequestID  string
	Method     string
	Path       string
	Subject    string
	Email      string
	Roles      []string
	RemoteAddr string
	UserAgent  string
}

type AuditFunc func(ctx context.Context, event DenyEvent) error

// Middleware authenticates requests that change state. Read-only methods
// pass through untouched, as do paths under SkipPrefixes.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Authorize     AuthorizeFunc
	Audit         AuditFunc
	// ProtectReads also requires an identity for GET, HEAD and OPTIONS.
	ProtectReads bool
	SkipPrefixes []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	if m.Authenticator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		identity, ev, ok := m.admit(r)
		if !ok {
			m.deny(w, r, ev)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) exempt(r *http.Request) bool {
	if !m.ProtectReads && IsReadOnly(r.Method) {
		return true
	}
	for _, prefix := range m.SkipPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// admit returns the caller's identity, or the event describing why the
// request was turned away.
func (m Middleware) admit(r *http.Request) (Identity, DenyEvent, bool) {
	identity, err := m.Authenticator.Authenticate(r.Context(), r)
	if err != nil {
		return Identity{}, newDenyEvent(r, Identity{}, http.StatusUnauthorized, denyReason(err), err), false
	}
	if m.Authorize == nil {
		return identity, DenyEvent{}, true
	}
	if err := m.Authorize(r, identity); err != nil {
		return Identity{}, newDenyEvent(r, identity, http.StatusForbidden, "forbidden", err), false
	}
	return identity, DenyEvent{}, true
}

func newDenyEvent(r *http.Request, identity Identity, status int, reason string, err error) DenyEvent {
	return DenyEvent{
		Time:       time.Now().UTC(),
		Status:     status,
		Reason:     reason,
		Error:      err.Error(),
		RequestID:  requestid.FromRequest(r),
		Method:     r.Method,
		Path:       r.URL.Path,
		Subject:    identity.Subject,
		Email:      identity.Email,
		Roles:      identity.Roles,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, ev DenyEvent) {
	if m.Logger != nil {
		attrs := []slog.Attr{
			slog.String("reason", ev.Reason),
			slog.Int("status", ev.Status),
			slog.String("request_id", ev.RequestID),
			slog.String("method", ev.Method),
			slog.String("path", ev.Path),
			slog.String("error", ev.Error),
		}
		if ev.Subject != "" {
			attrs = append(attrs, slog.String("subject", ev.Subject))
		}
		m.Logger.LogAttrs(r.Context(), slog.LevelWarn, "request denied", attrs...)
	}
	if m.Audit != nil {
		if err := m.Audit(r.Context(), ev); err != nil && m.Logger != nil {
			m.Logger.Warn("deny audit failed", "request_id", ev.RequestID, "error", err)
		}
	}
	httpserver.WriteJSON(w, ev.Status, map[string]string{
		"error":      ev.Reason,
		"request_id": ev.RequestID,
	})
}
