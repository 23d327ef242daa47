package requestid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

type ctxKey struct{}

// New returns a random request id (a UUIDv4 without dashes).
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok
}

// FromRequest prefers the id stored in the request context and falls back to
// the inbound header.
func FromRequest(r *http.Request) string {
	if id, ok := FromContext(r.Context()); ok && id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(Header))
}
