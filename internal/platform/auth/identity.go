// Package auth authenticates callers of the mutating API routes: a fixed
// identity in dev mode, OIDC bearer or session tokens otherwise.
package auth

import (
	"context"
	"errors"
	"net/http"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// Actor is the name recorded in audit events.
func (i Identity) Actor() string {
	if i.Subject != "" {
		return i.Subject
	}
	return "anonymous"
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// DevAuthenticator trusts every request as the configured identity.
type DevAuthenticator struct {
	identity Identity
}

func NewDevAuthenticator(dev DevConfig) *DevAuthenticator {
	return &DevAuthenticator{identity: Identity(dev)}
}

func (a *DevAuthenticator) Authenticate(context.Context, *http.Request) (Identity, error) {
	return a.identity, nil
}
