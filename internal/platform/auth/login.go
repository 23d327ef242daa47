package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
)

const (
	flowCookieTTL   = 10 * time.Minute
	exchangeTimeout = 10 * time.Second
)

// loginFlow is the state carried between /auth/login and /auth/callback in
// short-lived cookies.
type loginFlow struct {
	State    string
	Verifier string
	Nonce    string
	ReturnTo string
}

var flowCookies = [...]string{
	"plugins_oidc_state",
	"plugins_oidc_verifier",
	"plugins_oidc_nonce",
	"plugins_return_to",
}

func (f loginFlow) values() [len(flowCookies)]string {
	return [...]string{f.State, f.Verifier, f.Nonce, f.ReturnTo}
}

func (j cookieJar) saveFlow(w http.ResponseWriter, f loginFlow) {
	for i, v := range f.values() {
		j.set(w, flowCookies[i], v, flowCookieTTL)
	}
}

func (j cookieJar) loadFlow(r *http.Request) loginFlow {
	return loginFlow{
		State:    j.get(r, flowCookies[0]),
		Verifier: j.get(r, flowCookies[1]),
		Nonce:    j.get(r, flowCookies[2]),
		ReturnTo: localPath(j.get(r, flowCookies[3])),
	}
}

func (j cookieJar) clearFlow(w http.ResponseWriter) {
	for _, name := range flowCookies {
		j.clear(w, name)
	}
}

// LoginHandler starts an authorization code flow with PKCE and a nonce.
func (s *OIDCService) LoginHandler() (http.HandlerFunc, error) {
	if err := s.cfg.loginError(); err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := newLoginFlow(r.URL.Query().Get("return_to"))
		if err != nil {
			authError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		s.cookies.saveFlow(w, flow)

		target := s.oauth.AuthCodeURL(
			flow.State,
			oauth2.AccessTypeOnline,
			oauth2.S256ChallengeOption(flow.Verifier),
			oauth2.SetAuthURLParam("nonce", flow.Nonce),
		)
		http.Redirect(w, r, target, http.StatusFound)
	}, nil
}

func newLoginFlow(returnTo string) (loginFlow, error) {
	state, err := randomToken()
	if err != nil {
		return loginFlow{}, err
	}
	nonce, err := randomToken()
	if err != nil {
		return loginFlow{}, err
	}
	return loginFlow{
		State:    state,
		Verifier: oauth2.GenerateVerifier(),
		Nonce:    nonce,
		ReturnTo: localPath(returnTo),
	}, nil
}

// CallbackHandler finishes the flow and stores the ID token in the session
// cookie.
func (s *OIDCService) CallbackHandler() (http.HandlerFunc, error) {
	if err := s.cfg.loginError(); err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state, code := q.Get("state"), q.Get("code")
		if state == "" || code == "" {
			authError(w, http.StatusBadRequest, "missing_code_or_state")
			return
		}
		flow := s.cookies.loadFlow(r)
		if flow.State == "" || flow.State != state {
			authError(w, http.StatusBadRequest, "invalid_state")
			return
		}
		if flow.Verifier == "" || flow.Nonce == "" {
			authError(w, http.StatusBadRequest, "missing_pkce_or_nonce")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
		defer cancel()
		rawIDToken, reason := s.redeem(ctx, code, flow)
		if reason != "" {
			authError(w, http.StatusUnauthorized, reason)
			return
		}

		s.cookies.set(w, s.cfg.Session.CookieName, rawIDToken, s.cfg.Session.MaxAge)
		s.cookies.clearFlow(w)
		http.Redirect(w, r, flow.ReturnTo, http.StatusFound)
	}, nil
}

// redeem exchanges the code and checks the returned ID token. A non-empty
// reason is the error code for the client.
func (s *OIDCService) redeem(ctx context.Context, code string, flow loginFlow) (string, string) {
	token, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return "", "token_exchange_failed"
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return "", "missing_id_token"
	}
	idToken, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		return "", "invalid_id_token"
	}
	if idToken.Nonce == "" || idToken.Nonce != flow.Nonce {
		return "", "invalid_nonce"
	}
	return raw, ""
}

// LogoutHandler drops the session cookie and its cached verification.
func (s *OIDCService) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := s.cookies.get(r, s.cfg.Session.CookieName); raw != "" {
			s.forget(raw)
		}
		s.cookies.clear(w, s.cfg.Session.CookieName)
		httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SessionHandler reports who the caller is.
func (s *OIDCService) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.Authenticate(r.Context(), r)
		if err != nil {
			authError(w, http.StatusUnauthorized, denyReason(err))
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{
			"subject": identity.Subject,
			"email":   identity.Email,
			"roles":   identity.Roles,
		})
	}
}

func authError(w http.ResponseWriter, status int, code string) {
	httpserver.WriteJSON(w, status, map[string]string{"error": code})
}

func denyReason(err error) string {
	if errors.Is(err, ErrUnauthenticated) {
		return "unauthorized"
	}
	return "invalid_token"
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// localPath keeps post-login redirects on this origin.
func localPath(raw string) string {
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return u.Path
}

// cookieJar writes HttpOnly cookies with the session's security attributes.
type cookieJar struct {
	session SessionConfig
}

func (j cookieJar) get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (j cookieJar) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = flowCookieTTL
	}
	http.SetCookie(w, j.cookie(name, value, int(ttl.Seconds())))
}

func (j cookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, j.cookie(name, "", -1))
}

func (j cookieJar) cookie(name, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch strings.ToLower(strings.TrimSpace(j.session.SameSite)) {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.session.Secure,
		SameSite: sameSite,
	}
}
