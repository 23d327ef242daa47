package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

// TokenVerifier checks a raw ID token. *oidc.IDTokenVerifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCService verifies ID tokens from the configured issuer and, when a
// client secret is configured, serves the browser login flow.
type OIDCService struct {
	cfg      Config
	verifier TokenVerifier
	oauth    oauth2.Config
	cookies  cookieJar
	verified *gocache.Cache
	now      func() time.Time
}

func NewOIDCService(ctx context.Context, cfg Config) (*OIDCService, error) {
	if cfg.Mode != ModeOIDC {
		return nil, fmt.Errorf("oidc service needs AUTH_MODE=oidc, have %q", cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDC.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover issuer %s: %w", cfg.OIDC.IssuerURL, err)
	}
	svc := newOIDCService(cfg, provider.Verifier(&oidc.Config{ClientID: cfg.OIDC.ClientID}))
	svc.oauth.Endpoint = provider.Endpoint()
	return svc, nil
}

func newOIDCService(cfg Config, verifier TokenVerifier) *OIDCService {
	return &OIDCService{
		cfg:      cfg,
		verifier: verifier,
		oauth: oauth2.Config{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.Scopes,
		},
		cookies:  cookieJar{session: cfg.Session},
		verified: gocache.New(cfg.OIDC.TokenCacheTTL, 10*time.Minute),
		now:      time.Now,
	}
}

// Authenticate accepts a bearer token or the session cookie. Verified
// tokens are remembered until they expire or the cache TTL passes,
// whichever comes first.
func (s *OIDCService) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		raw = s.cookies.get(r, s.cfg.Session.CookieName)
	}
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}

	key := fingerprint(raw)
	if hit, ok := s.verified.Get(key); ok {
		return hit.(Identity), nil
	}

	token, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	identity, err := s.identityFrom(token)
	if err != nil {
		return Identity{}, err
	}
	if ttl := s.cacheTTL(token.Expiry); ttl > 0 {
		s.verified.Set(key, identity, ttl)
	}
	return identity, nil
}

func (s *OIDCService) forget(raw string) {
	s.verified.Delete(fingerprint(raw))
}

func (s *OIDCService) identityFrom(token *oidc.IDToken) (Identity, error) {
	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("decode claims: %w", err)
	}
	email, _ := claims[s.cfg.OIDC.EmailClaim].(string)
	return Identity{
		Subject: token.Subject,
		Email:   email,
		Roles:   rolesClaim(claims[s.cfg.OIDC.RolesClaim]),
	}, nil
}

func (s *OIDCService) cacheTTL(expiry time.Time) time.Duration {
	ttl := s.cfg.OIDC.TokenCacheTTL
	if expiry.IsZero() {
		return ttl
	}
	return min(ttl, expiry.Sub(s.now()))
}

// fingerprint keys the cache without holding raw tokens as map keys.
func fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// rolesClaim accepts a JSON array of strings or a comma separated string.
func rolesClaim(v any) []string {
	var roles []string
	switch typed := v.(type) {
	case []any:
		for _, item := range typed {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	case []string:
		roles = typed
	case string:
		roles = strings.Split(typed, ",")
	default:
		return nil
	}
	return normalizeRoles(roles)
}
