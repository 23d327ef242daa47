package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/univer-labs/plugins-api/internal/platform/env"
)

type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeDev      Mode = "dev"
	ModeOIDC     Mode = "oidc"
)

var modes = []Mode{ModeDisabled, ModeDev, ModeOIDC}

// ParseMode maps an AUTH_MODE value to a Mode. Empty means disabled.
func ParseMode(raw string) (Mode, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ModeDisabled, nil
	}
	if m := Mode(raw); slices.Contains(modes, m) {
		return m, nil
	}
	return "", fmt.Errorf("AUTH_MODE %q is not one of disabled, dev, oidc", raw)
}

// SessionConfig shapes the cookie that carries the ID token after a
// browser login.
type SessionConfig struct {
	CookieName string
	Secure     bool
	MaxAge     time.Duration
	SameSite   string
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	RolesClaim string
	EmailClaim string

	// TokenCacheTTL bounds how long a verified token is trusted without
	// re-verification. Tokens expiring sooner are cached until expiry.
	TokenCacheTTL time.Duration
}

// DevConfig is the fixed identity used when AUTH_MODE=dev.
type DevConfig struct {
	Subject string
	Email   string
	Roles   []string
}

type Config struct {
	Mode    Mode
	Session SessionConfig
	OIDC    OIDCConfig
	Dev     DevConfig
}

var defaultScopes = []string{"openid", "profile", "email"}

// ConfigFromEnv reads the auth settings. Authentication is off unless
// AUTH_MODE says otherwise.
func ConfigFromEnv() (Config, error) {
	mode, err := ParseMode(env.String("AUTH_MODE", ""))
	if err != nil {
		return Config{}, err
	}

	secure, err := env.Bool("AUTH_SESSION_COOKIE_SECURE", true)
	if err != nil {
		return Config{}, err
	}
	maxAge, err := env.Int("AUTH_SESSION_MAX_AGE_SECONDS", 3600)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := env.Duration("AUTH_TOKEN_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	scopes := strings.Fields(env.String("OIDC_SCOPES", ""))
	if len(scopes) == 0 {
		scopes = slices.Clone(defaultScopes)
	}

	cfg := Config{
		Mode: mode,
		Session: SessionConfig{
			CookieName: env.Trimmed("AUTH_SESSION_COOKIE_NAME", "plugins_session"),
			Secure:     secure,
			MaxAge:     time.Duration(maxAge) * time.Second,
			SameSite:   env.Trimmed("AUTH_SESSION_COOKIE_SAMESITE", "Lax"),
		},
		OIDC: OIDCConfig{
			IssuerURL:     env.Trimmed("OIDC_ISSUER_URL", ""),
			ClientID:      env.Trimmed("OIDC_CLIENT_ID", ""),
			ClientSecret:  strings.TrimSpace(env.String("OIDC_CLIENT_SECRET", "")),
			RedirectURL:   env.Trimmed("OIDC_REDIRECT_URL", ""),
			Scopes:        scopes,
			RolesClaim:    env.Trimmed("AUTH_ROLES_CLAIM", "roles"),
			EmailClaim:    env.Trimmed("AUTH_EMAIL_CLAIM", "email"),
			TokenCacheTTL: cacheTTL,
		},
		Dev: DevConfig{
			Subject: env.Trimmed("DEV_AUTH_SUBJECT", "dev-user"),
			Email:   env.Trimmed("DEV_AUTH_EMAIL", "dev-user@example.local"),
			Roles:   normalizeRoles(env.CSV("DEV_AUTH_ROLES", []string{RoleEditor})),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every setting the selected mode is missing.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDisabled:
		return nil
	case ModeDev:
		if c.Dev.Subject == "" {
			errs = append(errs, errors.New("dev mode: DEV_AUTH_SUBJECT is empty"))
		}
		if len(c.Dev.Roles) == 0 {
			errs = append(errs, errors.New("dev mode: DEV_AUTH_ROLES is empty"))
		}
	case ModeOIDC:
		o := c.OIDC
		if o.IssuerURL == "" {
			errs = append(errs, errors.New("oidc mode: OIDC_ISSUER_URL is empty"))
		}
		if o.ClientID == "" {
			errs = append(errs, errors.New("oidc mode: OIDC_CLIENT_ID is empty"))
		}
		if o.RolesClaim == "" || o.EmailClaim == "" {
			errs = append(errs, errors.New("oidc mode: AUTH_ROLES_CLAIM and AUTH_EMAIL_CLAIM must be set"))
		}
		if o.TokenCacheTTL < 0 {
			errs = append(errs, errors.New("oidc mode: AUTH_TOKEN_CACHE_TTL is negative"))
		}
		if c.Session.CookieName == "" {
			errs = append(errs, errors.New("oidc mode: AUTH_SESSION_COOKIE_NAME is empty"))
		}
		if c.Session.MaxAge <= 0 {
			errs = append(errs, errors.New("oidc mode: AUTH_SESSION_MAX_AGE_SECONDS must be positive"))
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Mode)
	}
	return errors.Join(errs...)
}

// loginError explains why the browser login routes cannot be served.
func (c Config) loginError() error {
	if c.Mode != ModeOIDC {
		return fmt.Errorf("browser login needs AUTH_MODE=oidc, have %q", c.Mode)
	}
	var errs []error
	if c.OIDC.ClientSecret == "" {
		errs = append(errs, errors.New("browser login: OIDC_CLIENT_SECRET is empty"))
	}
	if c.OIDC.RedirectURL == "" {
		errs = append(errs, errors.New("browser login: OIDC_REDIRECT_URL is empty"))
	}
	return errors.Join(errs...)
}

// LoginEnabled reports whether the browser login endpoints can be mounted.
func (c Config) LoginEnabled() bool {
	return c.loginError() == nil
}

// normalizeRoles lowercases, trims and dedupes roles, keeping first-seen order.
func normalizeRoles(in []string) []string {
	out := make([]string, 0, len(in))
	for _, role := range in {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}
