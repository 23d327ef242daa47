package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORS mirrors the browser policy the spreadsheet plugins were built
// against: any origin, any method, any header, credentials allowed.
// AllowedOrigins narrows the origin set; "*" keeps it open.
type CORS struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var defaultAllowMethods = "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS"

func (c CORS) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed := c.allowOrigin(origin)
		if allowed == "" {
			if isPreflight(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", allowed)
		if c.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", "X-Request-Id")

		if !isPreflight(r) {
			next.ServeHTTP(w, r)
			return
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		h.Set("Access-Control-Allow-Methods", defaultAllowMethods)
		if reqHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		}
		if c.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(int(c.MaxAge.Seconds())))
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin is not allowed. Credentialed responses may not use "*", so the
// request origin is echoed instead.
func (c CORS) allowOrigin(origin string) string {
	for _, o := range c.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			if c.AllowCredentials {
				return origin
			}
			return "*"
		}
		if strings.EqualFold(strings.TrimRight(o, "/"), strings.TrimRight(origin, "/")) {
			return origin
		}
	}
	return ""
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
