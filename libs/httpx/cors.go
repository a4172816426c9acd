package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call the API. "*" matches
// any origin; with credentials enabled the request origin is echoed back.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", RequestIDHeader, "Idempotency-Key"}
)

type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	preflight   http.Header
	exposed     string
}

func compileCORS(p CORSPolicy) (corsRules, bool) {
	rules := corsRules{origins: map[string]struct{}{}, credentials: p.AllowCredentials}
	for _, o := range trimmed(p.AllowedOrigins) {
		if o == "*" {
			rules.anyOrigin = true
			continue
		}
		rules.origins[strings.ToLower(o)] = struct{}{}
	}
	if !rules.anyOrigin && len(rules.origins) == 0 {
		return rules, false
	}

	methods, headers := trimmed(p.AllowedMethods), trimmed(p.AllowedHeaders)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	rules.preflight = http.Header{}
	rules.preflight.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	rules.preflight.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.preflight.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}
	rules.exposed = RequestIDHeader
	return rules, true
}

func (c corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !c.anyOrigin {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

// WithCORS answers preflights and decorates responses for allowed origins.
// A policy without origins yields a pass-through middleware.
func WithCORS(p CORSPolicy) Middleware {
	rules, enabled := compileCORS(p)
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				for k, v := range rules.preflight {
					h[k] = v
				}
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.Set("Access-Control-Expose-Headers", rules.exposed)
			next.ServeHTTP(w, r)
		})
	}
}

func trimmed(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
