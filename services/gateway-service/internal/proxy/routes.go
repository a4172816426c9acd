// Package proxy routes public API prefixes to the backing services.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Route forwards every request under Prefix to Upstream.
type Route struct {
	Prefix   string
	Upstream string
}

type Upstreams struct {
	Agenda       string
	Payment      string
	Notification string
}

// Routes is the public surface. Webhook paths carry their own signature
// checks and pass through untouched.
func Routes(u Upstreams) []Route {
	return []Route{
		{Prefix: "/api/agenda-slots", Upstream: u.Agenda},
		{Prefix: "/api/professionals", Upstream: u.Agenda},
		{Prefix: "/api/appointments", Upstream: u.Agenda},
		{Prefix: "/api/payments", Upstream: u.Payment},
		{Prefix: "/api/notifications", Upstream: u.Notification},
	}
}

// Register mounts one reverse proxy per upstream on mux.
func Register(mux *http.ServeMux, routes []Route, logger *zap.Logger) error {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	proxies := map[string]*httputil.ReverseProxy{}
	for _, rt := range routes {
		p, ok := proxies[rt.Upstream]
		if !ok {
			target, err := url.Parse(rt.Upstream)
			if err != nil || target.Scheme == "" || target.Host == "" {
				return fmt.Errorf("upstream for %s: invalid url %q", rt.Prefix, rt.Upstream)
			}
			p = httputil.NewSingleHostReverseProxy(target)
			p.Transport = transport
			p.ErrorHandler = errorHandler(logger.With(zap.String("upstream", target.Host)))
			proxies[rt.Upstream] = p
		}
		prefix := strings.TrimSuffix(rt.Prefix, "/")
		mux.Handle(prefix, p)
		mux.Handle(prefix+"/", p)
	}
	return nil
}

func errorHandler(logger *zap.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("upstream request failed", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}
}
