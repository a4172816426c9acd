package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/clinicaflow/clinica/libs/httpx"
	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewBaseMuxWithReady returns a mux serving /healthz and /readyz. Checks
// without a func are skipped so optional dependencies can be passed
// unconditionally.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		report := probe(r.Context(), checks)
		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, report)
	})
	return mux
}

// probe runs every check in parallel, each under its own timeout.
func probe(ctx context.Context, checks []ReadyCheck) readyReport {
	results := make([]string, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		if c.Check == nil {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
			defer cancel()
			if err := c.Check(cctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	report := readyReport{Status: "ok", Checks: map[string]string{}}
	for i, c := range checks {
		if c.Check == nil {
			continue
		}
		name := c.Name
		if name == "" {
			name = "dependency"
		}
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			report.Status = "unavailable"
		}
	}
	return report
}
