package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func upstream(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.RequestURI())
	}))
}

func TestRegisterRoutesByPrefix(t *testing.T) {
	agenda, payment, notification := upstream("agenda"), upstream("payment"), upstream("notification")
	defer agenda.Close()
	defer payment.Close()
	defer notification.Close()

	mux := http.NewServeMux()
	u := Upstreams{Agenda: agenda.URL, Payment: payment.URL, Notification: notification.URL}
	if err := Register(mux, Routes(u), zap.NewNop()); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := map[string]string{
		"/api/agenda-slots/pro-1?data=2026-03-10":      "agenda /api/agenda-slots/pro-1?data=2026-03-10",
		"/api/appointments":                            "agenda /api/appointments",
		"/api/professionals/pro-1/exceptions":          "agenda /api/professionals/pro-1/exceptions",
		"/api/payments/webhooks/mercadopago?data.id=1": "payment /api/payments/webhooks/mercadopago?data.id=1",
		"/api/notifications/appointments/appt-1":       "notification /api/notifications/appointments/appt-1",
	}
	for target, want := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("%s: got %d %q, want %q", target, rec.Code, rec.Body.String(), want)
		}
	}
}

func TestUnavailableUpstreamIsBadGateway(t *testing.T) {
	dead := upstream("dead")
	dead.Close()

	mux := http.NewServeMux()
	if err := Register(mux, []Route{{Prefix: "/api/payments", Upstream: dead.URL}}, zap.NewNop()); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments", nil))
	if rec.Code != http.StatusBadGateway || rec.Body.String() != `{"error":"upstream unavailable"}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterRejectsBadUpstream(t *testing.T) {
	if err := Register(http.NewServeMux(), []Route{{Prefix: "/api/x", Upstream: "not a url"}}, zap.NewNop()); err == nil {
		t.Fatalf("expected error")
	}
}
