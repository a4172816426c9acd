package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "h") }), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,h" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("expected incoming id to be kept, got ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestRequestIDRejectsMalformedHeader(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	for _, bad := range []string{"has space", strings.Repeat("a", maxRequestIDLen+1), "line\nbreak"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen == bad || seen == "" {
			t.Fatalf("expected %q to be replaced, got %q", bad, seen)
		}
	}
}

func TestAccessLevel(t *testing.T) {
	if accessLevel("/healthz", http.StatusOK) != zapcore.DebugLevel {
		t.Fatalf("expected probes at debug")
	}
	if accessLevel("/healthz", http.StatusServiceUnavailable) != zapcore.WarnLevel {
		t.Fatalf("expected failing probes at warn")
	}
	if accessLevel("/api/appointments", http.StatusCreated) != zapcore.InfoLevel {
		t.Fatalf("expected info for regular requests")
	}
}

func TestDecodeJSONRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	cases := map[string]string{
		"unknown":  `{"name":"a","extra":1}`,
		"trailing": `{"name":"a"}{"name":"b"}`,
		"empty":    ``,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if err := DecodeJSON(req, &dst); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Name != "ok" {
		t.Fatalf("expected decode, got %+v err=%v", dst, err)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad input")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"bad input"}` {
		t.Fatalf("unexpected body %s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if call("10.0.0.1") != http.StatusNoContent || call("10.0.0.1") != http.StatusNoContent {
		t.Fatalf("expected burst of 2 to pass")
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusNoContent {
		t.Fatalf("expected other client to pass, got %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After 30, got %q", rec.Header().Get("Retry-After"))
	}
	now = now.Add(30 * time.Second)
	if code := call("10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("expected refill after 30s, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://app.clinica.test"}})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
	req.Header.Set("Origin", "https://app.clinica.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.clinica.test" {
		t.Fatalf("missing allow origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key") {
		t.Fatalf("expected default headers, got %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSSimpleRequests(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://app.clinica.test"}})(next)
	req := httptest.NewRequest(http.MethodGet, "/api/professionals", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for foreign origin")
	}

	h = WithCORS(CORSPolicy{AllowedOrigins: []string{" * "}})(next)
	req.Header.Set("Origin", "https://any.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Expose-Headers") != RequestIDHeader {
		t.Fatalf("expected request id to be exposed")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "" {
		t.Fatalf("preflight headers leaked into a simple request")
	}
}

func TestBodyLimitRefusesDeclaredOversize(t *testing.T) {
	called := false
	h := WithBodyLimit(8)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"paciente":"ana"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge || called {
		t.Fatalf("expected 413 before handler, got %d called=%v", rec.Code, called)
	}
}

func TestTimeoutWritesJSONEnvelope(t *testing.T) {
	h := WithTimeout(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Body.String() != timeoutBody {
		t.Fatalf("unexpected timeout response %q %q", rec.Header().Get("Content-Type"), rec.Body.String())
	}
}

func TestRecoverWritesJSON500(t *testing.T) {
	h := WithRecover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
