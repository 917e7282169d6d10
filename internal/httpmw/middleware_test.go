package httpmw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/clubdesk-web/internal/log"
)

// spyLogger records Info and Error calls
type spyLogger struct {
	log.Logger
	mu    sync.Mutex
	infos []spyEntry
	errs  []spyEntry
	with  []any
}

type spyEntry struct {
	msg string
	err error
	kv  []any
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(kv ...any) log.Logger {
	s.mu.Lock()
	s.with = append(s.with, kv...)
	s.mu.Unlock()
	return s
}

func (s *spyLogger) Info(_ context.Context, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, spyEntry{msg: msg, kv: kv})
}

func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, spyEntry{msg: msg, err: err, kv: kv})
}

func kvValue(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// request id

func TestRequestIDContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("bare context id = %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("empty id stored: %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "abc")); got != "abc" {
		t.Fatalf("id = %q", got)
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var ctxID string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if u, err := uuid.Parse(ctxID); err != nil || u.Version() != 7 {
		t.Fatalf("generated id %q, want a v7 uuid", ctxID)
	}
	if rec.Header().Get("X-Request-Id") != ctxID {
		t.Fatal("response header should echo the context id")
	}
}

func TestRequestID_Inbound(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"well formed", "req-1.a_B", true},
		{"max length", strings.Repeat("a", 64), true},
		{"too long", strings.Repeat("a", 65), false},
		{"spaces", "a b", false},
		{"header injection", "a\r\nSet-Cookie: x", false},
		{"unicode", "ïd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RequestID("X-Request-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest("GET", "/", http.NoBody)
			req.Header["X-Request-Id"] = []string{tt.inbound}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.keep && got != tt.inbound {
				t.Fatalf("id = %q, want inbound kept", got)
			}
			if _, err := uuid.Parse(got); !tt.keep && (got == tt.inbound || err != nil) {
				t.Fatalf("id = %q, want a fresh one", got)
			}
		})
	}
}

// recover

func TestRecover_PanicBecomes500(t *testing.T) {
	spy := newSpyLogger()
	panics := 0
	h := Recover(spy, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/contact", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("onPanic called %d times", panics)
	}
	if len(spy.errs) != 1 {
		t.Fatalf("logged %d errors", len(spy.errs))
	}
	e := spy.errs[0]
	if !strings.Contains(e.err.Error(), "kaboom") {
		t.Errorf("err = %v", e.err)
	}
	if p, _ := kvValue(e.kv, "url.path"); p != "/api/contact" {
		t.Errorf("url.path = %v", p)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("500 should not be cached")
	}
}

func TestRecover_ErrorValueKept(t *testing.T) {
	spy := newSpyLogger()
	sentinel := errors.New("typed")
	h := Recover(spy, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(sentinel) }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if len(spy.errs) != 1 || !errors.Is(spy.errs[0].err, sentinel) {
		t.Fatalf("errs = %+v", spy.errs)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))
}

func TestRecover_NoPanicPassesThrough(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
}

// max body

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("12345678")))
	if readErr != nil {
		t.Fatalf("body at the limit failed: %v", readErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("123456789")))
	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Fatalf("err = %v, want MaxBytesError", readErr)
	}
}

// chain

func TestChain_OrderAndNil(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "h") }),
		mk("a"), nil, mk("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if got := strings.Join(order, ","); got != "a,b,h" {
		t.Fatalf("order = %s", got)
	}
}

// security headers

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	h := rec.Header()
	for _, k := range []string{
		"Strict-Transport-Security", "Content-Security-Policy", "X-Content-Type-Options",
		"X-Frame-Options", "Referrer-Policy", "Permissions-Policy", "Cross-Origin-Opener-Policy",
	} {
		if h.Get(k) == "" {
			t.Errorf("missing %s", k)
		}
	}
	if csp := h.Get("Content-Security-Policy"); !strings.Contains(csp, "script-src 'self';") {
		t.Errorf("default csp should be same-origin only: %s", csp)
	}
}

func TestSecurityHeadersWithOrigins(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersWithOrigins("https://plausible.io", " ")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'self' https://plausible.io;") {
		t.Errorf("script-src missing origin: %s", csp)
	}
	if !strings.Contains(csp, "connect-src 'self' https://plausible.io;") {
		t.Errorf("connect-src missing origin: %s", csp)
	}
	if strings.Contains(csp, "'self'  ") {
		t.Errorf("blank origin leaked into csp: %s", csp)
	}
}

// catalog headers

type fakeCatalog struct{ version, hash string }

func (f fakeCatalog) CatalogVersion() string { return f.version }
func (f fakeCatalog) CatalogHash() string    { return f.hash }

func TestCatalogHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	CatalogHeaders(fakeCatalog{version: "embedded", hash: "0123456789abcdef0123"})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if got := rec.Header().Get("X-Messages-Version"); got != "embedded" {
		t.Errorf("version = %q", got)
	}
	if got := rec.Header().Get("X-Messages-Hash"); got != "0123456789ab" {
		t.Errorf("hash = %q, want 12 chars", got)
	}
}

func TestCatalogHeaders_NilAndEmpty(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(204) })
	rec := httptest.NewRecorder()
	CatalogHeaders(nil)(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))
	if rec.Code != 204 {
		t.Fatalf("nil info should pass through, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	CatalogHeaders(fakeCatalog{})(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))
	if rec.Header().Get("X-Messages-Version") != "" || rec.Header().Get("X-Messages-Hash") != "" {
		t.Fatal("empty values should not set headers")
	}
}

// trace id header

func TestTraceIDHeader(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	for _, sampled := range []bool{true, false} {
		cfg := trace.SpanContextConfig{TraceID: tid, SpanID: sid}
		if sampled {
			cfg.TraceFlags = trace.FlagsSampled
		}
		req := httptest.NewRequest("GET", "/", http.NoBody)
		req = req.WithContext(trace.ContextWithSpanContext(req.Context(), trace.NewSpanContext(cfg)))

		rec := httptest.NewRecorder()
		TraceIDHeader("")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

		got := rec.Header().Get("X-Trace-Id")
		if sampled && got != tid.String() {
			t.Errorf("sampled: header = %q", got)
		}
		if !sampled && got != "" {
			t.Errorf("unsampled: header = %q, want none", got)
		}
	}
}

// logging

func TestWithLogger_ScopesRequest(t *testing.T) {
	spy := newSpyLogger()
	var scoped log.Logger
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		scoped = log.FromContext(r.Context())
	}), RequestID(""), ClientIP, WithLogger(spy))

	req := httptest.NewRequest("POST", "/api/contact?secret=1", http.NoBody)
	req.RemoteAddr = "198.51.100.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if scoped != spy {
		t.Fatal("handler should see the scoped logger")
	}
	if v, _ := kvValue(spy.with, "client.address"); v != "198.51.100.7" {
		t.Errorf("client.address = %v", v)
	}
	if v, _ := kvValue(spy.with, "url.path"); v != "/api/contact" {
		t.Errorf("url.path = %v, query must be left out", v)
	}
	if v, _ := kvValue(spy.with, "request_id"); v == "" {
		t.Error("request_id missing")
	}
}

func TestAccessLog(t *testing.T) {
	spy := newSpyLogger()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}), WithLogger(spy), AccessLog())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/contact", http.NoBody))
	if len(spy.infos) != 1 {
		t.Fatalf("access log lines = %d", len(spy.infos))
	}
	kv := spy.infos[0].kv
	if v, _ := kvValue(kv, "http.response.status_code"); v != http.StatusTooManyRequests {
		t.Errorf("status = %v", v)
	}
	if v, _ := kvValue(kv, "http.response.body.size"); v != int64(9) {
		t.Errorf("bytes = %v", v)
	}
}

func TestAccessLog_Skips(t *testing.T) {
	spy := newSpyLogger()
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), WithLogger(spy), AccessLog())
	for _, p := range []string{"/static/site.css", "/-/ready", "/-/healthy", "/favicon.ico"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, http.NoBody))
	}
	if len(spy.infos) != 0 {
		t.Fatalf("skipped paths logged: %+v", spy.infos)
	}
}

func TestStatusRecorder_DefaultsTo200(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusTeapot)
	if rw.status != http.StatusOK || rw.bytes != 2 {
		t.Fatalf("status=%d bytes=%d", rw.status, rw.bytes)
	}
	if rw.Unwrap() == nil {
		t.Fatal("Unwrap returned nil")
	}
}

func TestAccessLog_LocaleAndRoute(t *testing.T) {
	spy := newSpyLogger()
	// chi only fills the pattern for middleware mounted on the router
	r := chi.NewRouter()
	r.Use(AccessLog())
	r.Get("/{locale}/pricing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Language", chi.URLParam(r, "locale"))
		_, _ = w.Write([]byte("<html></html>"))
	})
	h := Chain(r, WithLogger(spy))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/fr/pricing", http.NoBody))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/wp-admin", http.NoBody))
	if len(spy.infos) != 2 {
		t.Fatalf("access log lines = %d, want 2", len(spy.infos))
	}
	page, missing := spy.infos[0].kv, spy.infos[1].kv
	if v, _ := kvValue(page, "locale"); v != "fr" {
		t.Errorf("locale = %v, want fr", v)
	}
	if v, _ := kvValue(page, "http.route"); v != "/{locale}/pricing" {
		t.Errorf("route = %v", v)
	}
	if _, ok := kvValue(missing, "locale"); ok {
		t.Error("locale logged for a response without Content-Language")
	}
	if v, _ := kvValue(missing, "http.route"); v != "/wp-admin" {
		t.Errorf("unmatched route = %v, want the raw path", v)
	}
}
