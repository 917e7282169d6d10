package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/keithlinneman/clubdesk-web/internal/httpmw"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

// doRequest sends a request with ip already resolved into the context, as httpmw.ClientIP would do.
func doRequest(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	if ip != "" {
		req = req.WithContext(httpmw.WithClientIP(req.Context(), ip))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_HeadersOnEveryResponse(t *testing.T) {
	l, _ := newTestLimiter(t, WithLimit(2))
	h := l.Middleware(okHandler())

	for i, wantRemaining := range []string{"1", "0", "0"} {
		rec := doRequest(h, "203.0.113.9")
		if got := rec.Header().Get(HeaderLimit); got != "2" {
			t.Errorf("request %d: %s = %q, want 2", i+1, HeaderLimit, got)
		}
		if got := rec.Header().Get(HeaderRemaining); got != wantRemaining {
			t.Errorf("request %d: %s = %q, want %s", i+1, HeaderRemaining, got, wantRemaining)
		}
		if rec.Header().Get(HeaderReset) == "" {
			t.Errorf("request %d: missing %s", i+1, HeaderReset)
		}
	}
}

func TestMiddleware_DeniedResponse(t *testing.T) {
	l, clk := newTestLimiter(t, WithLimit(1), WithInterval(time.Minute))

	nextCalls := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalls++
	}))

	doRequest(h, "203.0.113.9")
	clk.Advance(20 * time.Second)
	rec := doRequest(h, "203.0.113.9")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if nextCalls != 1 {
		t.Fatalf("next called %d times, want 1", nextCalls)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "40" {
		t.Errorf("Retry-After = %q, want 40", ra)
	}

	var body struct {
		Error     string `json:"error"`
		RateLimit struct {
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"rateLimit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	if body.Error == "" {
		t.Error("error message should be set")
	}
	if body.RateLimit.Remaining != 0 {
		t.Errorf("rateLimit.remaining = %d, want 0", body.RateLimit.Remaining)
	}
	wantReset := clk.Now().Add(40 * time.Second).UnixMilli()
	if body.RateLimit.Reset != wantReset {
		t.Errorf("rateLimit.reset = %d, want %d", body.RateLimit.Reset, wantReset)
	}
	if hdr := rec.Header().Get(HeaderReset); hdr != strconv.FormatInt(wantReset, 10) {
		t.Errorf("%s = %q, want %d", HeaderReset, hdr, wantReset)
	}
}

func TestMiddleware_UnresolvedClientSharesUnknownKey(t *testing.T) {
	var deniedKeys []string
	l, _ := newTestLimiter(t, WithLimit(1), WithOnDenied(func(key string) {
		deniedKeys = append(deniedKeys, key)
	}))
	h := l.Middleware(okHandler())

	doRequest(h, "")
	rec := doRequest(h, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if len(deniedKeys) != 1 || deniedKeys[0] != UnknownClient {
		t.Fatalf("denied keys = %v, want [%s]", deniedKeys, UnknownClient)
	}
}

func TestWriteDenied_RetryAfterAtLeastOne(t *testing.T) {
	l, clk := newTestLimiter(t)
	rec := httptest.NewRecorder()
	l.WriteDenied(rec, Result{Limit: 5, Reset: clk.Now().UnixMilli()})

	if ra := rec.Header().Get("Retry-After"); ra != "1" {
		t.Fatalf("Retry-After = %q, want 1", ra)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ClientKey(req); got != UnknownClient {
		t.Fatalf("ClientKey without ip = %q, want %q", got, UnknownClient)
	}
	req = req.WithContext(httpmw.WithClientIP(req.Context(), "198.51.100.7"))
	if got := ClientKey(req); got != "198.51.100.7" {
		t.Fatalf("ClientKey = %q, want 198.51.100.7", got)
	}
}
