package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/clubdesk-web/internal/health"
	"github.com/keithlinneman/clubdesk-web/internal/log"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// serve runs one request through the ops handler from the given peer
func serve(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_Routes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "clubdesk_http_requests_total 3\n")
	})

	tests := []struct {
		name     string
		opts     *Options
		path     string
		wantCode int
		wantBody string
	}{
		{"healthz nil probe", &Options{}, "/healthz", 200, "ok"},
		{"readyz nil probe", &Options{}, "/readyz", 200, "ready"},
		{"healthz failing", &Options{Health: health.Fixed(false, "smtp relay unreachable")}, "/healthz", 503, "smtp relay unreachable"},
		{"readyz failing", &Options{Readiness: health.Fixed(false, "i18n: no active catalog")}, "/readyz", 503, "i18n: no active catalog"},
		{"lb alias healthy", &Options{Health: health.Fixed(true, "")}, "/-/healthy", 200, "ok"},
		{"lb alias ready", &Options{Readiness: health.Fixed(false, "draining")}, "/-/ready", 503, "draining"},
		{"metrics mounted", &Options{Metrics: metrics}, "/metrics", 200, "clubdesk_http_requests_total"},
		{"metrics absent", &Options{}, "/metrics", 404, ""},
		{"pprof disabled", &Options{}, "/debug/pprof/", 404, ""},
		{"pprof enabled", &Options{EnablePprof: true}, "/debug/pprof/cmdline", 200, ""},
		{"unknown path", &Options{}, "/nope", 404, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHandler(log.Nop(), tt.opts), "127.0.0.1:5000", tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewHandler_ProbeHeaders(t *testing.T) {
	rec := serve(NewHandler(log.Nop(), nil), "127.0.0.1:5000", "/readyz")
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestNewHandler_FollowsShutdownGate(t *testing.T) {
	var gate health.ShutdownGate
	h := NewHandler(log.Nop(), &Options{Readiness: gate.Probe()})

	if rec := serve(h, "127.0.0.1:5000", "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("before drain: status = %d", rec.Code)
	}
	gate.Set("draining")
	rec := serve(h, "127.0.0.1:5000", "/readyz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "draining") {
		t.Fatalf("during drain: %d %q", rec.Code, rec.Body.String())
	}
	gate.Clear()
	if rec := serve(h, "127.0.0.1:5000", "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("after clear: status = %d", rec.Code)
	}
}

func TestNewHandler_NetworkGuard(t *testing.T) {
	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:1234", 200},
		{"[::1]:1234", 200},
		{"10.1.2.3:1234", 200},
		{"172.16.0.9:1234", 200},
		{"192.168.1.20:1234", 200},
		{"169.254.169.254:80", 200},
		{"[fe80::1]:1234", 200},
		{"[fd00::5]:1234", 200},
		{"[::ffff:10.0.0.1]:1234", 200},
		{"203.0.113.7:1234", 403},
		{"8.8.8.8:53", 403},
		{"[2001:db8::1]:1234", 403},
		{"[::ffff:8.8.8.8]:1234", 403},
		{"", 403},
		{"no-port", 403},
		{"not-an-ip:80", 403},
	}
	h := NewHandler(log.Nop(), &Options{})
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			if rec := serve(h, tt.remote, "/healthz"); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNewHandler_GuardIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := httptest.NewRecorder()
	NewHandler(log.Nop(), nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestNewHandler_AllowPublic(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{AllowPublic: true})
	if rec := serve(h, "203.0.113.7:1234", "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNewHandler_RecoverCallsOnPanic(t *testing.T) {
	panics := 0
	h := NewHandler(log.Nop(), &Options{
		UseRecoverMW: true,
		OnPanic:      func() { panics++ },
		Metrics:      http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("gather failed") }),
	})
	rec := serve(h, "127.0.0.1:5000", "/metrics")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("OnPanic called %d times, want 1", panics)
	}
}

func TestStart_ServesAndStops(t *testing.T) {
	port := freePort(t)
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), &Options{Port: port, Readiness: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Fatal("server still answering after stop")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, err = Start(context.Background(), log.Nop(), &Options{Port: ln.Addr().(*net.TCPAddr).Port})
	if err == nil {
		t.Fatal("expected error for a port already in use")
	}
	if !strings.Contains(err.Error(), "listen for ops server") {
		t.Fatalf("error = %v", err)
	}
}
