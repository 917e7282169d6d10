package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthzHandler answers 200 "ok" while p passes and 503 with the reason otherwise.
// A nil probe is always healthy.
func HealthzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ok\n")
}

// ReadyzHandler is HealthzHandler with a "ready" body
func ReadyzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ready\n")
}

func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}

// Routes exposes /-/ping, /-/healthy and /-/ready on the public router for the load balancer.
// The ops listener serves the same probes on /healthz and /readyz.
type Routes struct {
	Health    Probe
	Readiness Probe
}

func (rt Routes) RegisterRoutes(r chi.Router) {
	ping := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte("pong\n"))
	}
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		r.MethodFunc(m, "/-/ping", ping)
		r.Method(m, "/-/healthy", HealthzHandler(rt.Health))
		r.Method(m, "/-/ready", ReadyzHandler(rt.Readiness))
	}
}
