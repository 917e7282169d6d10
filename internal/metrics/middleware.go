package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// routeUnmatched labels requests no chi pattern claimed: localized 404s, scanners and probes of random paths
const routeUnmatched = "unmatched"

// meter records the status and body size a handler produced
type meter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *meter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *meter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *meter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *meter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *meter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records in-flight, totals, 5xx, latency and response size labelled by method and chi route pattern.
// It must wrap the chi router so the pattern is filled in by the time the handler returns.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// give chi a context to fill when it is mounted below us
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		mw := &meter{ResponseWriter: w}
		next.ServeHTTP(mw, r)

		m.observe(r, mw, time.Since(start))
	})
}

func (m *ServerMetrics) observe(r *http.Request, mw *meter, elapsed time.Duration) {
	ctx := r.Context()
	route := routeLabel(ctx)
	code := mw.code()

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	dur := m.reqDur.WithLabelValues(r.Method, route)
	eo, ok := dur.(prometheus.ExemplarObserver)
	if ex := traceExemplar(ctx); ex != nil && ok {
		eo.ObserveWithExemplar(elapsed.Seconds(), ex)
	} else {
		dur.Observe(elapsed.Seconds())
	}

	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(mw.bytes))
}

// routeLabel is the matched pattern, never the raw path, so scanners cannot mint label values
func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return routeUnmatched
}

// traceExemplar links a latency sample to its trace when the request was sampled
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
