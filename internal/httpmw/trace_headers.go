package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader echoes the trace id of sampled requests so a user report ("contact form failed")
// can be matched to its trace. Unsampled requests get no header.
func TraceIDHeader(name string) func(http.Handler) http.Handler {
	if name == "" {
		name = "X-Trace-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() && sc.IsSampled() {
				w.Header().Set(name, sc.TraceID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
