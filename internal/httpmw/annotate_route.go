package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnnotateHTTPRoute renames the server span to "METHOD pattern" after chi has matched,
// so /de/privacy and /fr/privacy share one span name
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
			route := routeOf(r)
			span.SetAttributes(attribute.String("http.route", route))
			span.SetName(r.Method + " " + route)
		}
	})
}
