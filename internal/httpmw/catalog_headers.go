package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/clubdesk-web/internal/cryptoutil"
)

// CatalogInfo reports which message catalog is being served
type CatalogInfo interface {
	CatalogVersion() string
	CatalogHash() string
}

// CatalogHeaders adds X-Messages-Version and a short X-Messages-Hash to every response
// and tags the current span, so a response can be tied to the translations that rendered it.
func CatalogHeaders(info CatalogInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := info.CatalogVersion()
			h := info.CatalogHash()
			if v != "" {
				w.Header().Set("X-Messages-Version", v)
			}
			if h != "" {
				w.Header().Set("X-Messages-Hash", cryptoutil.Short(h))
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("messages.version", v),
					attribute.String("messages.hash", h),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
