package httpmw

import (
	"net/http"
	"strings"
)

// Security note: CSRF tokens are not used. The only state-changing endpoint is the
// contact API which requires a JSON content type (no simple cross-site form posts),
// sets no cookies and is rate limited per client.

// SecurityHeaders adds the common security headers with a same-origin CSP
func SecurityHeaders(next http.Handler) http.Handler {
	return SecurityHeadersWithOrigins()(next)
}

// SecurityHeadersWithOrigins is SecurityHeaders with extra script/connect origins allowed in the CSP,
// used for the analytics tag when one is configured. Empty entries are ignored.
func SecurityHeadersWithOrigins(origins ...string) func(http.Handler) http.Handler {
	csp := buildCSP(origins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			// Require HTTPS for one year, including subdomains, and allow preload
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			// Old Clickjacking protection - dont allow embedding in frames
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")

			next.ServeHTTP(w, r)
		})
	}
}

func buildCSP(origins []string) string {
	extra := ""
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			extra += " " + o
		}
	}
	return "default-src 'self'; script-src 'self'" + extra +
		"; style-src 'self'; img-src 'self' data:; font-src 'self'; connect-src 'self'" + extra +
		"; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'; upgrade-insecure-requests"
}
