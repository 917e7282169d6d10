package httpmw

import "net/http"

// MaxBody caps request bodies at n bytes. Handlers see *http.MaxBytesError
// from Read past the cap and decide how to answer (the contact API sends 413).
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
