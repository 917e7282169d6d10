package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/keithlinneman/clubdesk-web/internal/httpmw"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// UnknownClient is the key used when no client ip could be resolved, all such requests share one quota
const UnknownClient = "unknown"

type deniedBody struct {
	Error     string     `json:"error"`
	RateLimit deniedInfo `json:"rateLimit"`
}

type deniedInfo struct {
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// SetHeaders writes the X-RateLimit-* headers for res
func SetHeaders(h http.Header, res Result) {
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(res.Reset, 10))
}

// WriteDenied writes the 429 response for a denied check. Headers from SetHeaders should already be set.
func (l *Limiter) WriteDenied(w http.ResponseWriter, res Result) {
	retry := (res.Reset - l.now().UnixMilli() + 999) / 1000
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(deniedBody{
		Error:     "too many requests",
		RateLimit: deniedInfo{Remaining: res.Remaining, Reset: res.Reset},
	})
}

// ClientKey returns the limiter key for a request, the ip resolved by httpmw.ClientIP or UnknownClient
func ClientKey(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return UnknownClient
}

// Middleware checks every request against the default per-client limit.
// Rate limit headers are set on every response, denied requests get 429 and never reach next.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.Check(ClientKey(r))
		SetHeaders(w.Header(), res)
		if !res.Success {
			l.WriteDenied(w, res)
			return
		}
		next.ServeHTTP(w, r)
	})
}
