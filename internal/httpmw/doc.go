// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recovery, request ID, client IP resolution, OTEL tracing, metrics,
// request-scoped logging, access log, then the chi router. The contact API
// adds body limits and the rate limiter on its own route.
//
// User-supplied data (query params, user-agent, form bodies) is kept out of
// logs to prevent PII leaks and log injection.
package httpmw
