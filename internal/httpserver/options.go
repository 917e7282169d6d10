package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/clubdesk-web/internal/health"
	"github.com/keithlinneman/clubdesk-web/internal/httpmw"
	"github.com/keithlinneman/clubdesk-web/internal/log"
)

// DefaultPort is used when Options.Port is zero
const DefaultPort = 8080

// RouteRegistrar mounts a group of routes on the public router
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler

	// Health and Readiness back /-/healthy and /-/ready, /-/ping is always served
	Health    health.Probe
	Readiness health.Probe

	// Catalog adds X-Messages-Version and X-Messages-Hash headers
	Catalog  httpmw.CatalogInfo
	ClientIP httpmw.ClientIPOptions
	// CSPOrigins are extra script and connect origins, e.g. the analytics host
	CSPOrigins []string

	// Routes are mounted in order. The site registrar goes last since it owns NotFound and MethodNotAllowed.
	Routes []RouteRegistrar
}

// RouteFunc adapts a function into a RouteRegistrar
type RouteFunc func(r chi.Router)

func (f RouteFunc) RegisterRoutes(r chi.Router) { f(r) }
