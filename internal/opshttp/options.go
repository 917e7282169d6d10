package opshttp

import (
	"net/http"

	"github.com/keithlinneman/clubdesk-web/internal/health"
)

// DefaultPort is used when Options.Port is zero
const DefaultPort = 9000

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic disables the private-network guard, for running behind a sidecar that already restricts access
	AllowPublic  bool
	UseRecoverMW bool
	// OnPanic runs after a recovered panic, e.g. to bump a counter
	OnPanic func()
}
