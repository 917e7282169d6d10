package health

import (
	"context"
	"errors"
	"sync/atomic"
)

// Probe reports nil when healthy, otherwise the reason it is not
type Probe interface {
	Check(ctx context.Context) error
}

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

var (
	errUnhealthy = errors.New("unhealthy")
	errDraining  = errors.New("draining")
)

// Fixed is a constant probe. A failing one with no reason reports "unhealthy".
func Fixed(ok bool, reason string) CheckFunc {
	var err error
	switch {
	case ok:
	case reason == "":
		err = errUnhealthy
	default:
		err = errors.New(reason)
	}
	return func(context.Context) error { return err }
}

// Named prefixes failures of p with name, e.g. "i18n: no active catalog"
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		if err := p.Check(ctx); err != nil {
			return namedError{name: name, err: err}
		}
		return nil
	}
}

type namedError struct {
	name string
	err  error
}

func (e namedError) Error() string { return e.name + ": " + e.err.Error() }
func (e namedError) Unwrap() error { return e.err }

// All passes when every non-nil probe passes. Every probe is evaluated and the
// failures are joined, so /readyz lists each dependency that is down.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// ShutdownGate fails readiness once Set is called so the load balancer drains the
// instance before the listener stops. The zero value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

func (g *ShutdownGate) Set(reason string) { g.reason.Store(&reason) }

func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		r := g.reason.Load()
		switch {
		case r == nil:
			return nil
		case *r == "":
			return errDraining
		default:
			return errors.New(*r)
		}
	}
}
