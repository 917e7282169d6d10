// Package health provides composable probes and the HTTP handlers that
// expose them as liveness and readiness endpoints.
//
// [All] combines probes and reports every failure, [Fixed] is static and
// [Named] labels a dependency so a failing readiness check says which one.
// [CheckFunc] adapts a plain function into a [Probe].
//
// The server is ready once a message catalog is active and stops being
// ready as soon as [ShutdownGate] is set, so the load balancer drains it
// before in-flight contact submissions are cut off.
package health
