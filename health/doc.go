// Package health runs named health checks and reports their results.
//
// Checks are registered on a Registry and run on demand, for example by the
// admin /healthcheck endpoint. A check that panics or exceeds its context
// deadline is reported as unhealthy instead of failing the whole run.
package health
