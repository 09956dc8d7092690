// Package endpoint provides the probe handlers the admin environment serves
// at /livez, /readyz and /runtime.
package endpoint
