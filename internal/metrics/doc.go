// Package metrics exposes the bridge's Prometheus collectors.
//
// Collectors live in their own registry rather than the global default so
// that tests and multiple instances never collide. The registry also
// carries the Go runtime and process collectors.
package metrics
