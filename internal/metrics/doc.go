// Package metrics exposes Prometheus series derived from standin events.
package metrics
