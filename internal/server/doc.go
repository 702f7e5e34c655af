// Package server exposes standin's control plane.
//
// The HTTP side serves the JSON control API under /api (session control,
// rotation, servers, config, logs, stats and an SSE event stream), liveness
// and readiness probes, and optionally Prometheus metrics. Bearer tokens
// gate /api when a JWT secret is configured. The gRPC side serves only the
// standard health service, where "standin.Session" reports SERVING while the
// agent is online. Both listen on TCP or, when enabled, on a tsnet node.
package server
