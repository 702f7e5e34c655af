// Package simclient is an in-process protocol driver for development.
//
// It implements session.Client without touching the network: Connect
// succeeds (or fails with a configured probability), spawn is reported after
// a delay, other players chat at an interval and the server occasionally
// kicks the agent. Timing runs on an injected clock so tests can drive it.
package simclient
