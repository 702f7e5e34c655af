// Package heartbeat detects that the live agent session has stopped proving
// it is alive.
//
// The monitor owns only the last heartbeat time and a flag marking whether
// loss has already been signalled for the current offline episode. An episode
// closes when a heartbeat arrives or the caller rearms the monitor.
package heartbeat
