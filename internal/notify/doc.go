// Package notify pushes selected standin events to people.
//
// The Matrix notifier posts a notice per event to a single room. Which
// event kinds are forwarded is configurable; by default only events that
// need attention (kicks, failed activations, suspension) are sent.
package notify
