// Package events defines the typed lifecycle and rotation events standin
// emits, and fans them out to observers.
//
// # Payloads
//
// Every event carries a Payload, a concrete struct per kind (RotationStarted,
// RotationCompleted, NoIdentityAvailable, ConnectionFailed, ...). Payloads
// describe themselves for the activity log and marshal to JSON for the event
// stream.
//
// # Broadcaster
//
// Broadcaster is an in-memory fan-out with a buffered channel per
// subscriber. Publish never blocks: a subscriber whose buffer is full misses
// the event.
//
// # Recorder
//
// Recorder stamps a payload into an Event, appends it to the activity log and
// publishes it. Persistence failures are logged and do not stop publication.
package events
