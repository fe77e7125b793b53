// Package events defines the unit of communication between agents: a typed
// envelope carrying a payload drawn from a closed vocabulary of event types,
// plus the JSON codec used on every transport.
//
// Design decisions:
//   - Closed vocabulary: unknown event types are rejected at publish time,
//     so schema drift surfaces immediately instead of at a downstream handler
//   - Tagged union payloads: one struct per event type behind the Payload
//     interface, dispatched on the envelope's type marker during decode
//   - Rich envelope: every event carries a correlation id, a globally unique
//     event id, a millisecond timestamp, the publishing source, and a
//     redelivery attempt counter
//   - Money as strings: monetary amounts travel as decimal strings with an
//     ISO-4217 currency code, never as floats
//
// Envelopes are values. Once published they are immutable; each subscriber
// receives its own copy and mutations never leak across handlers.
package events
