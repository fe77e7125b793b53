// Package agent holds the seven analysis handlers and the harness that
// binds them to the bus.
//
// A handler is a pure function of the delivered event plus the model adapter
// and the retrieval index: it returns the set of events to publish and never
// publishes directly. The harness adds everything a handler should not have
// to think about:
//   - event-id deduplication over a bounded window
//   - a per-invocation deadline, with panic capture
//   - correlation-id enforcement on emitted events
//   - publishing the emitted events through the bus
//
// Every handler degrades instead of dropping: when the model or the index is
// unavailable there is always a deterministic fallback path, so an outage
// never silently suppresses the pipeline.
package agent
