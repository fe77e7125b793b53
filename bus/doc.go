// Package bus is the topic-addressed pub/sub broker at the center of the
// system: publish, subscribe, fan-out delivery, remote forwarding with a
// fallback transport, per-topic dead-lettering, and replay.
//
// Delivery model:
//   - each (topic, subscriber) pair owns one worker goroutine draining a
//     bounded FIFO queue, so delivery is in publish order per subscriber
//   - fan-out across subscribers of a topic is concurrent, with no ordering
//     between them
//   - a full queue applies backpressure to local publishers up to a deadline,
//     after which the publish fails with Rejected(backpressure)
//   - a failed invocation is retried with the attempt counter incremented;
//     after the retry schedule is exhausted the event moves to the topic's
//     dead-letter queue
//
// Remote delivery is best-effort. Events are forwarded asynchronously to a
// managed remote transport and, when that exhausts its retry budget, to a
// simpler fallback channel; neither failure affects local delivery.
package bus
