/*
Package nfrguard is the event-orchestration core of a banking security
system: a pub/sub bus routing structured events across seven cooperating
analysis agents, enriched with retrieval-augmented context from a regulatory
corpus, with ordered causal progression of each transaction through the
risk -> compliance -> action -> narration pipeline.

The package wires the pieces together; each piece lives in its own package:

  - events: the typed envelope and the closed event vocabulary
  - bus: publish/subscribe with fan-out, retry, dead-letter, and replay
  - provider: the model adapter over a chat-completion and embedding endpoint
  - retrieval: chunking, embedding, and k-NN search over the corpus
  - agent: the seven handlers and their shared harness
  - supervisor: per-transaction stage tracking and terminal detection
  - transport: EventBridge, SNS, and NATS remote carriers

# Basic usage

	sys, err := nfrguard.New(
		nfrguard.WithBackend(openai.New(cfg.EmbeddingDimension)),
	)
	if err != nil {
		// handle
	}
	if err := sys.Start(ctx); err != nil {
		// handle
	}
	defer sys.Shutdown(ctx)

	sys.Publish(ctx, events.New("c-1", "ledger", events.TransactionCreatedPayload{...}))

Everything is an explicit handle: construct one System per process (or per
test) and pass it around. There are no package-level singletons.
*/
package nfrguard
