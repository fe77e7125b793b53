// Package provider is the model-inference adapter: a uniform request/response
// surface over a chat-completion endpoint and a text-embedding endpoint.
//
// The Adapter wraps a Backend (the raw endpoint client) with the policies the
// rest of the system relies on:
//   - a closed error taxonomy (Unavailable, Throttled, Rejected, Invalid)
//   - exponential backoff with jitter for retryable kinds
//   - per-call deadlines and a bounded in-flight call pool
//   - embedding dimension enforcement
//   - token usage accounting
//
// Backends stay dumb: they translate endpoint errors into the taxonomy and
// nothing else. Concrete backends live in subpackages (openai); tests script
// the fake in providertest.
package provider
