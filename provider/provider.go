package provider

import "context"

// CompletionRequest is a single chat-completion call.
type CompletionRequest struct {
	// System is the role instruction for the model.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens caps the response length; 0 uses the backend default.
	MaxTokens int
	// Temperature in [0,2]; handlers keep this low for determinism.
	Temperature float64
}

// Usage is the token accounting for one call. Recorded for observability;
// never affects correctness.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completion is the result of a chat-completion call.
type Completion struct {
	Text  string
	Usage Usage
}

// Provider is what handlers and the retrieval index depend on. The Adapter
// is the production implementation; tests use providertest.Fake.
type Provider interface {
	// Complete runs a chat completion. Failures carry a *provider.Error.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Embed returns a vector of the configured dimension for the text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is a raw endpoint client. Backends classify their endpoint's
// errors into the taxonomy and do nothing else; retries, deadlines, and
// pooling belong to the Adapter.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}
