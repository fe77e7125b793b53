package openai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/nfrguard/nfrguard/provider"
)

// Backend implements provider.Backend over the OpenAI-compatible API.
// Retry, pooling, and deadlines live in the provider.Adapter; this type
// only translates calls and classifies failures.
type Backend struct {
	client         *openai.Client
	completionName string
	embeddingName  string
	dimension      int
}

// New creates a backend. The completion and embedding model names default to
// gpt-4o-mini and text-embedding-3-small; dimension is requested from the
// embedding endpoint so the adapter's check holds even when the model's
// native width differs.
func New(dimension int, options ...option.RequestOption) *Backend {
	return &Backend{
		client:         openai.NewClient(options...),
		completionName: string(openai.ChatModelGPT4oMini),
		embeddingName:  string(openai.EmbeddingModelTextEmbedding3Small),
		dimension:      dimension,
	}
}

// WithModels overrides the completion and embedding model names.
func (b *Backend) WithModels(completion, embedding string) *Backend {
	if completion != "" {
		b.completionName = completion
	}
	if embedding != "" {
		b.embeddingName = embedding
	}
	return b
}

func (b *Backend) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.F(b.completionName),
		N:           openai.Int(1),
		Temperature: openai.Float(req.Temperature),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		}),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	chat, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return provider.Completion{}, classify("complete", err)
	}
	if len(chat.Choices) == 0 {
		return provider.Completion{}, &provider.Error{Kind: provider.KindInvalid, Op: "complete", Err: fmt.Errorf("response has no choices")}
	}
	choice := chat.Choices[0]
	if choice.Message.Refusal != "" {
		return provider.Completion{}, &provider.Error{Kind: provider.KindRejected, Op: "complete", Err: fmt.Errorf("refused: %s", choice.Message.Refusal)}
	}
	return provider.Completion{
		Text: choice.Message.Content,
		Usage: provider.Usage{
			PromptTokens:     int(chat.Usage.PromptTokens),
			CompletionTokens: int(chat.Usage.CompletionTokens),
		},
	}, nil
}

func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.F(b.embeddingName),
		Dimensions: openai.Int(int64(b.dimension)),
		Input:      openai.F[openai.EmbeddingNewParamsInputUnion](openai.EmbeddingNewParamsInputArrayOfStrings([]string{text})),
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, &provider.Error{Kind: provider.KindInvalid, Op: "embed", Err: fmt.Errorf("response has no embeddings")}
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

// classify maps SDK and transport errors onto the closed taxonomy.
func classify(op string, err error) *provider.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &provider.Error{Kind: provider.KindThrottled, Op: op, Err: err}
		case apiErr.StatusCode >= 500:
			return &provider.Error{Kind: provider.KindUnavailable, Op: op, Err: err}
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 403:
			return &provider.Error{Kind: provider.KindRejected, Op: op, Err: err}
		default:
			return &provider.Error{Kind: provider.KindInvalid, Op: op, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &provider.Error{Kind: provider.KindUnavailable, Op: op, Err: err}
	}
	// Anything else reaching here is a transport-level failure from the HTTP
	// client rather than a parsed API response.
	return &provider.Error{Kind: provider.KindUnavailable, Op: op, Err: err}
}
