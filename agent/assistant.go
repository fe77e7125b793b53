package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider"
	"github.com/nfrguard/nfrguard/retrieval"
)

const assistantInstruction = `You are a banking assistant answering questions about Australian
banking regulation and this bank's obligations. Ground your answer in the
provided extracts and say when the extracts do not cover the question.`

// Assistant is stateless regulatory Q&A over the retrieval corpus.
type Assistant struct {
	model provider.Provider
	index *retrieval.Index
	topK  int
}

// NewAssistant builds the assistant handler retrieving topK chunks per query.
func NewAssistant(model provider.Provider, index *retrieval.Index, topK int) *Assistant {
	if topK <= 0 {
		topK = 5
	}
	return &Assistant{model: model, index: index, topK: topK}
}

func (*Assistant) Name() string { return "banking_assistant" }

func (*Assistant) Topics() []events.Type { return []events.Type{events.UserQuery} }

func (a *Assistant) Handle(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	query, ok := env.Payload.(events.UserQueryPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	// No hard filter: the assistant answers across the whole corpus.
	results := retrieve(ctx, a.index, a.Name(), query.Question, a.topK, retrieval.Filter{})

	answer := a.answer(ctx, query.Question, results)
	return []*events.Envelope{
		events.New(env.CorrelationID, a.Name(), events.UserResponsePayload{
			QueryID:   query.QueryID,
			Answer:    answer,
			Citations: citations(results),
		}),
	}, nil
}

func (a *Assistant) answer(ctx context.Context, question string, results []retrieval.Result) string {
	completion, err := a.model.Complete(ctx, provider.CompletionRequest{
		System:      assistantInstruction,
		Prompt:      fmt.Sprintf("Question: %s\n\nExtracts:\n%s", question, contextBlock(results)),
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if err == nil {
		return strings.TrimSpace(completion.Text)
	}

	// Degraded answer: point at the sources instead of synthesizing.
	if len(results) == 0 {
		return "The assistant is temporarily unavailable and no matching guidance was found."
	}
	docs := citations(results)
	return fmt.Sprintf("The assistant is temporarily unavailable. The most relevant guidance documents are: %s.",
		strings.Join(docs, ", "))
}
