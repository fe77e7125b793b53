package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider"
)

const sentimentInstruction = `You score the sentiment of customer messages sent to a bank.
Respond with only a decimal number between -1.0 (hostile) and 1.0 (delighted).
No words, no explanation.`

// alertFloor is the sentiment at or below which an ops alert is raised.
const alertFloor = -0.5

const excerptLimit = 140

// Sentiment scores customer messages, escalating hostile ones.
type Sentiment struct {
	model provider.Provider
}

// NewSentiment builds the sentiment handler.
func NewSentiment(model provider.Provider) *Sentiment {
	return &Sentiment{model: model}
}

func (*Sentiment) Name() string { return "customer_sentiment" }

func (*Sentiment) Topics() []events.Type { return []events.Type{events.CustomerMessage} }

func (s *Sentiment) Handle(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	msg, ok := env.Payload.(events.CustomerMessagePayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	score := s.scoreMessage(ctx, msg.Body)
	if score > alertFloor {
		return nil, nil
	}

	return []*events.Envelope{
		events.New(env.CorrelationID, s.Name(), events.OpsAlertPayload{
			Channel:         events.ChannelSentiment,
			SentimentScore:  score,
			Excerpt:         excerpt(msg.Body),
			SuggestedAction: "escalate_to_customer_care",
		}),
	}, nil
}

// scoreMessage asks the model for a bare decimal; anything unparsable or out
// of range falls back to the lexicon scorer.
func (s *Sentiment) scoreMessage(ctx context.Context, body string) float64 {
	completion, err := s.model.Complete(ctx, provider.CompletionRequest{
		System:      sentimentInstruction,
		Prompt:      body,
		Temperature: 0,
		MaxTokens:   8,
	})
	if err == nil {
		if score, perr := strconv.ParseFloat(strings.TrimSpace(completion.Text), 64); perr == nil && score >= -1 && score <= 1 {
			return score
		}
	}
	return lexiconScore(body)
}

// The word lists mirror the original complaint-handling deployment; small on
// purpose, the model carries the nuance when it is up.
var (
	negativeWords = []string{
		"angry", "frustrated", "disappointed", "terrible", "awful", "hate",
		"unacceptable", "useless", "worst", "scam", "furious", "problem",
		"issue", "error", "complaint", "refund",
	}
	positiveWords = []string{
		"happy", "great", "excellent", "love", "amazing", "perfect",
		"thank", "thanks", "good", "satisfied", "helpful", "resolved",
	}
)

// lexiconScore is the deterministic fallback: net polarity of matched
// words, in [-1, 1].
func lexiconScore(body string) float64 {
	lower := strings.ToLower(body)
	var pos, neg int
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= excerptLimit {
		return body
	}
	return body[:excerptLimit] + "…"
}
