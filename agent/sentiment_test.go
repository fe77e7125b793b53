package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider/providertest"
)

func customerMessage(body string) *events.Envelope {
	return events.New("c-2", "channel-gateway", events.CustomerMessagePayload{
		CustomerID: "cust-1",
		Body:       body,
	})
}

func TestSentimentEscalatesHostileMessage(t *testing.T) {
	fake := providertest.New(8)
	fake.Queue("-0.9")

	s := NewSentiment(fake)
	emitted, err := s.Handle(context.Background(), customerMessage("This is absolutely unacceptable, I want my money back now"))
	require.NoError(t, err)
	require.Len(t, emitted, 1)

	payload := emitted[0].Payload.(events.OpsAlertPayload)
	assert.Equal(t, events.ChannelSentiment, payload.Channel)
	assert.LessOrEqual(t, payload.SentimentScore, -0.5)
	assert.Contains(t, payload.Excerpt, "unacceptable")
	assert.NotEmpty(t, payload.SuggestedAction)
}

func TestSentimentIgnoresNeutralMessage(t *testing.T) {
	fake := providertest.New(8)
	fake.Queue("0.3")

	s := NewSentiment(fake)
	emitted, err := s.Handle(context.Background(), customerMessage("Could you tell me my account balance please?"))
	require.NoError(t, err)
	assert.Empty(t, emitted)
}

func TestSentimentLexiconFallbackOnOutage(t *testing.T) {
	fake := providertest.New(8)
	fake.FailCompletions(providertest.Unavailable())

	s := NewSentiment(fake)
	emitted, err := s.Handle(context.Background(), customerMessage("This is absolutely unacceptable, I want my money back now"))
	require.NoError(t, err)
	require.Len(t, emitted, 1, "the lexicon still catches hostile messages")
	assert.LessOrEqual(t, emitted[0].Payload.(events.OpsAlertPayload).SentimentScore, -0.5)
}

func TestSentimentLexiconFallbackOnGibberishModelOutput(t *testing.T) {
	fake := providertest.New(8)
	fake.Queue("the sentiment is quite negative")

	s := NewSentiment(fake)
	emitted, err := s.Handle(context.Background(), customerMessage("I hate this awful bank, worst service ever"))
	require.NoError(t, err)
	require.Len(t, emitted, 1)
}

func TestLexiconScore(t *testing.T) {
	assert.Negative(t, lexiconScore("this is terrible and awful"))
	assert.Positive(t, lexiconScore("great service, thank you"))
	assert.Zero(t, lexiconScore("the quarterly statement arrived"))
}

func TestExcerptTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "complaint "
	}
	got := excerpt(long)
	assert.LessOrEqual(t, len(got), excerptLimit+len("…"))
}
