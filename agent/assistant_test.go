package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider/providertest"
	"github.com/nfrguard/nfrguard/retrieval"
)

func userQuery(question string) *events.Envelope {
	return events.New("c-q1", "chat-api", events.UserQueryPayload{
		QueryID:  "q-1",
		Question: question,
	})
}

func assistantCorpus(t *testing.T) (*retrieval.Index, *providertest.Fake) {
	t.Helper()
	fake := providertest.New(32)
	idx, err := retrieval.NewIndex(fake)
	require.NoError(t, err)
	_, err = idx.Ingest(context.Background(),
		retrieval.Document{
			ID:       "austrac-ttr",
			Title:    "Threshold transaction reports",
			Metadata: retrieval.Metadata{Regulator: "AUSTRAC", DocType: "guidance"},
			Body:     "Threshold transaction reports are required for cash transactions of ten thousand dollars or more.",
		},
		retrieval.Document{
			ID:       "afca-complaints",
			Title:    "Complaint handling",
			Metadata: retrieval.Metadata{Regulator: "AFCA", DocType: "guideline"},
			Body:     "Complaints should be acknowledged within one business day.",
		},
	)
	require.NoError(t, err)
	return idx, fake
}

func TestAssistantAnswersWithCitations(t *testing.T) {
	idx, fake := assistantCorpus(t)
	fake.Queue("Cash transactions of $10,000 or more require a threshold transaction report to AUSTRAC.")

	a := NewAssistant(fake, idx, 5)
	emitted, err := a.Handle(context.Background(), userQuery("when is a threshold transaction report required"))
	require.NoError(t, err)
	require.Len(t, emitted, 1)

	payload := emitted[0].Payload.(events.UserResponsePayload)
	assert.Equal(t, "q-1", payload.QueryID)
	assert.Contains(t, payload.Answer, "threshold transaction report")
	assert.Contains(t, payload.Citations, "austrac-ttr")
	assert.Equal(t, "c-q1", emitted[0].CorrelationID)
}

func TestAssistantDegradesOnModelOutage(t *testing.T) {
	idx, fake := assistantCorpus(t)
	fake.FailCompletions(providertest.Unavailable())

	a := NewAssistant(fake, idx, 5)
	emitted, err := a.Handle(context.Background(), userQuery("threshold transaction reports"))
	require.NoError(t, err, "an outage still produces a response")
	require.Len(t, emitted, 1)

	payload := emitted[0].Payload.(events.UserResponsePayload)
	assert.Contains(t, payload.Answer, "temporarily unavailable")
	assert.NotEmpty(t, payload.Citations)
}

func TestAssistantEmptyCorpus(t *testing.T) {
	fake := providertest.New(32)
	idx, err := retrieval.NewIndex(fake)
	require.NoError(t, err)
	fake.Queue("I have no guidance on file for that question.")

	a := NewAssistant(fake, idx, 5)
	emitted, err := a.Handle(context.Background(), userQuery("anything"))
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Empty(t, emitted[0].Payload.(events.UserResponsePayload).Citations)
}
