package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider/providertest"
)

func TestKnowledgeNarratesOnOpsAction(t *testing.T) {
	fake := providertest.New(8)
	fake.Queue("The bank blocked a large overnight transfer to a sanctioned jurisdiction, per AUSTRAC guidance.")
	pub := &capturingPublisher{}

	k := NewKnowledge(fake, pub, time.Second)

	_, err := k.Handle(context.Background(), events.New("c-1", "transaction_risk", events.RiskFlaggedPayload{
		TransactionID: "tx-1", Score: 0.95,
		Indicators: []string{"cross_jurisdiction"},
		Citations:  []string{"austrac-aml-ctf"},
	}))
	require.NoError(t, err)

	_, err = k.Handle(context.Background(), events.New("c-1", "compliance", events.ComplianceActionPayload{
		TransactionID: "tx-1", Action: events.ActionBlock,
		Citations: []string{"austrac-smr-guide"},
	}))
	require.NoError(t, err)

	emitted, err := k.Handle(context.Background(), events.New("c-1", "resilience", events.OpsActionPayload{
		TransactionID: "tx-1", Intent: "block_transaction",
	}))
	require.NoError(t, err)
	require.Len(t, emitted, 1, "ops.action triggers the narrative immediately")

	payload := emitted[0].Payload.(events.OpsAlertPayload)
	assert.Equal(t, events.ChannelNarrative, payload.Channel)
	assert.NotEmpty(t, payload.Summary)
	assert.ElementsMatch(t, []string{"austrac-aml-ctf", "austrac-smr-guide"}, payload.Citations)
	assert.Equal(t, "c-1", emitted[0].CorrelationID)
}

func TestKnowledgeQuietPeriodFlush(t *testing.T) {
	fake := providertest.New(8)
	fake.Queue("A privacy violation was detected and sanitized.")
	pub := &capturingPublisher{}

	k := NewKnowledge(fake, pub, 60*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Start(ctx)
	defer k.Stop()

	_, err := k.Handle(ctx, events.New("c-9", "data_privacy", events.PrivacyViolationPayload{
		SourceComponent: "payments-api",
		Findings:        []events.Finding{{Kind: "email", Placeholder: "<EMAIL>"}},
		SanitizedLine:   "user <EMAIL>",
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(pub.all()) == 1
	}, 2*time.Second, 10*time.Millisecond, "quiet thread is narrated via the publisher")

	published := pub.all()[0]
	assert.Equal(t, events.OpsAlert, published.Type)
	assert.Equal(t, "c-9", published.CorrelationID)
	assert.Equal(t, events.ChannelNarrative, published.Payload.(events.OpsAlertPayload).Channel)
}

func TestKnowledgeIgnoresItsOwnNarratives(t *testing.T) {
	fake := providertest.New(8)
	pub := &capturingPublisher{}
	k := NewKnowledge(fake, pub, time.Second)

	emitted, err := k.Handle(context.Background(), events.New("c-1", "knowledge", events.OpsAlertPayload{
		Channel: events.ChannelNarrative,
		Summary: "already narrated",
	}))
	require.NoError(t, err)
	assert.Empty(t, emitted)

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Zero(t, k.threads.Len(), "narratives are not accumulated")
}

func TestKnowledgeToleratesModelOutage(t *testing.T) {
	fake := providertest.New(8)
	fake.FailCompletions(providertest.Unavailable())
	pub := &capturingPublisher{}
	k := NewKnowledge(fake, pub, time.Second)

	_, err := k.Handle(context.Background(), events.New("c-1", "transaction_risk", events.RiskFlaggedPayload{
		TransactionID: "tx-1", Score: 0.95,
	}))
	require.NoError(t, err)

	emitted, err := k.Handle(context.Background(), events.New("c-1", "resilience", events.OpsActionPayload{
		TransactionID: "tx-1", Intent: "block_transaction",
	}))
	require.NoError(t, err, "a model outage only skips the narrative")
	assert.Empty(t, emitted)
}

func TestKnowledgeBoundedThreads(t *testing.T) {
	fake := providertest.New(8)
	pub := &capturingPublisher{}
	k := NewKnowledge(fake, pub, time.Second)
	k.cap = 3

	for _, c := range []string{"c-1", "c-2", "c-3", "c-4"} {
		_, err := k.Handle(context.Background(), events.New(c, "transaction_risk", events.RiskFlaggedPayload{TransactionID: c}))
		require.NoError(t, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Equal(t, 3, k.threads.Len())
	_, oldest := k.threads.Get("c-1")
	assert.False(t, oldest, "the oldest thread was evicted")
}
