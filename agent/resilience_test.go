package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/events"
)

func complianceEvent(action events.Action) *events.Envelope {
	return events.New("c-1", "compliance", events.ComplianceActionPayload{
		TransactionID: "tx-1",
		Action:        action,
	})
}

func TestResilienceIntentMapping(t *testing.T) {
	tests := []struct {
		action events.Action
		intent string
	}{
		{events.ActionBlock, "block_transaction"},
		{events.ActionHold, "place_hold"},
		{events.ActionReport, "enqueue_regulator_report"},
		{events.ActionMonitor, "watchlist_add"},
	}

	r := NewResilience()
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			emitted, err := r.Handle(context.Background(), complianceEvent(tt.action))
			require.NoError(t, err)
			require.Len(t, emitted, 1, "exactly one ops.action per input")

			payload := emitted[0].Payload.(events.OpsActionPayload)
			assert.Equal(t, tt.intent, payload.Intent)
			assert.Equal(t, "tx-1", payload.Parameters["transaction_id"])
		})
	}
}

func TestResilienceReportCarriesRegulator(t *testing.T) {
	r := NewResilience()
	emitted, err := r.Handle(context.Background(), complianceEvent(events.ActionReport))
	require.NoError(t, err)

	payload := emitted[0].Payload.(events.OpsActionPayload)
	assert.Equal(t, "AUSTRAC", payload.Parameters["regulator"])
	assert.Equal(t, "SMR", payload.Parameters["report_type"])
}
