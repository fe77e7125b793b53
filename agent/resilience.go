package agent

import (
	"context"
	"fmt"

	"github.com/nfrguard/nfrguard/events"
)

// Resilience translates compliance actions into operational intents. The
// core publishes the intent; it never calls a banking system itself.
type Resilience struct{}

// NewResilience builds the resilience handler.
func NewResilience() *Resilience { return &Resilience{} }

func (*Resilience) Name() string { return "resilience" }

func (*Resilience) Topics() []events.Type { return []events.Type{events.ComplianceAction} }

func (r *Resilience) Handle(_ context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	action, ok := env.Payload.(events.ComplianceActionPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	intent, params := intentFor(action)
	return []*events.Envelope{
		events.New(env.CorrelationID, r.Name(), events.OpsActionPayload{
			TransactionID: action.TransactionID,
			Intent:        intent,
			Parameters:    params,
		}),
	}, nil
}

// intentFor maps the closed action set onto operational steps. Exactly one
// intent per action; unknown actions degrade to monitoring.
func intentFor(action events.ComplianceActionPayload) (string, map[string]string) {
	params := map[string]string{"transaction_id": action.TransactionID}
	switch action.Action {
	case events.ActionBlock:
		return "block_transaction", params
	case events.ActionHold:
		return "place_hold", params
	case events.ActionReport:
		params["regulator"] = "AUSTRAC"
		params["report_type"] = "SMR"
		return "enqueue_regulator_report", params
	case events.ActionMonitor:
		return "watchlist_add", params
	default:
		return "watchlist_add", params
	}
}
