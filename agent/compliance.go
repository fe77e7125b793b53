package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider"
	"github.com/nfrguard/nfrguard/retrieval"
)

const complianceInstruction = `You are an AML/CTF compliance officer at an Australian bank.
Given a flagged transaction and extracts from AUSTRAC guidance, choose exactly
one action for the bank to take. Respond with only one of these words:
monitor, hold, block, report.`

// Compliance maps risk flags to regulatory actions. The model proposes an
// action from the closed set; anything else falls back to the deterministic
// rule table.
type Compliance struct {
	model provider.Provider
	index *retrieval.Index
	// Rule-table thresholds for the deterministic fallback.
	blockThreshold float64
	holdThreshold  float64
}

// NewCompliance builds the compliance handler with the given rule-table
// thresholds (0.95 block, 0.90 hold+report per deployment default).
func NewCompliance(model provider.Provider, index *retrieval.Index, blockThreshold, holdThreshold float64) *Compliance {
	return &Compliance{
		model:          model,
		index:          index,
		blockThreshold: blockThreshold,
		holdThreshold:  holdThreshold,
	}
}

func (*Compliance) Name() string { return "compliance" }

func (*Compliance) Topics() []events.Type { return []events.Type{events.RiskFlagged} }

func (c *Compliance) Handle(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	risk, ok := env.Payload.(events.RiskFlaggedPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	query := "AML/CTF obligations suspicious matter " + strings.Join(risk.Indicators, " ")
	results := retrieve(ctx, c.index, c.Name(), query, 3, retrieval.Filter{
		Regulators: []string{"AUSTRAC"},
	})

	actions, rationale := c.decide(ctx, risk, results)

	out := make([]*events.Envelope, 0, len(actions))
	for _, action := range actions {
		out = append(out, events.New(env.CorrelationID, c.Name(), events.ComplianceActionPayload{
			TransactionID: risk.TransactionID,
			Action:        action,
			Rationale:     rationale,
			Citations:     citations(results),
		}))
	}
	return out, nil
}

func (c *Compliance) decide(ctx context.Context, risk events.RiskFlaggedPayload, results []retrieval.Result) ([]events.Action, string) {
	prompt := fmt.Sprintf(
		"Transaction %s flagged with score %.2f. Indicators: %s.\nJustification: %s\n\nGuidance extracts:\n%s",
		risk.TransactionID, risk.Score, strings.Join(risk.Indicators, ", "),
		risk.Justification, contextBlock(results))

	completion, err := c.model.Complete(ctx, provider.CompletionRequest{
		System:      complianceInstruction,
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   8,
	})
	if err == nil {
		action := events.Action(strings.ToLower(strings.TrimSpace(strings.Trim(completion.Text, ".\"' \n"))))
		if events.ValidAction(action) {
			return []events.Action{action}, fmt.Sprintf("model-selected action for score %.2f", risk.Score)
		}
	}

	return c.ruleTable(risk.Score), fmt.Sprintf("rule-table action for score %.2f", risk.Score)
}

// ruleTable is the deterministic fallback. Block supersedes everything
// below it; hold and report are decided together.
func (c *Compliance) ruleTable(score float64) []events.Action {
	switch {
	case score >= c.blockThreshold:
		return []events.Action{events.ActionBlock}
	case score >= c.holdThreshold:
		return []events.Action{events.ActionHold, events.ActionReport}
	default:
		return []events.Action{events.ActionMonitor}
	}
}
