package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/provider"
	"github.com/nfrguard/nfrguard/retrieval"
)

const riskInstruction = `You are a transaction risk analyst at an Australian bank.
Given the numeric risk features and extracts from AUSTRAC and APRA guidance,
write a concise justification (2-3 sentences) for why this transaction was
flagged. Reference the guidance where it applies. Do not restate the numbers.`

// modelUnavailableJustification replaces the model's text when the adapter
// is down; the numeric decision still stands.
const modelUnavailableJustification = "(model unavailable; numeric features only)"

// Risk scores transaction.created events and flags the risky ones.
type Risk struct {
	model     provider.Provider
	index     *retrieval.Index
	threshold float64 // flag at or above
	// amountCeiling approximates the account-history baseline the core does
	// not own: amounts are scored relative to it.
	amountCeiling    float64
	homeJurisdiction string
}

// NewRisk builds the risk handler. threshold is the flag cutoff (0.8 per
// deployment default); amountCeiling is the configured absolute threshold in
// the deployment currency.
func NewRisk(model provider.Provider, index *retrieval.Index, threshold, amountCeiling float64) *Risk {
	if amountCeiling <= 0 {
		amountCeiling = 10_000
	}
	return &Risk{
		model:            model,
		index:            index,
		threshold:        threshold,
		amountCeiling:    amountCeiling,
		homeJurisdiction: "AU",
	}
}

func (*Risk) Name() string { return "transaction_risk" }

func (*Risk) Topics() []events.Type { return []events.Type{events.TransactionCreated} }

func (r *Risk) Handle(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	tx, ok := env.Payload.(events.TransactionCreatedPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	score, indicators := r.score(tx)
	if score < r.threshold {
		return nil, nil
	}

	query := fmt.Sprintf("suspicious transaction monitoring AML/CTF obligations amount %s %s destination %s",
		tx.Amount.Amount, tx.Amount.Currency, tx.DestinationJurisdiction)
	results := retrieve(ctx, r.index, r.Name(), query, 3, retrieval.Filter{
		Regulators: []string{"AUSTRAC", "APRA"},
	})

	justification, cites := r.justify(ctx, tx, score, indicators, results)

	return []*events.Envelope{
		events.New(env.CorrelationID, r.Name(), events.RiskFlaggedPayload{
			TransactionID: tx.TransactionID,
			Score:         score,
			Indicators:    indicators,
			Justification: justification,
			Citations:     cites,
		}),
	}, nil
}

// score combines the numeric features. The decision never depends on the
// model.
func (r *Risk) score(tx events.TransactionCreatedPayload) (float64, []string) {
	var score float64
	var indicators []string

	if amount, err := strconv.ParseFloat(tx.Amount.Amount, 64); err == nil {
		switch {
		case amount >= 5*r.amountCeiling:
			score += 0.45
			indicators = append(indicators, "high_amount")
		case amount >= r.amountCeiling:
			score += 0.3
			indicators = append(indicators, "high_amount")
		case amount >= r.amountCeiling/2:
			score += 0.2
			indicators = append(indicators, "elevated_amount")
		}
	}

	// The initiation timestamp carries the originator's offset, so the hour
	// is already local.
	if hour := time.Time(tx.InitiatedAt).Hour(); hour < 5 {
		score += 0.2
		indicators = append(indicators, "overnight_window")
	}

	if tx.DestinationJurisdiction != "" && tx.DestinationJurisdiction != r.homeJurisdiction {
		score += 0.3
		indicators = append(indicators, "cross_jurisdiction")
	}

	if tx.Velocity > 0 {
		score += 0.3 * math.Min(tx.Velocity, 1)
		indicators = append(indicators, "velocity")
	}

	return math.Min(score, 1), indicators
}

func (r *Risk) justify(ctx context.Context, tx events.TransactionCreatedPayload, score float64, indicators []string, results []retrieval.Result) (string, []string) {
	prompt := fmt.Sprintf(
		"Transaction %s: %s %s to %s (%s). Risk score %.2f. Indicators: %s.\n\nGuidance extracts:\n%s",
		tx.TransactionID, tx.Amount.Amount, tx.Amount.Currency,
		tx.DestinationAccount, tx.DestinationJurisdiction,
		score, strings.Join(indicators, ", "), contextBlock(results))

	completion, err := r.model.Complete(ctx, provider.CompletionRequest{
		System:      riskInstruction,
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		// Degrade, don't drop: the flag is numeric, only the prose is lost.
		return modelUnavailableJustification, nil
	}
	return strings.TrimSpace(completion.Text), citations(results)
}
