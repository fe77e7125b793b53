package events

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
)

// Payload is the typed body of an envelope. Exactly one payload struct exists
// per event type; the marker method keeps the union closed.
type Payload interface {
	EventType() Type
}

// Envelope is the unit of communication on the bus. Envelopes are immutable
// after publish; the bus copies them into each subscriber's delivery.
type Envelope struct {
	Type          Type            `json:"event_type"`
	ID            string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     strfmt.DateTime `json:"timestamp"`
	Source        string          `json:"source"`
	Attempt       int             `json:"attempt"`
	Payload       Payload         `json:"payload"`
}

// New builds an envelope for the given payload. The bus assigns the event id
// and timestamp at publish time if they are still zero.
func New(correlationID, source string, payload Payload) *Envelope {
	return &Envelope{
		Type:          payload.EventType(),
		CorrelationID: correlationID,
		Source:        source,
		Payload:       payload,
	}
}

// Clone returns a copy of the envelope with the given attempt counter.
// Payloads are treated as values and shared; handlers never mutate them.
func (e *Envelope) Clone(attempt int) *Envelope {
	dup := *e
	dup.Attempt = attempt
	return &dup
}

// Validate checks the structural invariants required before delivery.
func (e *Envelope) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("%s event is missing a correlation id", e.Type)
	}
	if e.Payload == nil {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	if got := e.Payload.EventType(); got != e.Type {
		return fmt.Errorf("payload type %s does not match envelope type %s", got, e.Type)
	}
	return nil
}

// Time returns the envelope timestamp as a time.Time.
func (e *Envelope) Time() time.Time { return time.Time(e.Timestamp) }

// Money is a monetary amount: a decimal string plus an ISO-4217 currency
// code. Amounts never travel as floats.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// TransactionCreatedPayload is produced by the upstream ledger.
type TransactionCreatedPayload struct {
	TransactionID           string          `json:"transaction_id"`
	Amount                  Money           `json:"amount"`
	OriginAccount           string          `json:"origin_account"`
	DestinationAccount      string          `json:"destination_account"`
	DestinationJurisdiction string          `json:"destination_jurisdiction"`
	// Velocity is an upstream-computed indicator in [0,1]; the core does not
	// own account history.
	Velocity    float64         `json:"velocity,omitempty"`
	InitiatedAt strfmt.DateTime `json:"initiated_at"`
}

func (TransactionCreatedPayload) EventType() Type { return TransactionCreated }

// RiskFlaggedPayload carries a risk decision for a transaction.
type RiskFlaggedPayload struct {
	TransactionID string   `json:"transaction_id"`
	Score         float64  `json:"score"`
	Indicators    []string `json:"indicators"`
	Justification string   `json:"justification_text"`
	Citations     []string `json:"citations"`
}

func (RiskFlaggedPayload) EventType() Type { return RiskFlagged }

// Action is a compliance decision. The set is closed; anything else from the
// model falls back to the deterministic rule table.
type Action string

const (
	ActionMonitor Action = "monitor"
	ActionHold    Action = "hold"
	ActionBlock   Action = "block"
	ActionReport  Action = "report"
)

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a Action) bool {
	switch a {
	case ActionMonitor, ActionHold, ActionBlock, ActionReport:
		return true
	default:
		return false
	}
}

// ComplianceActionPayload carries one chosen action for a flagged
// transaction. A decision producing several actions publishes one event per
// action.
type ComplianceActionPayload struct {
	TransactionID string   `json:"transaction_id"`
	Action        Action   `json:"action"`
	Rationale     string   `json:"rationale_text"`
	Citations     []string `json:"citations"`
}

func (ComplianceActionPayload) EventType() Type { return ComplianceAction }

// OpsActionPayload is the operational intent derived from a compliance
// action.
type OpsActionPayload struct {
	TransactionID string            `json:"transaction_id"`
	Intent        string            `json:"intent"`
	Parameters    map[string]string `json:"parameters,omitempty"`
}

func (OpsActionPayload) EventType() Type { return OpsAction }

// Alert channels for OpsAlertPayload.
const (
	ChannelSentiment = "sentiment"
	ChannelNarrative = "narrative"
)

// OpsAlertPayload is a human-facing alert. Channel selects which of the
// optional fields are populated.
type OpsAlertPayload struct {
	Channel         string   `json:"channel"`
	SentimentScore  float64  `json:"sentiment_score,omitempty"`
	Excerpt         string   `json:"excerpt,omitempty"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
	Summary         string   `json:"summary_text,omitempty"`
	Citations       []string `json:"citations,omitempty"`
}

func (OpsAlertPayload) EventType() Type { return OpsAlert }

// CustomerMessagePayload is an inbound customer communication.
type CustomerMessagePayload struct {
	CustomerID string `json:"customer_id"`
	Body       string `json:"body"`
}

func (CustomerMessagePayload) EventType() Type { return CustomerMessage }

// LogLinePayload is a log line submitted for PII scanning.
type LogLinePayload struct {
	SourceComponent string `json:"source_component"`
	Line            string `json:"line"`
}

func (LogLinePayload) EventType() Type { return LogLine }

// UserQueryPayload is a question for the banking assistant.
type UserQueryPayload struct {
	QueryID  string `json:"query_id"`
	Question string `json:"question"`
}

func (UserQueryPayload) EventType() Type { return UserQuery }

// UserResponsePayload is the assistant's answer.
type UserResponsePayload struct {
	QueryID   string   `json:"query_id"`
	Answer    string   `json:"answer_text"`
	Citations []string `json:"citations"`
}

func (UserResponsePayload) EventType() Type { return UserResponse }

// Finding is one PII detection inside a log line.
type Finding struct {
	Kind        string `json:"kind"`
	Placeholder string `json:"placeholder"`
}

// PrivacyViolationPayload reports PII findings with a sanitized copy of the
// line. The original stream is never mutated.
type PrivacyViolationPayload struct {
	SourceComponent string    `json:"source_component"`
	Findings        []Finding `json:"findings"`
	SanitizedLine   string    `json:"sanitized_line"`
}

func (PrivacyViolationPayload) EventType() Type { return PrivacyViolation }
