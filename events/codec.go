package events

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ToJSON renders an envelope for a wire transport. The payload is embedded
// under the "payload" key; the envelope's event_type doubles as the union
// discriminator on the way back in.
func ToJSON(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal a nil envelope")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// FromJSON decodes an envelope, dispatching the payload on the event_type
// marker. Unknown types fail decoding; the vocabulary is closed.
func FromJSON(data []byte) (*Envelope, error) {
	tt := gjson.GetBytes(data, "event_type")
	if !tt.Exists() {
		return nil, fmt.Errorf("event is missing event_type")
	}
	typ := Type(tt.String())

	payload, err := emptyPayload(typ)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Envelope
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", typ, err)
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", typ, err)
		}
	}

	e := raw.Envelope
	e.Payload = concrete(payload)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func emptyPayload(t Type) (any, error) {
	switch t {
	case TransactionCreated:
		return &TransactionCreatedPayload{}, nil
	case RiskFlagged:
		return &RiskFlaggedPayload{}, nil
	case ComplianceAction:
		return &ComplianceActionPayload{}, nil
	case OpsAction:
		return &OpsActionPayload{}, nil
	case OpsAlert:
		return &OpsAlertPayload{}, nil
	case CustomerMessage:
		return &CustomerMessagePayload{}, nil
	case LogLine:
		return &LogLinePayload{}, nil
	case UserQuery:
		return &UserQueryPayload{}, nil
	case UserResponse:
		return &UserResponsePayload{}, nil
	case PrivacyViolation:
		return &PrivacyViolationPayload{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

func concrete(p any) Payload {
	switch v := p.(type) {
	case *TransactionCreatedPayload:
		return *v
	case *RiskFlaggedPayload:
		return *v
	case *ComplianceActionPayload:
		return *v
	case *OpsActionPayload:
		return *v
	case *OpsAlertPayload:
		return *v
	case *CustomerMessagePayload:
		return *v
	case *LogLinePayload:
		return *v
	case *UserQueryPayload:
		return *v
	case *UserResponsePayload:
		return *v
	case *PrivacyViolationPayload:
		return *v
	default:
		panic(fmt.Sprintf("unhandled payload type %T", p))
	}
}
