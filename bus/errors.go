package bus

import (
	"errors"
	"fmt"
)

// RejectReason says why a publish was refused.
type RejectReason string

const (
	// ReasonUnknownType is a publish with an event type outside the closed
	// vocabulary.
	ReasonUnknownType RejectReason = "unknown_type"
	// ReasonBackpressure is a subscriber queue still full past the
	// backpressure deadline.
	ReasonBackpressure RejectReason = "backpressure"
	// ReasonShutdown is a publish after the bus stopped accepting events.
	ReasonShutdown RejectReason = "shutdown"
	// ReasonInvalid is a structurally invalid envelope.
	ReasonInvalid RejectReason = "invalid"
)

// RejectedError is a refused publish. The event was not enqueued anywhere.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("publish rejected: %s", e.Reason)
	}
	return fmt.Sprintf("publish rejected: %s: %s", e.Reason, e.Detail)
}

// ReasonOf extracts the rejection reason, or "" when err is not a
// rejection.
func ReasonOf(err error) RejectReason {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
