package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
)

// eventSource is the Source stamped on every forwarded entry.
const eventSource = "nfrguard.agents"

// EventBridgeAPI is the slice of the SDK client the transport uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridge forwards events to a managed event bus. Credentials come from
// the aws.Config used to build the client; none appear here or in events.
type EventBridge struct {
	client  EventBridgeAPI
	busName string
}

var _ bus.Remote = (*EventBridge)(nil)

// NewEventBridge creates the transport against the named event bus.
func NewEventBridge(client EventBridgeAPI, busName string) *EventBridge {
	return &EventBridge{client: client, busName: busName}
}

// NewEventBridgeFromConfig builds the SDK client from an aws.Config.
func NewEventBridgeFromConfig(cfg aws.Config, busName string) *EventBridge {
	return NewEventBridge(eventbridge.NewFromConfig(cfg), busName)
}

// PutEvents ships the batch, returning one result per entry.
func (t *EventBridge) PutEvents(ctx context.Context, evs []*events.Envelope) []error {
	results := make([]error, len(evs))
	if len(evs) == 0 {
		return results
	}

	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(evs))
	for i, env := range evs {
		detail, err := events.ToJSON(env)
		if err != nil {
			results[i] = err
			continue
		}
		entries = append(entries, ebtypes.PutEventsRequestEntry{
			Source:       aws.String(eventSource),
			DetailType:   aws.String(string(env.Type)),
			Detail:       aws.String(string(detail)),
			EventBusName: aws.String(t.busName),
		})
	}

	out, err := t.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		for i := range results {
			if results[i] == nil {
				results[i] = err
			}
		}
		return results
	}

	// Entries come back in request order; map failures back onto the inputs
	// that actually made it into the batch.
	entryIdx := 0
	for i := range evs {
		if results[i] != nil {
			continue
		}
		if entryIdx < len(out.Entries) {
			entry := out.Entries[entryIdx]
			if entry.ErrorCode != nil {
				results[i] = fmt.Errorf("eventbridge: %s: %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
		entryIdx++
	}
	return results
}
