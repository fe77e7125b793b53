package transport

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
)

// NATS is a remote transport for self-hosted deployments: each event type
// maps to a subject under a common prefix.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

var _ bus.Remote = (*NATS)(nil)

// NewNATS wraps an established connection. An empty prefix publishes on the
// bare event type.
func NewNATS(conn *nats.Conn, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix}
}

// Connect dials url and wraps the connection with sane client defaults.
func Connect(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("nfrguard"), nats.Compression(true))
	if err != nil {
		return nil, err
	}
	return NewNATS(conn, prefix), nil
}

// PutEvents publishes each event on its subject, returning one result per
// entry.
func (t *NATS) PutEvents(_ context.Context, evs []*events.Envelope) []error {
	results := make([]error, len(evs))
	for i, env := range evs {
		data, err := events.ToJSON(env)
		if err != nil {
			results[i] = err
			continue
		}
		results[i] = t.conn.Publish(t.prefix+string(env.Type), data)
	}
	return results
}

// Close closes the underlying connection; it does not drain it first.
func (t *NATS) Close() {
	if t.conn != nil {
		t.conn.Close()
	}
}
