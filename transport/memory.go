package transport

import (
	"context"
	"sync"

	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
)

// MemoryRemote is an in-memory Remote for tests and dry runs. Set Fail to
// make every put fail.
type MemoryRemote struct {
	mu     sync.Mutex
	Events []*events.Envelope
	Fail   error
}

var _ bus.Remote = (*MemoryRemote)(nil)

func (m *MemoryRemote) PutEvents(_ context.Context, evs []*events.Envelope) []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]error, len(evs))
	for i, env := range evs {
		if m.Fail != nil {
			results[i] = m.Fail
			continue
		}
		m.Events = append(m.Events, env)
	}
	return results
}

// Received returns a copy of the captured events.
func (m *MemoryRemote) Received() []*events.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*events.Envelope, len(m.Events))
	copy(out, m.Events)
	return out
}

// MemoryFallback is an in-memory Fallback for tests.
type MemoryFallback struct {
	mu       sync.Mutex
	Messages map[string][][]byte
	Fail     error
}

var _ bus.Fallback = (*MemoryFallback)(nil)

func (m *MemoryFallback) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if m.Messages == nil {
		m.Messages = make(map[string][][]byte)
	}
	m.Messages[topic] = append(m.Messages[topic], payload)
	return nil
}

// Count returns how many messages the topic has received.
func (m *MemoryFallback) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages[topic])
}
