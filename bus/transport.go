package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/pkg/slogx"
)

// Remote is a managed event bus reached with a batched put. One result per
// entry; a nil result means the entry was accepted.
type Remote interface {
	PutEvents(ctx context.Context, evs []*events.Envelope) []error
}

// Fallback is the simpler notification channel used when the remote
// transport exhausts its retry budget. Idempotence is the receiver's
// problem.
type Fallback interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

const (
	forwardQueueDepth    = 1024
	forwardRetryAttempts = 3
	forwardRetryDelay    = 250 * time.Millisecond
	forwardCallTimeout   = 5 * time.Second
)

// forwarder ships locally published events to the remote transports on a
// single background worker. Best-effort: a full queue drops the event with a
// log line, and transport failure never reaches the local publisher.
type forwarder struct {
	remote   Remote
	fallback Fallback
	queue    chan *events.Envelope
	stopOnce sync.Once
	done     chan struct{}
}

func newForwarder(remote Remote, fallback Fallback) *forwarder {
	f := &forwarder{
		remote:   remote,
		fallback: fallback,
		queue:    make(chan *events.Envelope, forwardQueueDepth),
		done:     make(chan struct{}),
	}
	if remote == nil && fallback == nil {
		close(f.queue)
		close(f.done)
		return f
	}
	go f.run()
	return f
}

func (f *forwarder) offer(env *events.Envelope) {
	if f.remote == nil && f.fallback == nil {
		return
	}
	select {
	case f.queue <- env:
	default:
		slog.Warn("remote forward queue full, dropping event",
			slogx.Topic(string(env.Type)), slogx.EventID(env.ID))
	}
}

func (f *forwarder) stop() {
	f.stopOnce.Do(func() {
		if f.remote == nil && f.fallback == nil {
			return
		}
		close(f.queue)
		<-f.done
	})
}

func (f *forwarder) run() {
	defer close(f.done)
	for env := range f.queue {
		f.forwardOne(env)
	}
}

func (f *forwarder) forwardOne(env *events.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), forwardCallTimeout)
	defer cancel()

	if f.remote != nil {
		var lastErr error
		for attempt := 0; attempt < forwardRetryAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(forwardRetryDelay << attempt)
			}
			results := f.remote.PutEvents(ctx, []*events.Envelope{env})
			if len(results) == 0 || results[0] == nil {
				return
			}
			lastErr = results[0]
		}
		slog.Warn("remote transport exhausted, trying fallback",
			slogx.Topic(string(env.Type)), slogx.EventID(env.ID), slogx.Error(lastErr))
	}

	if f.fallback == nil {
		return
	}
	payload, err := events.ToJSON(env)
	if err != nil {
		slog.Error("cannot encode event for fallback transport", slogx.EventID(env.ID), slogx.Error(err))
		return
	}
	if err := f.fallback.Publish(ctx, string(env.Type), payload); err != nil {
		slog.Error("fallback transport failed, event not forwarded",
			slogx.Topic(string(env.Type)), slogx.EventID(env.ID), slogx.Error(err))
	}
}
