package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fogfish/opts"

	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/pkg/slogx"
)

const defaultHandlerTimeout = 30 * time.Second

// ErrTimeout marks a handler invocation that exceeded its deadline. The bus
// treats it like any other failed delivery: retry, then dead-letter.
var ErrTimeout = fmt.Errorf("handler deadline exceeded")

// Handler is one analysis agent: a named pure function from a delivered
// event to the set of events to publish.
type Handler interface {
	Name() string
	Topics() []events.Type
	Handle(ctx context.Context, event *events.Envelope) ([]*events.Envelope, error)
}

// Publisher is the slice of the bus a harness publishes through.
type Publisher interface {
	Publish(ctx context.Context, event *events.Envelope) error
}

// Harness wraps a Handler with deduplication, a deadline, panic capture,
// and publishing of the emitted events.
type Harness struct {
	handler Handler
	publish Publisher
	timeout time.Duration
	window  int
	dedup   *dedupWindow
}

// Harness construction options.
var (
	// Timeout sets the per-invocation deadline.
	Timeout = opts.ForName[Harness, time.Duration]("timeout")
	// DedupWindow sets how many processed event ids are remembered.
	DedupWindow = opts.ForName[Harness, int]("window")
)

// NewHarness wraps handler, publishing emitted events through pub.
func NewHarness(handler Handler, pub Publisher, options ...opts.Option[Harness]) (*Harness, error) {
	if handler == nil {
		return nil, fmt.Errorf("a handler is required")
	}
	if pub == nil {
		return nil, fmt.Errorf("a publisher is required")
	}
	h := &Harness{
		handler: handler,
		publish: pub,
		timeout: defaultHandlerTimeout,
		window:  defaultDedupWindow,
	}
	if err := opts.Apply(h, options); err != nil {
		return nil, err
	}
	h.dedup = newDedupWindow(h.window)
	return h, nil
}

// Bind subscribes the harness on every topic the handler declares.
func (h *Harness) Bind(b *bus.Bus) ([]*bus.Subscription, error) {
	subs := make([]*bus.Subscription, 0, len(h.handler.Topics()))
	for _, topic := range h.handler.Topics() {
		sub, err := b.Subscribe(topic, h.handler.Name(), h.Invoke)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Invoke is the bus.Handler the harness registers: dedup, deadline, panic
// capture, then publish of whatever the handler emitted. The event id is
// marked as processed only after a fully successful invocation, so a retried
// delivery runs the handler again.
func (h *Harness) Invoke(ctx context.Context, env *events.Envelope) error {
	if h.dedup.observed(env.ID) {
		slog.Debug("duplicate event skipped",
			slogx.Handler(h.handler.Name()), slogx.EventID(env.ID))
		return nil
	}

	started := time.Now()
	emitted, err := h.run(ctx, env)
	elapsed := time.Since(started)
	if err != nil {
		slog.Warn("handler failed",
			slogx.Handler(h.handler.Name()), slogx.EventID(env.ID),
			slog.Duration("elapsed", elapsed), slogx.Error(err))
		return err
	}

	for _, out := range emitted {
		if out.CorrelationID == "" {
			out.CorrelationID = env.CorrelationID
		}
		if out.CorrelationID != env.CorrelationID {
			return fmt.Errorf("%s emitted %s with correlation id %q, want %q",
				h.handler.Name(), out.Type, out.CorrelationID, env.CorrelationID)
		}
		if out.Source == "" {
			out.Source = h.handler.Name()
		}
		if err := h.publish.Publish(ctx, out); err != nil {
			return fmt.Errorf("publishing %s: %w", out.Type, err)
		}
	}

	h.dedup.mark(env.ID)
	slog.Debug("handler completed",
		slogx.Handler(h.handler.Name()), slogx.Topic(string(env.Type)),
		slogx.Correlation(env.CorrelationID), slog.Duration("elapsed", elapsed),
		slog.Int("emitted", len(emitted)))
	return nil
}

// run executes the handler under its deadline on its own goroutine. A
// handler that overruns keeps running until it notices the canceled context;
// the invocation is failed regardless.
func (h *Harness) run(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type outcome struct {
		emitted []*events.Envelope
		err     error
	}
	res := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		emitted, err := h.handler.Handle(ctx, env)
		res <- outcome{emitted: emitted, err: err}
	}()

	select {
	case out := <-res:
		return out.emitted, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrTimeout, h.timeout)
	}
}
