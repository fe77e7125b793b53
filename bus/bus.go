package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/internal/metrics"
	"github.com/nfrguard/nfrguard/pkg/slogx"
	"github.com/nfrguard/nfrguard/pkg/uuidx"
)

const (
	defaultQueueDepth   = 1024
	defaultBackpressure = 2 * time.Second
	defaultReplayCap    = 10_000
	defaultGrace        = 30 * time.Second
)

// defaultRetrySchedule drives redelivery of failed invocations; the attempt
// counter is incremented before each retry.
var defaultRetrySchedule = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Handler consumes one delivered event. A non-nil error fails the delivery
// and triggers the retry schedule.
type Handler func(ctx context.Context, event *events.Envelope) error

// Bus is the in-process broker. Construct with New; a zero Bus is not
// usable.
type Bus struct {
	queueDepth    int
	backpressure  time.Duration
	retrySchedule []time.Duration
	deadLetterCap int
	replayCap     int
	grace         time.Duration
	remote        Remote
	fallback      Fallback
	met           *metrics.Set
	clock         func() time.Time

	topics  *haxmap.Map[string, *topic]
	dead    *haxmap.Map[string, *deadLetterQueue]
	forward *forwarder

	ctx       context.Context
	cancel    context.CancelFunc
	accepting atomic.Bool
	inflight  atomic.Int64
	wg        sync.WaitGroup
}

// Bus construction options.
var (
	// QueueDepth bounds each per-subscriber queue.
	QueueDepth = opts.ForName[Bus, int]("queueDepth")
	// BackpressureDeadline bounds how long a publish blocks on a full queue.
	BackpressureDeadline = opts.ForName[Bus, time.Duration]("backpressure")
	// RetrySchedule sets the redelivery delays; its length is the retry
	// budget before dead-lettering.
	RetrySchedule = opts.ForName[Bus, []time.Duration]("retrySchedule")
	// DeadLetterCap bounds each per-topic dead-letter queue.
	DeadLetterCap = opts.ForName[Bus, int]("deadLetterCap")
	// ReplayCap bounds the per-topic retained event log.
	ReplayCap = opts.ForName[Bus, int]("replayCap")
	// ShutdownGrace bounds queue draining at shutdown.
	ShutdownGrace = opts.ForName[Bus, time.Duration]("grace")
	// WithRemote installs the managed remote transport.
	WithRemote = opts.ForName[Bus, Remote]("remote")
	// WithFallback installs the fallback transport.
	WithFallback = opts.ForName[Bus, Fallback]("fallback")
	// WithMetrics installs the instrument set.
	WithMetrics = opts.ForName[Bus, *metrics.Set]("met")
	// WithClock overrides the timestamp source, for tests.
	WithClock = opts.ForName[Bus, func() time.Time]("clock")
)

// New creates a bus ready for Subscribe and Publish.
func New(options ...opts.Option[Bus]) (*Bus, error) {
	b := &Bus{
		queueDepth:    defaultQueueDepth,
		backpressure:  defaultBackpressure,
		retrySchedule: defaultRetrySchedule,
		deadLetterCap: defaultDeadLetterCap,
		replayCap:     defaultReplayCap,
		grace:         defaultGrace,
		clock:         time.Now,
		topics:        haxmap.New[string, *topic](),
		dead:          haxmap.New[string, *deadLetterQueue](),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.met == nil {
		b.met = metrics.Nop()
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.forward = newForwarder(b.remote, b.fallback)
	b.accepting.Store(true)
	return b, nil
}

type topic struct {
	name events.Type

	mu   sync.RWMutex
	subs []*Subscription

	logMu sync.RWMutex
	log   []*events.Envelope
}

func (b *Bus) topic(t events.Type) *topic {
	top, _ := b.topics.GetOrCompute(string(t), func() *topic {
		return &topic{name: t}
	})
	return top
}

func (t *topic) snapshotSubs() []*Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Subscription, len(t.subs))
	copy(out, t.subs)
	return out
}

func (t *topic) retain(env *events.Envelope, max int) {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	if len(t.log) >= max {
		t.log = append(t.log[:0], t.log[len(t.log)-max+1:]...)
	}
	t.log = append(t.log, env)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID      string
	Topic   events.Type
	Name    string
	handler Handler
	queue   chan *events.Envelope
	closed  atomic.Bool
	close   sync.Once
	remove  func()
}

// Unsubscribe removes the subscription and stops its worker once the queue
// drains. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.close.Do(func() {
		if s.remove != nil {
			s.remove()
		}
		s.closed.Store(true)
		close(s.queue)
	})
}

// Subscribe registers a named handler on a topic. Delivery starts with the
// first event published after Subscribe returns.
func (b *Bus) Subscribe(t events.Type, name string, h Handler) (*Subscription, error) {
	if !t.Valid() {
		return nil, &RejectedError{Reason: ReasonUnknownType, Detail: string(t)}
	}
	if h == nil {
		return nil, fmt.Errorf("a handler is required")
	}

	top := b.topic(t)
	sub := &Subscription{
		ID:      uuidx.NewString(),
		Topic:   t,
		Name:    name,
		handler: h,
		queue:   make(chan *events.Envelope, b.queueDepth),
	}
	sub.remove = func() {
		top.mu.Lock()
		defer top.mu.Unlock()
		for i, existing := range top.subs {
			if existing.ID == sub.ID {
				top.subs = append(top.subs[:i], top.subs[i+1:]...)
				break
			}
		}
	}

	top.mu.Lock()
	top.subs = append(top.subs, sub)
	top.mu.Unlock()

	b.wg.Add(1)
	go b.runWorker(sub)
	return sub, nil
}

// Publish validates, stamps, and fans the event out to local subscribers,
// then forwards it to the remote transports asynchronously. A returned nil
// means every local subscriber either received the event or had already
// unsubscribed.
func (b *Bus) Publish(ctx context.Context, env *events.Envelope) error {
	if env == nil {
		return &RejectedError{Reason: ReasonInvalid, Detail: "nil event"}
	}
	if !b.accepting.Load() {
		return &RejectedError{Reason: ReasonShutdown}
	}
	if !env.Type.Valid() {
		return &RejectedError{Reason: ReasonUnknownType, Detail: string(env.Type)}
	}
	if env.ID == "" {
		env.ID = uuidx.NewString()
	}
	if env.Time().IsZero() {
		env.Timestamp = strfmt.DateTime(b.clock())
	}
	if err := env.Validate(); err != nil {
		return &RejectedError{Reason: ReasonInvalid, Detail: err.Error()}
	}

	top := b.topic(env.Type)
	top.retain(env, b.replayCap)

	for _, sub := range top.snapshotSubs() {
		if err := b.enqueue(ctx, sub, env); err != nil {
			return err
		}
	}

	b.met.Published.WithLabelValues(string(env.Type)).Inc()
	b.forward.offer(env)
	return nil
}

func (b *Bus) enqueue(ctx context.Context, sub *Subscription, env *events.Envelope) (err error) {
	if sub.closed.Load() {
		return nil
	}
	// The subscription can close between the flag check and the send; treat
	// that exactly like the flag having been set.
	defer func() {
		if recover() != nil {
			err = nil
		}
	}()

	// Each subscriber gets its own copy so redelivery counters never leak
	// across workers.
	delivery := env.Clone(env.Attempt)
	select {
	case sub.queue <- delivery:
		b.met.QueueDepth.WithLabelValues(string(sub.Topic), sub.Name).Set(float64(len(sub.queue)))
		return nil
	default:
	}

	deadline := time.NewTimer(b.backpressure)
	defer deadline.Stop()
	select {
	case sub.queue <- delivery:
		return nil
	case <-deadline.C:
		return &RejectedError{Reason: ReasonBackpressure, Detail: fmt.Sprintf("%s/%s", sub.Topic, sub.Name)}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) runWorker(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case env, ok := <-sub.queue:
			if !ok {
				return
			}
			b.met.QueueDepth.WithLabelValues(string(sub.Topic), sub.Name).Set(float64(len(sub.queue)))
			b.deliver(sub, env)
		case <-b.ctx.Done():
			return
		}
	}
}

// deliver invokes the handler, retrying per the schedule with the attempt
// counter incremented, then dead-letters.
func (b *Bus) deliver(sub *Subscription, env *events.Envelope) {
	b.inflight.Add(1)
	defer b.inflight.Add(-1)

	current := env
	for retries := 0; ; retries++ {
		err := b.invoke(sub, current)
		if err == nil {
			b.met.Delivered.WithLabelValues(string(sub.Topic), sub.Name).Inc()
			return
		}
		if retries == len(b.retrySchedule) {
			b.deadLetter(current, fmt.Sprintf("%s: %v", sub.Name, err))
			return
		}

		slog.Warn("delivery failed, scheduling retry",
			slogx.Topic(string(sub.Topic)), slogx.Handler(sub.Name),
			slogx.EventID(current.ID), slog.Int("attempt", current.Attempt), slogx.Error(err))
		b.met.DeliveryRetries.WithLabelValues(string(sub.Topic), sub.Name).Inc()

		wait := time.NewTimer(b.retrySchedule[retries])
		select {
		case <-wait.C:
		case <-b.ctx.Done():
			wait.Stop()
			slog.Warn("abandoning redelivery at shutdown",
				slogx.Topic(string(sub.Topic)), slogx.EventID(current.ID))
			return
		}
		current = env.Clone(env.Attempt + retries + 1)
	}
}

func (b *Bus) invoke(sub *Subscription, env *events.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler(b.ctx, env)
}

func (b *Bus) deadLetter(env *events.Envelope, reason string) {
	q, _ := b.dead.GetOrCompute(string(env.Type), func() *deadLetterQueue {
		return newDeadLetterQueue(b.deadLetterCap)
	})
	q.add(DeadLetter{Event: env, Reason: reason, At: b.clock()})
	b.met.DeadLettered.WithLabelValues(string(env.Type)).Inc()
	slog.Error("event dead-lettered",
		slogx.Topic(string(env.Type)), slogx.EventID(env.ID),
		slog.Int("attempt", env.Attempt), slog.String("reason", reason))
}

// DeadLetters returns a copy of the topic's dead-letter entries.
func (b *Bus) DeadLetters(t events.Type) []DeadLetter {
	q, ok := b.dead.Get(string(t))
	if !ok {
		return nil
	}
	return q.snapshot()
}

// DeadLetterEvictions returns how many entries the topic's queue has
// dropped to stay within its cap.
func (b *Bus) DeadLetterEvictions(t events.Type) uint64 {
	q, ok := b.dead.Get(string(t))
	if !ok {
		return 0
	}
	return q.evictedCount()
}

// Replay re-emits retained events for the topic published at or after
// since, to all current subscribers. Handler idempotence makes this safe.
func (b *Bus) Replay(ctx context.Context, t events.Type, since time.Time) (int, error) {
	if !t.Valid() {
		return 0, &RejectedError{Reason: ReasonUnknownType, Detail: string(t)}
	}
	top := b.topic(t)

	top.logMu.RLock()
	past := make([]*events.Envelope, 0, len(top.log))
	for _, env := range top.log {
		if !env.Time().Before(since) {
			past = append(past, env)
		}
	}
	top.logMu.RUnlock()

	subs := top.snapshotSubs()
	for _, env := range past {
		for _, sub := range subs {
			if err := b.enqueue(ctx, sub, env); err != nil {
				return 0, err
			}
		}
	}
	return len(past), nil
}

// Shutdown stops accepting publishes, drains subscriber queues within the
// grace window, and cancels whatever is still running after it. In-flight
// handler invocations past grace-end are logged as orphaned.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.accepting.Store(false)
	b.forward.stop()

	b.topics.ForEach(func(_ string, top *topic) bool {
		for _, sub := range top.snapshotSubs() {
			sub.Unsubscribe()
		}
		return true
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(b.grace)
	defer grace.Stop()
	select {
	case <-done:
		b.cancel()
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	if n := b.inflight.Load(); n > 0 {
		slog.Warn("handlers orphaned at shutdown", slog.Int64("count", n))
	}
	b.cancel()
	return ctx.Err()
}
