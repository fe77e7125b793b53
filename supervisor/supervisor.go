// Package supervisor tracks each transaction's progression through the
// pipeline stages. It is a pure observer: it subscribes to every topic,
// never publishes, and never mutates events.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/internal/metrics"
)

// Stage is one completed step of the causal pipeline.
type Stage string

const (
	StageRiskEvaluated     Stage = "risk_evaluated"
	StageComplianceDecided Stage = "compliance_decided"
	StageActionApplied     Stage = "action_applied"
	StageNarrated          Stage = "narrated"
)

const (
	defaultContextTTL = 10 * time.Minute
	defaultGrace      = time.Minute
	defaultCapacity   = 100_000
	sweepInterval     = 15 * time.Second
)

// Status is the externally visible state of one correlation id. It is a
// copy; mutating it changes nothing.
type Status struct {
	CorrelationID string
	Stages        map[Stage]bool
	Created       time.Time
	LastEvent     time.Time
	Terminal      bool
}

// txContext is the supervisor-owned record. Only the supervisor mutates it,
// under the map lock.
type txContext struct {
	stages    map[Stage]bool
	created   time.Time
	lastEvent time.Time
	// terminalAt is the zero time until the context turns terminal; after
	// that it starts the grace window.
	terminalAt time.Time
}

// Supervisor owns the per-correlation contexts.
type Supervisor struct {
	ttl      time.Duration
	grace    time.Duration
	capacity int
	clock    func() time.Time
	met      *metrics.Set

	mu       sync.RWMutex
	contexts *orderedmap.OrderedMap[string, *txContext]

	subs []*bus.Subscription
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Supervisor construction options.
var (
	// ContextTTL sets the idle time after which a context turns terminal.
	ContextTTL = opts.ForName[Supervisor, time.Duration]("ttl")
	// Grace sets how long a terminal context is retained for late events.
	Grace = opts.ForName[Supervisor, time.Duration]("grace")
	// Capacity bounds the context map; beyond it the least recently touched
	// context is evicted.
	Capacity = opts.ForName[Supervisor, int]("capacity")
	// WithClock overrides the time source, for tests.
	WithClock = opts.ForName[Supervisor, func() time.Time]("clock")
	// WithMetrics installs the instrument set.
	WithMetrics = opts.ForName[Supervisor, *metrics.Set]("met")
)

// New creates a supervisor. Attach it to a bus to start observing.
func New(options ...opts.Option[Supervisor]) (*Supervisor, error) {
	s := &Supervisor{
		ttl:      defaultContextTTL,
		grace:    defaultGrace,
		capacity: defaultCapacity,
		clock:    time.Now,
		contexts: orderedmap.New[string, *txContext](),
		stop:     make(chan struct{}),
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	if s.met == nil {
		s.met = metrics.Nop()
	}
	return s, nil
}

// Attach subscribes the observer to every topic and starts the eviction
// sweeper.
func (s *Supervisor) Attach(b *bus.Bus) error {
	for _, topic := range events.Types() {
		sub, err := b.Subscribe(topic, "pipeline_supervisor", s.observe)
		if err != nil {
			s.Detach()
			return fmt.Errorf("attaching supervisor to %s: %w", topic, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

// Detach unsubscribes and stops the sweeper.
func (s *Supervisor) Detach() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// observe is the bus handler. It never fails: a supervisor problem must not
// trigger redelivery of someone else's event.
func (s *Supervisor) observe(_ context.Context, env *events.Envelope) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.contexts.Get(env.CorrelationID)
	if !ok {
		tc = &txContext{stages: make(map[Stage]bool, 4), created: now}
		s.contexts.Set(env.CorrelationID, tc)
		for s.contexts.Len() > s.capacity {
			oldest := s.contexts.Oldest()
			s.contexts.Delete(oldest.Key)
		}
	} else {
		// Move to the back so capacity eviction is least-recently-touched.
		s.contexts.Delete(env.CorrelationID)
		s.contexts.Set(env.CorrelationID, tc)
	}

	tc.lastEvent = now
	if stage, ok := stageOf(env); ok {
		tc.stages[stage] = true
		if stage == StageNarrated && tc.terminalAt.IsZero() {
			tc.terminalAt = now
		}
	}

	s.met.PendingContexts.Set(float64(s.pendingLocked(now)))
	return nil
}

// stageOf maps an event to its stage marker, if it carries one.
func stageOf(env *events.Envelope) (Stage, bool) {
	switch env.Type {
	case events.RiskFlagged:
		return StageRiskEvaluated, true
	case events.ComplianceAction:
		return StageComplianceDecided, true
	case events.OpsAction:
		return StageActionApplied, true
	case events.OpsAlert:
		if alert, ok := env.Payload.(events.OpsAlertPayload); ok && alert.Channel == events.ChannelNarrative {
			return StageNarrated, true
		}
	}
	return "", false
}

// Status returns a copy of the context's state, and whether it exists.
func (s *Supervisor) Status(correlationID string) (Status, bool) {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	tc, ok := s.contexts.Get(correlationID)
	if !ok {
		return Status{}, false
	}
	stages := make(map[Stage]bool, len(tc.stages))
	for k, v := range tc.stages {
		stages[k] = v
	}
	return Status{
		CorrelationID: correlationID,
		Stages:        stages,
		Created:       tc.created,
		LastEvent:     tc.lastEvent,
		Terminal:      tc.isTerminal(now, s.ttl),
	}, true
}

// Pending counts the non-terminal contexts.
func (s *Supervisor) Pending() int {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingLocked(now)
}

func (s *Supervisor) pendingLocked(now time.Time) int {
	var n int
	for pair := s.contexts.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.isTerminal(now, s.ttl) {
			n++
		}
	}
	return n
}

func (tc *txContext) isTerminal(now time.Time, ttl time.Duration) bool {
	if !tc.terminalAt.IsZero() {
		return true
	}
	return now.Sub(tc.lastEvent) >= ttl
}

// Sweep evicts terminal contexts whose grace window has passed, and stamps
// idle-expired contexts terminal so their grace window starts.
func (s *Supervisor) Sweep() {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var evict []string
	for pair := s.contexts.Oldest(); pair != nil; pair = pair.Next() {
		tc := pair.Value
		if tc.terminalAt.IsZero() && now.Sub(tc.lastEvent) >= s.ttl {
			tc.terminalAt = now
		}
		if !tc.terminalAt.IsZero() && now.Sub(tc.terminalAt) >= s.grace {
			evict = append(evict, pair.Key)
		}
	}
	for _, key := range evict {
		s.contexts.Delete(key)
	}
	s.met.PendingContexts.Set(float64(s.pendingLocked(now)))
}

// Len returns how many contexts are currently retained, terminal included.
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contexts.Len()
}
