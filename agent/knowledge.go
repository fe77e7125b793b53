package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/pkg/slogx"
	"github.com/nfrguard/nfrguard/provider"
)

const knowledgeInstruction = `You write short incident narratives for bank operations staff.
Given the sequence of events observed for one transaction or interaction,
produce a plain-language summary (3-4 sentences) of what happened and why,
citing the regulatory sources involved. Write for a human on call, not for a
machine.`

const (
	defaultQuietPeriod  = 5 * time.Second
	defaultThreadTTL    = 10 * time.Minute
	defaultThreadCap    = 10_000
	knowledgeSweepRatio = 2
)

// Knowledge accumulates the events of each correlation id and narrates them:
// immediately when the pipeline applies an operational action, or after a
// quiet period otherwise.
type Knowledge struct {
	model   provider.Provider
	publish Publisher
	quiet   time.Duration
	ttl     time.Duration
	cap     int
	clock   func() time.Time

	mu      sync.Mutex
	threads *orderedmap.OrderedMap[string, *thread]

	stop     chan struct{}
	stopOnce sync.Once
	swept    sync.WaitGroup
}

// thread is the accumulated state for one correlation id. The supervisor
// owns the authoritative context lifetime; this copy can disappear at any
// moment and the handler narrates whatever is left.
type thread struct {
	observed  []*events.Envelope
	firstSeen time.Time
	lastSeen  time.Time
}

// NewKnowledge builds the knowledge handler. Quiet-period flushes publish
// through pub; pass the bus.
func NewKnowledge(model provider.Provider, pub Publisher, quiet time.Duration) *Knowledge {
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	return &Knowledge{
		model:   model,
		publish: pub,
		quiet:   quiet,
		ttl:     defaultThreadTTL,
		cap:     defaultThreadCap,
		clock:   time.Now,
		threads: orderedmap.New[string, *thread](),
		stop:    make(chan struct{}),
	}
}

func (*Knowledge) Name() string { return "knowledge" }

func (*Knowledge) Topics() []events.Type {
	return []events.Type{
		events.RiskFlagged,
		events.ComplianceAction,
		events.OpsAction,
		events.OpsAlert,
		events.PrivacyViolation,
	}
}

// Start launches the quiet-period sweeper. Call Stop (or cancel ctx) to
// shut it down.
func (k *Knowledge) Start(ctx context.Context) {
	k.swept.Add(1)
	go func() {
		defer k.swept.Done()
		ticker := time.NewTicker(k.quiet / knowledgeSweepRatio)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.flushQuiet(ctx)
			case <-ctx.Done():
				return
			case <-k.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper. Accumulated threads are abandoned; the supervisor
// still owns the authoritative lifecycle.
func (k *Knowledge) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
	k.swept.Wait()
}

func (k *Knowledge) Handle(ctx context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	// The handler's own narratives come back on ops.alert; accumulating them
	// would narrate the narration.
	if alert, ok := env.Payload.(events.OpsAlertPayload); ok && alert.Channel == events.ChannelNarrative {
		return nil, nil
	}

	k.mu.Lock()
	th := k.record(env)
	var snapshot []*events.Envelope
	if env.Type == events.OpsAction {
		snapshot = append(snapshot, th.observed...)
		k.threads.Delete(env.CorrelationID)
	}
	k.mu.Unlock()

	if snapshot == nil {
		return nil, nil
	}

	alert, err := k.narrate(ctx, env.CorrelationID, snapshot)
	if err != nil {
		// Acceptable degradation: the narrative is advisory.
		slog.Warn("narrative skipped", slogx.Correlation(env.CorrelationID), slogx.Error(err))
		return nil, nil
	}
	return []*events.Envelope{alert}, nil
}

// record must be called with the lock held.
func (k *Knowledge) record(env *events.Envelope) *thread {
	now := k.clock()
	th, ok := k.threads.Get(env.CorrelationID)
	if !ok {
		th = &thread{firstSeen: now}
		k.threads.Set(env.CorrelationID, th)
		for k.threads.Len() > k.cap {
			oldest := k.threads.Oldest()
			k.threads.Delete(oldest.Key)
		}
	}
	th.observed = append(th.observed, env)
	th.lastSeen = now
	return th
}

// flushQuiet narrates, then drops, threads that have gone quiet or outlived the TTL.
func (k *Knowledge) flushQuiet(ctx context.Context) {
	now := k.clock()

	k.mu.Lock()
	type pending struct {
		correlation string
		observed    []*events.Envelope
	}
	var due []pending
	for pair := k.threads.Oldest(); pair != nil; pair = pair.Next() {
		th := pair.Value
		switch {
		case now.Sub(th.firstSeen) > k.ttl:
			due = append(due, pending{correlation: pair.Key, observed: th.observed})
		case now.Sub(th.lastSeen) >= k.quiet:
			due = append(due, pending{correlation: pair.Key, observed: th.observed})
		}
	}
	for _, p := range due {
		k.threads.Delete(p.correlation)
	}
	k.mu.Unlock()

	for _, p := range due {
		alert, err := k.narrate(ctx, p.correlation, p.observed)
		if err != nil {
			slog.Warn("narrative skipped", slogx.Correlation(p.correlation), slogx.Error(err))
			continue
		}
		if err := k.publish.Publish(ctx, alert); err != nil {
			slog.Warn("narrative publish failed", slogx.Correlation(p.correlation), slogx.Error(err))
		}
	}
}

func (k *Knowledge) narrate(ctx context.Context, correlation string, observed []*events.Envelope) (*events.Envelope, error) {
	if len(observed) == 0 {
		return nil, fmt.Errorf("nothing to narrate")
	}

	var lines []string
	var cites []string
	seen := make(map[string]struct{})
	for _, env := range observed {
		lines = append(lines, describeEvent(env))
		for _, c := range citationsOf(env) {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				cites = append(cites, c)
			}
		}
	}

	completion, err := k.model.Complete(ctx, provider.CompletionRequest{
		System:      knowledgeInstruction,
		Prompt:      fmt.Sprintf("Events for %s:\n%s", correlation, strings.Join(lines, "\n")),
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, err
	}

	return events.New(correlation, "knowledge", events.OpsAlertPayload{
		Channel:   events.ChannelNarrative,
		Summary:   strings.TrimSpace(completion.Text),
		Citations: cites,
	}), nil
}

func describeEvent(env *events.Envelope) string {
	switch p := env.Payload.(type) {
	case events.RiskFlaggedPayload:
		return fmt.Sprintf("- risk flagged transaction %s, score %.2f (%s): %s",
			p.TransactionID, p.Score, strings.Join(p.Indicators, ", "), p.Justification)
	case events.ComplianceActionPayload:
		return fmt.Sprintf("- compliance decided %q for transaction %s: %s", p.Action, p.TransactionID, p.Rationale)
	case events.OpsActionPayload:
		return fmt.Sprintf("- operations intent %q for transaction %s", p.Intent, p.TransactionID)
	case events.OpsAlertPayload:
		return fmt.Sprintf("- %s alert (score %.2f): %s", p.Channel, p.SentimentScore, p.Excerpt)
	case events.PrivacyViolationPayload:
		kinds := make([]string, len(p.Findings))
		for i, f := range p.Findings {
			kinds[i] = f.Kind
		}
		return fmt.Sprintf("- privacy violation in %s: %s", p.SourceComponent, strings.Join(kinds, ", "))
	default:
		return fmt.Sprintf("- %s event", env.Type)
	}
}

func citationsOf(env *events.Envelope) []string {
	switch p := env.Payload.(type) {
	case events.RiskFlaggedPayload:
		return p.Citations
	case events.ComplianceActionPayload:
		return p.Citations
	case events.OpsAlertPayload:
		return p.Citations
	default:
		return nil
	}
}
