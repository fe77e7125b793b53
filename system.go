package nfrguard

import (
	"context"
	"fmt"

	"github.com/fogfish/opts"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nfrguard/nfrguard/agent"
	"github.com/nfrguard/nfrguard/bus"
	"github.com/nfrguard/nfrguard/events"
	"github.com/nfrguard/nfrguard/internal/metrics"
	"github.com/nfrguard/nfrguard/provider"
	"github.com/nfrguard/nfrguard/retrieval"
	"github.com/nfrguard/nfrguard/supervisor"
)

// System wires the bus, the model adapter, the retrieval index, the seven
// handlers, and the pipeline supervisor into one process-local instance.
// Construct one per process; tests construct their own.
type System struct {
	cfg      Config
	model    provider.Provider
	backend  provider.Backend
	remote   bus.Remote
	fallback bus.Fallback
	registry prometheus.Registerer

	met        *metrics.Set
	bus        *bus.Bus
	index      *retrieval.Index
	supervisor *supervisor.Supervisor
	knowledge  *agent.Knowledge
	harnesses  []*agent.Harness
	subs       []*bus.Subscription
	cancel     context.CancelFunc
}

// System construction options.
var (
	// WithConfig replaces the default configuration.
	WithConfig = opts.ForName[System, Config]("cfg")
	// WithBackend installs the raw model endpoint; the system wraps it in
	// the retrying adapter.
	WithBackend = opts.ForName[System, provider.Backend]("backend")
	// WithProvider installs a ready-made provider, bypassing the adapter.
	// Tests use this with providertest.Fake.
	WithProvider = opts.ForName[System, provider.Provider]("model")
	// WithRemote installs the managed remote transport.
	WithRemote = opts.ForName[System, bus.Remote]("remote")
	// WithFallback installs the fallback transport.
	WithFallback = opts.ForName[System, bus.Fallback]("fallback")
	// WithMetricsRegistry registers the instruments on the given registerer.
	WithMetricsRegistry = opts.ForName[System, prometheus.Registerer]("registry")
)

// New builds a stopped System. Call Start to subscribe everything.
func New(options ...opts.Option[System]) (*System, error) {
	s := &System{cfg: DefaultConfig()}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}

	s.met = metrics.New(s.registry)

	if s.model == nil {
		if s.backend == nil {
			return nil, fmt.Errorf("either a provider or a backend is required")
		}
		adapter, err := provider.NewAdapter(s.backend,
			provider.Dimension(s.cfg.EmbeddingDimension),
			provider.MaxAttempts(s.cfg.ModelRetryAttempts),
			provider.MaxInflight(s.cfg.ModelMaxInflight),
			provider.CompleteTimeout(s.cfg.ModelCompleteTimeout),
			provider.EmbedTimeout(s.cfg.ModelEmbedTimeout),
			provider.UsageObserver(func(op string, u provider.Usage) {
				s.met.ModelTokens.WithLabelValues(op, "prompt").Add(float64(u.PromptTokens))
				s.met.ModelTokens.WithLabelValues(op, "completion").Add(float64(u.CompletionTokens))
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("building model adapter: %w", err)
		}
		s.model = adapter
	}

	index, err := retrieval.NewIndex(s.model,
		retrieval.WithChunker(retrieval.NewChunker(s.cfg.ChunkSizeChars, s.cfg.ChunkOverlapChars)),
		retrieval.ExactCeiling(s.cfg.RetrievalExactCeiling),
	)
	if err != nil {
		return nil, fmt.Errorf("building retrieval index: %w", err)
	}
	s.index = index

	busOptions := []opts.Option[bus.Bus]{
		bus.QueueDepth(s.cfg.SubscriberQueueDepth),
		bus.BackpressureDeadline(s.cfg.PublishBackpressureDeadline),
		bus.WithMetrics(s.met),
	}
	if s.remote != nil {
		busOptions = append(busOptions, bus.WithRemote(s.remote))
	}
	if s.fallback != nil {
		busOptions = append(busOptions, bus.WithFallback(s.fallback))
	}
	b, err := bus.New(busOptions...)
	if err != nil {
		return nil, fmt.Errorf("building bus: %w", err)
	}
	s.bus = b

	sup, err := supervisor.New(
		supervisor.ContextTTL(s.cfg.ContextTTL),
		supervisor.WithMetrics(s.met),
	)
	if err != nil {
		return nil, fmt.Errorf("building supervisor: %w", err)
	}
	s.supervisor = sup

	s.knowledge = agent.NewKnowledge(s.model, b, s.cfg.KnowledgeQuietPeriod)

	handlers := []agent.Handler{
		agent.NewRisk(s.model, s.index, s.cfg.RiskScoreFlagThreshold, s.cfg.RiskAmountCeiling),
		agent.NewCompliance(s.model, s.index, s.cfg.ComplianceBlockThreshold, s.cfg.ComplianceHoldThreshold),
		agent.NewResilience(),
		agent.NewSentiment(s.model),
		agent.NewPrivacy(),
		s.knowledge,
		agent.NewAssistant(s.model, s.index, s.cfg.RetrievalTopK),
	}
	for _, h := range handlers {
		harness, err := agent.NewHarness(h, b, agent.Timeout(s.cfg.HandlerTimeout))
		if err != nil {
			return nil, fmt.Errorf("wrapping %s: %w", h.Name(), err)
		}
		s.harnesses = append(s.harnesses, harness)
	}

	return s, nil
}

// Start attaches the supervisor and every handler to the bus and launches
// the knowledge sweeper.
func (s *System) Start(ctx context.Context) error {
	if err := s.supervisor.Attach(s.bus); err != nil {
		return err
	}
	for _, harness := range s.harnesses {
		subs, err := harness.Bind(s.bus)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, subs...)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.knowledge.Start(ctx)
	return nil
}

// Shutdown stops the handlers and drains the bus within its grace window.
func (s *System) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.knowledge.Stop()
	s.supervisor.Detach()
	return s.bus.Shutdown(ctx)
}

// Publish hands an event to the bus.
func (s *System) Publish(ctx context.Context, env *events.Envelope) error {
	return s.bus.Publish(ctx, env)
}

// Ingest loads documents into the retrieval corpus.
func (s *System) Ingest(ctx context.Context, docs ...retrieval.Document) (retrieval.IngestReport, error) {
	return s.index.Ingest(ctx, docs...)
}

// Bus exposes the broker, mainly for tests and operators.
func (s *System) Bus() *bus.Bus { return s.bus }

// Index exposes the retrieval index.
func (s *System) Index() *retrieval.Index { return s.index }

// Supervisor exposes the pipeline supervisor's query surface.
func (s *System) Supervisor() *supervisor.Supervisor { return s.supervisor }
