// Package metrics registers the prometheus instruments shared by the bus,
// the model adapter, and the supervisor. Correctness never depends on them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the instruments for one system instance. Tests build their own
// set on a private registry, so parallel tests never collide.
type Set struct {
	Published       *prometheus.CounterVec
	Delivered       *prometheus.CounterVec
	DeliveryRetries *prometheus.CounterVec
	DeadLettered    *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	ModelTokens     *prometheus.CounterVec
	ModelCalls      *prometheus.CounterVec
	PendingContexts prometheus.Gauge
}

// New creates and registers the instrument set on the given registerer.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "bus", Name: "published_total",
			Help: "Events accepted by local publish, per topic.",
		}, []string{"topic"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "bus", Name: "delivered_total",
			Help: "Successful handler invocations, per topic and handler.",
		}, []string{"topic", "handler"}),
		DeliveryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "bus", Name: "delivery_retries_total",
			Help: "Redelivery attempts, per topic and handler.",
		}, []string{"topic", "handler"}),
		DeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "bus", Name: "dead_lettered_total",
			Help: "Events moved to a dead-letter queue, per topic.",
		}, []string{"topic"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nfrguard", Subsystem: "bus", Name: "queue_depth",
			Help: "Current per-subscriber queue depth.",
		}, []string{"topic", "handler"}),
		ModelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "model", Name: "tokens_total",
			Help: "Tokens consumed by model calls, per operation and direction.",
		}, []string{"op", "direction"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfrguard", Subsystem: "model", Name: "calls_total",
			Help: "Model calls, per operation and outcome kind.",
		}, []string{"op", "outcome"}),
		PendingContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfrguard", Subsystem: "supervisor", Name: "pending_contexts",
			Help: "Non-terminal transaction contexts currently tracked.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			s.Published, s.Delivered, s.DeliveryRetries, s.DeadLettered,
			s.QueueDepth, s.ModelTokens, s.ModelCalls, s.PendingContexts,
		)
	}
	return s
}

// Nop returns an unregistered set, for callers that do not care.
func Nop() *Set { return New(nil) }
