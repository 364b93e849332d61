package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores the Prometheus collectors used across the service.
type Metrics struct {
	MessagesRouted   *prometheus.CounterVec
	DeliveryOutcomes *prometheus.CounterVec
	BridgeInbound    *prometheus.CounterVec
	LiveConnections  prometheus.Gauge
	Errors           *prometheus.CounterVec
}

var (
	regOnce  sync.Once
	instance *Metrics
)

// Registry builds and registers the metrics singleton.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		instance = &Metrics{
			MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_routed_total",
				Help:      "Total messages accepted by the router, by origin and type.",
			}, []string{"origin", "type"}),
			DeliveryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_outcomes_total",
				Help:      "Terminal delivery outcomes per routed message.",
			}, []string{"outcome"}),
			BridgeInbound: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_inbound_total",
				Help:      "Inbound webhook events by result.",
			}, []string{"result"}),
			LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_connections",
				Help:      "Currently registered live transport handles.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			instance.MessagesRouted,
			instance.DeliveryOutcomes,
			instance.BridgeInbound,
			instance.LiveConnections,
			instance.Errors,
		)
	})
	return instance
}
