package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingEvents   *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	IdentityLatency  *prometheus.HistogramVec
	SinkLatency      *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total inbound chat events by kind.",
			}, []string{"kind"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total replies sent by transport.",
			}, []string{"transport"}),
			Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Terminal ingestion outcomes by state and reason.",
			}, []string{"state", "reason"}),
			IdentityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "identity_lookup_duration_seconds",
				Help:      "Latency distribution for identity store lookups.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			SinkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_append_duration_seconds",
				Help:      "Latency distribution for visit sink appends.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"sink", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingEvents,
			metricsInstance.OutgoingMessages,
			metricsInstance.Outcomes,
			metricsInstance.IdentityLatency,
			metricsInstance.SinkLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
