// Package metrics exposes Prometheus counters for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the pipeline
type Metrics struct {
	EventsIndexedTotal      prometheus.Counter
	EventsFailedTotal       prometheus.Counter
	PacketsMatchedTotal     prometheus.Counter
	AlertsCreatedTotal      *prometheus.CounterVec
	NotificationsSentTotal  *prometheus.CounterVec
	NotificationsSuppressed prometheus.Counter
	ScansTotal              *prometheus.CounterVec
	FeedPollsTotal          prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all counters registered on
// reg. Tests pass a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "soc_events_indexed_total",
			Help: "Total number of normalized events persisted",
		}),
		EventsFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "soc_events_failed_total",
			Help: "Total number of events that failed to persist",
		}),
		PacketsMatchedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "soc_packets_matched_total",
			Help: "Total number of packets that triggered at least one rule",
		}),
		AlertsCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soc_alerts_created_total",
			Help: "Total number of alerts created",
		}, []string{"severity", "source"}),
		NotificationsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soc_notifications_sent_total",
			Help: "Total number of notifications delivered",
		}, []string{"channel"}),
		NotificationsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "soc_notifications_suppressed_total",
			Help: "Total number of alerts suppressed by the notification gate",
		}),
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soc_scans_total",
			Help: "Total number of scan runs by terminal status",
		}, []string{"status"}),
		FeedPollsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "soc_feed_polls_total",
			Help: "Total number of engine feed polls",
		}),
	}
}
