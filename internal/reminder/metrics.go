package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs                 prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationErrors   *prometheus.CounterVec
	SubscriptionsRemoved prometheus.Counter
	RunDuration          prometheus.Histogram
}

// NewMetrics registers the reminder metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "reminder",
			Name:      "runs_total",
			Help:      "Total number of reminder job runs",
		}),
		NotificationsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "reminder",
			Name:      "notifications_sent_total",
			Help:      "Push notifications accepted by a push service",
		}),
		// Labels: reason (gone, transient, storage)
		NotificationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "reminder",
			Name:      "errors_total",
			Help:      "Failed deliveries and store lookups during reminder runs",
		}, []string{"reason"}),
		SubscriptionsRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "reminder",
			Name:      "subscriptions_removed_total",
			Help:      "Subscriptions deleted after the push service reported them gone",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskmaster",
			Subsystem: "reminder",
			Name:      "run_duration_seconds",
			Help:      "Duration of reminder job runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
