// Package metrics exposes Prometheus counters for the payment flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters the service reports on /metrics.
type Metrics struct {
	PaymentsStarted        prometheus.Counter
	PaymentsSubmitted      prometheus.Counter
	PaymentsFailed         prometheus.Counter
	NotificationsReceived  *prometheus.CounterVec
	NotificationsDuplicate prometheus.Counter
	NotificationsUnknown   prometheus.Counter
	Reconciliations        *prometheus.CounterVec
}

// New creates the counters and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_started_total",
			Help: "Payment attempts created.",
		}),
		PaymentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_submitted_total",
			Help: "Orders successfully submitted to a provider.",
		}),
		PaymentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_failed_total",
			Help: "Payments that failed at order submission.",
		}),
		NotificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_notifications_received_total",
			Help: "Inbound notifications by source (callback or ipn).",
		}, []string{"source"}),
		NotificationsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_notifications_duplicate_total",
			Help: "Notifications for payments already in a terminal state.",
		}),
		NotificationsUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_notifications_unknown_total",
			Help: "Notifications with an unrecognized tracking id.",
		}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Terminal transitions by resulting status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.PaymentsStarted,
		m.PaymentsSubmitted,
		m.PaymentsFailed,
		m.NotificationsReceived,
		m.NotificationsDuplicate,
		m.NotificationsUnknown,
		m.Reconciliations,
	)
	return m
}

// NewUnregistered creates counters without a registry, for tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
