package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records payment reconciliation outcomes.
type CheckoutMetrics struct {
	ordersCreated   *prometheus.CounterVec
	emailsSent      prometheus.Counter
	emailsFailed    prometheus.Counter
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created, labelled by which writer won the race.",
	}, []string{"writer"})
	emailsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confirmation_emails_sent_total",
		Help: "Order confirmation emails dispatched.",
	})
	emailsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confirmation_emails_failed_total",
		Help: "Order confirmation emails that failed to send.",
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook events received, labelled by type and outcome.",
	}, []string{"type", "outcome"})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_webhook_duration_seconds",
		Help:    "Duration of Stripe webhook handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(ordersCreated, emailsSent, emailsFailed, webhookEvents, webhookDuration)
	return &CheckoutMetrics{
		ordersCreated:   ordersCreated,
		emailsSent:      emailsSent,
		emailsFailed:    emailsFailed,
		webhookEvents:   webhookEvents,
		webhookDuration: webhookDuration,
	}
}

// IncOrderCreated increments the order counter for the given writer
// ("checkout" or "webhook").
func (m *CheckoutMetrics) IncOrderCreated(writer string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(writer)).Inc()
}

// IncEmailSent increments the dispatched-email counter.
func (m *CheckoutMetrics) IncEmailSent() {
	if m == nil || m.emailsSent == nil {
		return
	}
	m.emailsSent.Inc()
}

// IncEmailFailed increments the failed-email counter.
func (m *CheckoutMetrics) IncEmailFailed() {
	if m == nil || m.emailsFailed == nil {
		return
	}
	m.emailsFailed.Inc()
}

// IncWebhookEvent counts a webhook event with its outcome
// ("processed", "duplicate", "ignored", "failed").
func (m *CheckoutMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveWebhookDuration records how long a webhook event took to handle.
func (m *CheckoutMetrics) ObserveWebhookDuration(eventType string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
