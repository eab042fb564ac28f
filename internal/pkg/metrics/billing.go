// Package metrics exposes Prometheus counters for the billing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b2automate_billing_webhook_events_total",
			Help: "Provider events handled by the reconciler, by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	manualReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b2automate_billing_manual_reviews_total",
			Help: "Manual payment review attempts, by decision and result",
		},
		[]string{"decision", "result"},
	)

	downgradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b2automate_billing_downgrades_total",
			Help: "Tenants downgraded to the free plan, by reason",
		},
		[]string{"reason"},
	)

	usageConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b2automate_ai_usage_consume_total",
			Help: "AI usage consumption attempts, by result",
		},
		[]string{"result"},
	)
)

// ObserveWebhookEvent counts one handled provider event.
func ObserveWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveManualReview counts one approve/reject attempt.
func ObserveManualReview(decision, result string) {
	manualReviewsTotal.WithLabelValues(decision, result).Inc()
}

// ObserveDowngrade counts one forced downgrade.
func ObserveDowngrade(reason string) {
	downgradesTotal.WithLabelValues(reason).Inc()
}

// ObserveUsageConsume counts one usage consumption attempt.
func ObserveUsageConsume(result string) {
	usageConsumeTotal.WithLabelValues(result).Inc()
}
