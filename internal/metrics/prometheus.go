package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metric names.
const (
	MetricCheckoutSessionsTotal = "gift_checkout_sessions_total"
	MetricWebhookEventsTotal    = "gift_webhook_events_total"
	MetricGiftTransitionsTotal  = "gift_records_total"
	MetricEventsDroppedTotal    = "gift_events_dropped_total"
	MetricConfirmationsTotal    = "gift_deferred_confirmations_total"
)

// Prometheus keeps counters in a registry served at /metrics.
type Prometheus struct {
	checkoutSessions *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	giftTransitions  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	confirmations    *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCheckoutSessionsTotal,
			Help: "Checkout session requests by outcome",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricWebhookEventsTotal,
			Help: "Stripe webhook deliveries by event type and outcome",
		}, []string{"type", "outcome"}),
		giftTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGiftTransitionsTotal,
			Help: "Gift records entering a status",
		}, []string{"status"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsDroppedTotal,
			Help: "Stripe events acknowledged without recording a gift",
		}, []string{"reason"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricConfirmationsTotal,
			Help: "Deferred payment confirmations by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(p.checkoutSessions, p.webhookEvents, p.giftTransitions, p.eventsDropped, p.confirmations)
	return p
}

func (p *Prometheus) CheckoutSession(_ context.Context, outcome string) {
	p.checkoutSessions.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) WebhookEvent(_ context.Context, eventType, outcome string) {
	p.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (p *Prometheus) GiftTransition(_ context.Context, status string) {
	p.giftTransitions.WithLabelValues(status).Inc()
}

func (p *Prometheus) EventDropped(_ context.Context, reason string) {
	p.eventsDropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) Confirmation(_ context.Context, outcome string) {
	p.confirmations.WithLabelValues(outcome).Inc()
}
