package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "messageflow"

// Metrics owns a private registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	LicensesIssued *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	Downloads      *prometheus.CounterVec
	CheckoutErrors prometheus.Counter
	SaveErrors     prometheus.Counter
}

// New registers every collector. storedLicenses, when non-nil, backs a gauge
// of the current store size.
func New(storedLicenses func() int) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		LicensesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_issued_total",
			Help:      "Licenses issued from completed checkouts.",
		}, []string{"plan"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Stripe webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_verifications_total",
			Help:      "License verification requests by result.",
		}, []string{"result"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Artifact downloads by result.",
		}, []string{"result"}),
		CheckoutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_errors_total",
			Help:      "Checkout sessions Stripe refused to create.",
		}),
		SaveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_save_errors_total",
			Help:      "License snapshot writes that failed.",
		}),
	}

	registry.MustRegister(m.LicensesIssued, m.WebhookEvents, m.Verifications, m.Downloads, m.CheckoutErrors, m.SaveErrors)

	if storedLicenses != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "licenses_stored",
			Help:      "Licenses currently held by the store.",
		}, func() float64 { return float64(storedLicenses()) }))
	}

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
