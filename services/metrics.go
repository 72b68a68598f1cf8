package services

import (
	"alertaraven/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	samplesForwarded prometheus.Counter
	classifications  *prometheus.CounterVec
	alertsStarted    *prometheus.CounterVec
	alertsIgnored    *prometheus.CounterVec
	alertsCancelled  prometheus.Counter
	alertsDispatched prometheus.Counter
	dispatchOutcomes *prometheus.CounterVec
}

// NewMetrics creates and registers the counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "samples_forwarded_total",
			Help:      "Accelerometer samples that passed the sample filter.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "classifications_total",
			Help:      "Classification results by label.",
		}, []string{"label"}),
		alertsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "alerts_started_total",
			Help:      "Alert countdowns started by detection source.",
		}, []string{"source"}),
		alertsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "alerts_ignored_total",
			Help:      "Triggers refused by the alert state machine by reason.",
		}, []string{"reason"}),
		alertsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "alerts_cancelled_total",
			Help:      "Alert countdowns cancelled before dispatch.",
		}),
		alertsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "alerts_dispatched_total",
			Help:      "Alert sessions that reached dispatch.",
		}),
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertaraven",
			Name:      "dispatch_outcomes_total",
			Help:      "Dispatch actions by channel and status.",
		}, []string{"channel", "status"}),
	}

	reg.MustRegister(
		m.samplesForwarded,
		m.classifications,
		m.alertsStarted,
		m.alertsIgnored,
		m.alertsCancelled,
		m.alertsDispatched,
		m.dispatchOutcomes,
	)
	return m
}

func (m *Metrics) SampleForwarded() {
	if m == nil {
		return
	}
	m.samplesForwarded.Inc()
}

func (m *Metrics) Classified(label models.Label) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(string(label)).Inc()
}

func (m *Metrics) AlertStarted(source models.DetectionSource) {
	if m == nil {
		return
	}
	m.alertsStarted.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) AlertIgnored(reason string) {
	if m == nil {
		return
	}
	m.alertsIgnored.WithLabelValues(reason).Inc()
}

func (m *Metrics) AlertCancelled() {
	if m == nil {
		return
	}
	m.alertsCancelled.Inc()
}

func (m *Metrics) AlertDispatched() {
	if m == nil {
		return
	}
	m.alertsDispatched.Inc()
}

func (m *Metrics) DispatchOutcome(o models.DispatchOutcome) {
	if m == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(string(o.Channel), string(o.Status)).Inc()
}
