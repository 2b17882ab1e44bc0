package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges shared by the central API and the
// spot simulators.  A nil *Metrics is valid and records nothing.
type Metrics struct {
	AdmissionTotal  *prometheus.CounterVec // result=admitted|validation|not_found|busy|conflict|pricing|error
	PublishTotal    *prometheus.CounterVec // result=ok|retried|failed
	ReconcileTotal  *prometheus.CounterVec // result=ok|failed
	TransitionTotal *prometheus.CounterVec // status, source=reservation|ambient
	ReportErrors    prometheus.Counter
	BacklogDepth    *prometheus.GaugeVec   // spot
	ConsumerEvents  *prometheus.CounterVec // result=accepted|rejected
	Reconnects      *prometheus.CounterVec // spot
	SpotsFailed     prometheus.Counter
	PricingLatency  prometheus.Histogram
}

// New builds the metric set and registers it with reg.  Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		AdmissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_admission_total",
				Help: "Reservation admission attempts by result",
			},
			[]string{"result"},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_publish_total",
				Help: "Reservation-created publishes by result",
			},
			[]string{"result"},
		),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_reconcile_total",
				Help: "Republish attempts for unpublished reservations by result",
			},
			[]string{"result"},
		),
		TransitionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spot_transition_total",
				Help: "Spot status transitions by target status and source",
			},
			[]string{"status", "source"},
		),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spot_status_report_errors_total",
			Help: "Failed status updates towards the central API",
		}),
		BacklogDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spot_backlog_depth",
				Help: "Number of upcoming reservation windows held by a spot",
			},
			[]string{"spot"},
		),
		ConsumerEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spot_consumer_events_total",
				Help: "Envelopes received by spot consumers by result",
			},
			[]string{"result"},
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spot_consumer_reconnects_total",
				Help: "Consumer resubscriptions after broker connection loss",
			},
			[]string{"spot"},
		),
		SpotsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spot_instances_failed_total",
			Help: "Spot instances stopped by a fatal consumer error",
		}),
		PricingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_lookup_latency_ms",
			Help:    "Latency of rate service lookups (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
		}),
	}

	reg.MustRegister(
		m.AdmissionTotal,
		m.PublishTotal,
		m.ReconcileTotal,
		m.TransitionTotal,
		m.ReportErrors,
		m.BacklogDepth,
		m.ConsumerEvents,
		m.Reconnects,
		m.SpotsFailed,
		m.PricingLatency,
	)
	return m
}

func (m *Metrics) Admission(result string) {
	if m != nil {
		m.AdmissionTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Publish(result string) {
	if m != nil {
		m.PublishTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Reconcile(result string) {
	if m != nil {
		m.ReconcileTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Transition(status, source string) {
	if m != nil {
		m.TransitionTotal.WithLabelValues(status, source).Inc()
	}
}

func (m *Metrics) ReportFailed() {
	if m != nil {
		m.ReportErrors.Inc()
	}
}

func (m *Metrics) Backlog(spot string, depth int) {
	if m != nil {
		m.BacklogDepth.WithLabelValues(spot).Set(float64(depth))
	}
}

func (m *Metrics) ConsumerEvent(result string) {
	if m != nil {
		m.ConsumerEvents.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Reconnect(spot string) {
	if m != nil {
		m.Reconnects.WithLabelValues(spot).Inc()
	}
}

func (m *Metrics) SpotFailed() {
	if m != nil {
		m.SpotsFailed.Inc()
	}
}

func (m *Metrics) ObservePricing(ms float64) {
	if m != nil {
		m.PricingLatency.Observe(ms)
	}
}
