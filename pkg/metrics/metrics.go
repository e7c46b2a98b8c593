package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are in milliseconds. Webhook handling is dominated by a
// handful of SQL round trips plus at most one provider API call.
var HistogramBuckets = []float64{
	5, 10, 25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 10000, 20000, 30000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	}
	return metric
}

// register registers c, returning the already registered collector when an
// identical one exists (tests and fx restarts build the same metrics twice).
func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

var MetricsWebhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Payment provider webhook events, partitioned by event type and reconciliation outcome.",
	Type:        "counter_vec",
	Args:        []string{"type", "outcome"},
}

var MetricsWebhookDuration = &Metric{
	ID:          "webhookDur",
	Name:        "webhook_process_dur_ms",
	Description: "Webhook reconciliation latency in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"type", "outcome"},
}

const reconcileSubsystem = "coursepay"

// ReconcileMetrics records one observation per reconciled event. A nil
// *ReconcileMetrics is valid and records nothing.
type ReconcileMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewReconcileMetrics(reg prometheus.Registerer) (*ReconcileMetrics, error) {
	events, err := register(reg, NewMetric(MetricsWebhookEvents, reconcileSubsystem))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, NewMetric(MetricsWebhookDuration, reconcileSubsystem))
	if err != nil {
		return nil, err
	}
	return &ReconcileMetrics{
		events:   events.(*prometheus.CounterVec),
		duration: duration.(*prometheus.HistogramVec),
	}, nil
}

// NewDefaultReconcileMetrics registers on the process-wide registry that the
// /metrics endpoint serves.
func NewDefaultReconcileMetrics() (*ReconcileMetrics, error) {
	return NewReconcileMetrics(prometheus.DefaultRegisterer)
}

func (m *ReconcileMetrics) Observe(eventType, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
	m.duration.WithLabelValues(eventType, outcome).Observe(MillisecondsSince(start))
}

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)
