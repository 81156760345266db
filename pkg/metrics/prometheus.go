package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes a Collector's counters to a Prometheus registry.
type PrometheusCollector struct {
	source *Collector

	eventsReceived   *prometheus.Desc
	eventsProcessed  *prometheus.Desc
	alertsFired      *prometheus.Desc
	processingErrors *prometheus.Desc
	avgLatency       *prometheus.Desc
	custom           *prometheus.Desc
}

// NewPrometheusCollector creates a Prometheus collector reading from c.
// Metric names are prefixed with namespace.
func NewPrometheusCollector(namespace string, c *Collector) *PrometheusCollector {
	labels := prometheus.Labels{"service": c.ServiceName()}
	return &PrometheusCollector{
		source: c,
		eventsReceived: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "events_received_total"),
			"Events received.", nil, labels),
		eventsProcessed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "events_processed_total"),
			"Events processed.", nil, labels),
		alertsFired: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "alerts_fired_total"),
			"Alerts fired.", nil, labels),
		processingErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "processing_errors_total"),
			"Event processing errors.", nil, labels),
		avgLatency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "processing_latency_avg_seconds"),
			"Average event processing latency since start.", nil, labels),
		custom: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "custom_total"),
			"Named engine counters.", []string{"name"}, labels),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.eventsReceived
	ch <- p.eventsProcessed
	ch <- p.alertsFired
	ch <- p.processingErrors
	ch <- p.avgLatency
	ch <- p.custom
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.GetSnapshot()

	ch <- prometheus.MustNewConstMetric(p.eventsReceived, prometheus.CounterValue, float64(snap.EventsReceived))
	ch <- prometheus.MustNewConstMetric(p.eventsProcessed, prometheus.CounterValue, float64(snap.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(p.alertsFired, prometheus.CounterValue, float64(snap.AlertsFired))
	ch <- prometheus.MustNewConstMetric(p.processingErrors, prometheus.CounterValue, float64(snap.ProcessingErrors))
	ch <- prometheus.MustNewConstMetric(p.avgLatency, prometheus.GaugeValue, snap.AvgProcessingLatencyNs/1e9)

	for _, name := range p.source.customNames() {
		ch <- prometheus.MustNewConstMetric(p.custom, prometheus.CounterValue, float64(snap.CustomCounters[name]), name)
	}
}
