package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the pipelines.
type Metrics struct {
	CliniaRequests *prometheus.CounterVec
	CliniaLatency  *prometheus.HistogramVec
	FeegowRequests *prometheus.CounterVec
	FeegowLatency  *prometheus.HistogramVec

	PipelineRuns     *prometheus.CounterVec
	RowsSaved        *prometheus.CounterVec
	RowsErrored      *prometheus.CounterVec
	QueueConfirmed   prometheus.Gauge
	QueueAvgWaitMins prometheus.Gauge

	Errors *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			CliniaRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clinia_requests_total",
				Help:      "Total Clinia API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			CliniaLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "clinia_request_duration_seconds",
				Help:      "Latency distribution for Clinia API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			FeegowRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feegow_requests_total",
				Help:      "Total Feegow API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			FeegowLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "feegow_request_duration_seconds",
				Help:      "Latency distribution for Feegow API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total pipeline runs by pipeline and outcome.",
			}, []string{"pipeline", "outcome"}),
			RowsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_saved_total",
				Help:      "Total rows persisted by pipeline.",
			}, []string{"pipeline"}),
			RowsErrored: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_errored_total",
				Help:      "Total rows that failed normalization or persistence by pipeline.",
			}, []string{"pipeline"}),
			QueueConfirmed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_confirmed_chats",
				Help:      "Confirmed open chats from the latest queue audit.",
			}),
			QueueAvgWaitMins: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_avg_wait_minutes",
				Help:      "Average wait in minutes from the latest queue audit.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.CliniaRequests,
			metricsInstance.CliniaLatency,
			metricsInstance.FeegowRequests,
			metricsInstance.FeegowLatency,
			metricsInstance.PipelineRuns,
			metricsInstance.RowsSaved,
			metricsInstance.RowsErrored,
			metricsInstance.QueueConfirmed,
			metricsInstance.QueueAvgWaitMins,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
