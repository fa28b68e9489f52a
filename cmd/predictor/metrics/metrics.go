// Package metrics provides Prometheus metrics instrumentation for the
// predictor.
//
// Metrics exposed:
//   - sunforecast_pipeline_runs_total: Counter of pipeline runs by status
//   - sunforecast_pipeline_duration_seconds: Histogram of pipeline run durations
//   - sunforecast_predictions_produced_total: Counter of prediction rows produced
//   - sunforecast_models_skipped_total: Counter of models skipped during a cycle
//   - sunforecast_weather_fetch_errors_total: Counter of failed provider fetches
//   - sunforecast_write_batches_total: Counter of background writes by status
//   - sunforecast_write_queue_depth: Gauge of the persistence backlog
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PipelineRunsTotal  *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
	PredictionRows     prometheus.Counter
	ModelsSkipped      prometheus.Counter
	WeatherFetchErrors prometheus.Counter
	WriteBatchesTotal  *prometheus.CounterVec
	WriteQueueDepth    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sunforecast_pipeline_runs_total",
			Help: "Total number of pipeline runs by status",
		}, []string{"status"}),

		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sunforecast_pipeline_duration_seconds",
			Help:    "Duration of full pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		PredictionRows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sunforecast_predictions_produced_total",
			Help: "Total number of prediction rows produced by inference",
		}),

		ModelsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sunforecast_models_skipped_total",
			Help: "Total number of models skipped during a cycle",
		}),

		WeatherFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sunforecast_weather_fetch_errors_total",
			Help: "Total number of failed weather provider fetches",
		}),

		WriteBatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sunforecast_write_batches_total",
			Help: "Total number of background persistence batches by status",
		}, []string{"status"}),

		WriteQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sunforecast_write_queue_depth",
			Help: "Current depth of the background persistence queue",
		}),
	}
}

// RunCompleted implements pipeline.Observer.
func (m *Metrics) RunCompleted(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
	m.PipelineDuration.Observe(duration.Seconds())
}

// WeatherFetchFailed implements pipeline.Observer.
func (m *Metrics) WeatherFetchFailed(plantID int) {
	m.WeatherFetchErrors.Inc()
}

// PredictionsProduced implements pipeline.Observer.
func (m *Metrics) PredictionsProduced(modelID, count int) {
	m.PredictionRows.Add(float64(count))
}

// ModelSkipped implements pipeline.Observer.
func (m *Metrics) ModelSkipped(modelID int) {
	m.ModelsSkipped.Inc()
}

// RecordWriteBatch counts one executed background write.
func (m *Metrics) RecordWriteBatch(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.WriteBatchesTotal.WithLabelValues(status).Inc()
}
