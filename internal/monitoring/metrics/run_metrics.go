// Package metrics records the stage timings and scores of one train or
// predict invocation on a private Prometheus registry. The registry can be
// dumped in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

const namespace = "parity_ids"

// Recorder collects the metrics of a single invocation.
type Recorder struct {
	registry      *prometheus.Registry
	modelType     string
	stageDuration *prometheus.GaugeVec
	records       *prometheus.GaugeVec
	scores        *prometheus.GaugeVec
	predictions   *prometheus.CounterVec
	errors        *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// NewRecorder creates a recorder on a fresh registry. modelType labels every
// series and may be updated once known with SetModelType.
func NewRecorder(modelType string) *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Recorder{
		registry:  registry,
		modelType: modelType,
		stageDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of each pipeline stage in seconds",
			},
			[]string{"stage", "model_type"},
		),
		records: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records",
				Help:      "Number of records per dataset split",
			},
			[]string{"split", "model_type"},
		),
		scores: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation_score",
				Help:      "Headline evaluation metrics of the trained model",
			},
			[]string{"metric", "model_type"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Number of scored records by predicted label",
			},
			[]string{"label", "model_type"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Number of failed stages by error kind",
			},
			[]string{"stage", "kind"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time at which the invocation finished",
			},
		),
	}
}

// SetModelType changes the model_type label used for subsequent samples.
func (r *Recorder) SetModelType(modelType string) {
	r.modelType = modelType
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records the duration of a stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage, r.modelType).Set(d.Seconds())
}

// StartStage returns a function that records the time since the call.
func (r *Recorder) StartStage(stage string) func() {
	start := time.Now()
	return func() {
		r.ObserveStage(stage, time.Since(start))
	}
}

// SetRecords records the total, training and test record counts.
func (r *Recorder) SetRecords(total, train, test int) {
	r.records.WithLabelValues("total", r.modelType).Set(float64(total))
	r.records.WithLabelValues("train", r.modelType).Set(float64(train))
	r.records.WithLabelValues("test", r.modelType).Set(float64(test))
}

// SetScore records one headline evaluation metric.
func (r *Recorder) SetScore(metric string, value float64) {
	r.scores.WithLabelValues(metric, r.modelType).Set(value)
}

// IncPrediction counts one scored record.
func (r *Recorder) IncPrediction(label string) {
	r.predictions.WithLabelValues(label, r.modelType).Inc()
}

// IncError counts a failed stage under the kind of err.
func (r *Recorder) IncError(stage string, err error) {
	r.errors.WithLabelValues(stage, errorutil.Kind(err)).Inc()
}

// WriteTextfile stamps the finish time and writes every metric of the
// registry to path.
func (r *Recorder) WriteTextfile(path string) error {
	log := logger.WithComponent("metrics")

	r.lastRun.SetToCurrentTime()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("Metrics textfile written")
	return nil
}
