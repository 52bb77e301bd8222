// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package metrics provides Prometheus instrumentation for Pernocta.
//
// Instrumented surfaces:
//   - Dataset ingest (rows, skips, errors, duration)
//   - Feature engineering (per-engine duration, assembled rows)
//   - Model training (per-regressor duration and failures)
//   - Prediction serving (latency, count)
//   - DuckDB store and PostgreSQL export
//   - API requests and WebSocket clients
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dataset ingest metrics
	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_ingest_rows_total",
			Help: "Total ingested rows by dataset and outcome",
		},
		[]string{"dataset", "outcome"}, // outcome: loaded, skipped, error
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pernocta_ingest_duration_seconds",
			Help:    "Duration of dataset ingest in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}, // batch ingest scale
		},
		[]string{"dataset"},
	)

	// Feature engineering metrics
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pernocta_feature_engine_duration_seconds",
			Help:    "Per-engine feature computation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	AssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pernocta_feature_assembly_duration_seconds",
			Help:    "Full feature matrix assembly duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	AssembledRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pernocta_feature_assembled_rows",
			Help: "Rows in the most recently assembled feature matrix",
		},
	)

	AssembledColumns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pernocta_feature_assembled_columns",
			Help: "Columns in the most recently assembled feature matrix",
		},
	)

	// Training metrics
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pernocta_training_duration_seconds",
			Help:    "Per-regressor training duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}, // tree ensembles dominate
		},
		[]string{"regressor"},
	)

	TrainingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_training_failures_total",
			Help: "Total regressor training failures by reason",
		},
		[]string{"regressor", "reason"}, // reason: error, timeout
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_training_runs_total",
			Help: "Total training runs by outcome",
		},
		[]string{"outcome"}, // outcome: ok, insufficient_models, error
	)

	// Prediction metrics
	PredictionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pernocta_prediction_duration_seconds",
			Help:    "Single prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_predictions_total",
			Help: "Total predictions served by model",
		},
		[]string{"model"},
	)

	// Store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pernocta_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_duckdb_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Registry metrics
	RegistrySaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_registry_saves_total",
			Help: "Total model registry save operations by outcome",
		},
		[]string{"outcome"}, // outcome: ok, error
	)

	RegistryGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pernocta_registry_gc_runs_total",
			Help: "Total registry value-log garbage collection passes",
		},
	)

	// Export metrics
	ExportBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_export_batches_total",
			Help: "Total PostgreSQL export batches by outcome",
		},
		[]string{"outcome"}, // outcome: ok, error, breaker_open
	)

	ExportBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pernocta_export_breaker_state",
			Help: "Export circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pernocta_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pernocta_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pernocta_websocket_clients",
			Help: "Current number of connected progress-event clients",
		},
	)

	WebSocketDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pernocta_websocket_dropped_clients_total",
			Help: "Total clients dropped for not keeping up with broadcasts",
		},
	)
)

// RecordIngest records one ingest outcome for a dataset.
func RecordIngest(dataset, outcome string, n int) {
	IngestRowsTotal.WithLabelValues(dataset, outcome).Add(float64(n))
}

// RecordIngestDuration records total ingest time for a dataset.
func RecordIngestDuration(dataset string, d time.Duration) {
	IngestDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

// RecordEngineDuration records one engine's computation time.
func RecordEngineDuration(engine string, d time.Duration) {
	EngineDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordAssembly records an assembled matrix's shape and build time.
func RecordAssembly(rows, columns int, d time.Duration) {
	AssemblyDuration.Observe(d.Seconds())
	AssembledRows.Set(float64(rows))
	AssembledColumns.Set(float64(columns))
}

// RecordTraining records one regressor's training time.
func RecordTraining(regressor string, d time.Duration) {
	TrainingDuration.WithLabelValues(regressor).Observe(d.Seconds())
}

// RecordTrainingFailure records a per-regressor failure.
func RecordTrainingFailure(regressor, reason string) {
	TrainingFailures.WithLabelValues(regressor, reason).Inc()
}

// RecordTrainingRun records a full run outcome.
func RecordTrainingRun(outcome string) {
	TrainingRuns.WithLabelValues(outcome).Inc()
}

// RecordPrediction records one served prediction.
func RecordPrediction(model string, d time.Duration) {
	PredictionLatency.Observe(d.Seconds())
	PredictionsTotal.WithLabelValues(model).Inc()
}

// RecordDBQuery records a DuckDB query and its outcome.
func RecordDBQuery(operation, table string, d time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordRegistrySave records a registry save outcome.
func RecordRegistrySave(outcome string) {
	RegistrySaves.WithLabelValues(outcome).Inc()
}

// RecordRegistryGC records one completed value-log GC pass.
func RecordRegistryGC() {
	RegistryGCRuns.Inc()
}

// RecordExportBatch records one export batch outcome.
func RecordExportBatch(outcome string) {
	ExportBatchesTotal.WithLabelValues(outcome).Inc()
}

// SetExportBreakerState publishes the breaker state as a gauge.
func SetExportBreakerState(state int) {
	ExportBreakerState.Set(float64(state))
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
