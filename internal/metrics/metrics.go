// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package metrics provides the Prometheus collectors for both sides of the
// system: pipeline stage instrumentation for the batch runs and request
// instrumentation for the serving API. Everything is registered on the
// default registry and exposed at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Pipeline metrics
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	PipelineStageRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_stage_rows",
			Help: "Rows produced by the most recent run of each pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"pipeline", "outcome"},
	)

	JoinRowsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "join_rows_dropped_total",
			Help: "Order items dropped by the validated inner join",
		},
	)

	JoinIntegrityWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "join_integrity_warnings_total",
			Help: "Join integrity warnings (fan-out and row-count anomalies)",
		},
	)

	// Serving metrics
	PredictionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_requests_total",
			Help: "Prediction requests by outcome",
		},
		[]string{"mode", "outcome"},
	)

	ModelVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "model_version",
			Help: "Version of the currently loaded model bundle",
		},
		[]string{"model"},
	)
)

// ObserveStage records one pipeline stage's duration and row count.
func ObserveStage(stage string, start time.Time, rows int) {
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	PipelineStageRows.WithLabelValues(stage).Set(float64(rows))
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}
