// Package metrics метрики Prometheus сервиса качества наблюдений.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Подсчет пропусков
	SatellitesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_satellites_processed_total",
			Help: "Total number of satellite day files processed",
		},
		[]string{"constellation", "result"}, // result: ok, empty, error
	)

	EngineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gnss_hole_engine_duration_seconds",
			Help:    "Duration of hole counting for one satellite",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	GapEpochs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_gap_epochs_total",
			Help: "Total number of confirmed missing epochs",
		},
		[]string{"constellation"},
	)

	EngineRules = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_hole_engine_rule_hits_total",
			Help: "Number of rows matched by each transition rule",
		},
		[]string{"rule"},
	)

	// Задачи
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_task_transitions_total",
			Help: "Task status transitions",
		},
		[]string{"status"},
	)

	// Сервис конвертации
	ConverterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_converter_requests_total",
			Help: "Requests to the rinex-to-csv converter",
		},
		[]string{"operation", "outcome"}, // outcome: ok, error, breaker_open
	)

	ConverterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gnss_converter_duration_seconds",
			Help:    "Duration of a full RINEX conversion",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnss_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gnss_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gnss_websocket_clients",
			Help: "Connected websocket clients",
		},
	)
)

// RecordSatellite учитывает результат обработки одного спутника
func RecordSatellite(constellation, result string, duration time.Duration, gaps int, rules map[string]int) {
	SatellitesProcessed.WithLabelValues(constellation, result).Inc()
	if result != "ok" {
		return
	}
	EngineDuration.Observe(duration.Seconds())
	GapEpochs.WithLabelValues(constellation).Add(float64(gaps))
	for rule, n := range rules {
		EngineRules.WithLabelValues(rule).Add(float64(n))
	}
}

// RecordTaskStatus учитывает смену статуса задачи
func RecordTaskStatus(status string) {
	TaskTransitions.WithLabelValues(status).Inc()
}

// RecordConverterRequest учитывает запрос к сервису конвертации
func RecordConverterRequest(operation, outcome string) {
	ConverterRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordAPIRequest учитывает HTTP-запрос
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
