package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_observations_total",
			Help: "Total number of detection observations ingested",
		},
		[]string{"camera_id", "status"}, // status: accepted, rejected
	)

	CameraReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_camera_reports_total",
			Help: "Total number of camera capture reports ingested",
		},
		[]string{"camera_id", "status"}, // status: success, failed
	)

	// Evaluation metrics
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfeye_tick_duration_seconds",
			Help:    "Duration of one evaluation tick",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_rule_triggers_total",
			Help: "Total number of rule triggers emitted by the evaluator",
		},
		[]string{"rule_type"},
	)

	// Queue metrics
	EpisodesOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_episodes_opened_total",
			Help: "Total number of alert episodes opened",
		},
		[]string{"rule_type", "priority"},
	)

	EpisodesClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_episodes_closed_total",
			Help: "Total number of alert episodes closed",
		},
		[]string{"rule_type", "outcome"}, // outcome: sent, suppressed, exhausted
	)

	// Delivery metrics
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfeye_delivery_attempts_total",
			Help: "Total number of channel delivery attempts",
		},
		[]string{"channel", "status"}, // status: ok, error, timeout
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfeye_delivery_duration_seconds",
			Help:    "Duration of one channel delivery attempt",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// Host metrics sampled on the capture host
	HostCPUUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfeye_host_cpu_usage_percent",
			Help: "CPU usage of the monitoring host",
		},
	)

	HostMemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfeye_host_memory_usage_percent",
			Help: "Memory usage of the monitoring host",
		},
	)

	CameraConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfeye_camera_consecutive_failures",
			Help: "Current consecutive capture failure count per camera",
		},
		[]string{"camera_id"},
	)

	CameraReprojectionError = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfeye_camera_reprojection_error_px",
			Help: "Last reported calibration reprojection error per camera",
		},
		[]string{"camera_id"},
	)
)
