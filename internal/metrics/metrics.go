package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal tracks supervisor checks per agent and verdict
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_checks_total",
			Help: "Total number of supervisor checks",
		},
		[]string{"agent", "verdict"},
	)

	// RetriesTotal tracks retries spawned per agent and error category
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_retries_total",
			Help: "Total number of retry runs spawned",
		},
		[]string{"agent", "category"},
	)

	// AlertsTotal tracks escalations per agent and reason
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_alerts_total",
			Help: "Total number of alerts dispatched",
		},
		[]string{"agent", "reason"},
	)

	// TriggerLatency tracks agent trigger call latency
	TriggerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overseer_trigger_latency_seconds",
			Help:    "Agent execution trigger latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// ProbeStatus tracks the last observed status per health probe
	// (0 = healthy, 1 = warning, 2 = critical)
	ProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overseer_probe_status",
			Help: "Health probe status (0 healthy, 1 warning, 2 critical)",
		},
		[]string{"probe"},
	)

	// RetryQueueDepth tracks pending entries in the delayed retry queue
	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overseer_retry_queue_depth",
			Help: "Pending entries in the delayed retry queue",
		},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overseer_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
