package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulwark_attempts_total",
		Help: "Attempts dispatched, by destination, strategy and outcome",
	}, []string{"destination", "strategy", "outcome"})

	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulwark_attempt_duration_seconds",
		Help:    "Wall-clock duration of individual attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"destination", "strategy"})

	RetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulwark_retry_delay_seconds",
		Help:    "Computed backoff delays between attempts",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	RejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulwark_rejected_total",
		Help: "Invocations rejected by an open circuit breaker",
	}, []string{"destination"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bulwark_breaker_state",
		Help: "Circuit state per destination (0=closed, 1=half_open, 2=open)",
	}, []string{"destination"})

	BreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulwark_breaker_trips_total",
		Help: "Closed to open transitions across all destinations",
	})

	RecoveryActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulwark_recovery_actions_total",
		Help: "Recovery actions applied between attempts",
	}, []string{"action"})

	StrategySwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulwark_strategy_switches_total",
		Help: "Strategy rotations triggered by switchable failures",
	}, []string{"destination"})

	DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulwark_dlq_depth",
		Help: "Entries currently parked in the dead letter queue",
	})

	DLQReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulwark_dlq_replays_total",
		Help: "Dead letter replay attempts, by result",
	}, []string{"result"})

	ArchiveFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulwark_archive_flush_failures_total",
		Help: "Attempt archive batches dropped after exhausting retries",
	})

	ArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulwark_archive_dropped_total",
		Help: "Attempt records dropped because the archive buffer was full",
	})

	ArchiveBufferUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulwark_archive_buffer_usage",
		Help: "Records currently buffered ahead of the attempt archive",
	})

	DBPoolUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulwark_db_pool_usage_percent",
		Help: "Database connection pool usage percentage",
	})
)
