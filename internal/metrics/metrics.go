package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage counters and histograms, partitioned by network (and
// contract where the cardinality is bounded by the registry).

var (
	// Adapters
	FetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetch",
		Name:      "pages_total",
		Help:      "Total provider pages fetched",
	}, []string{"network"})

	FetchRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetch",
		Name:      "records_total",
		Help:      "Total raw records fetched from providers",
	}, []string{"network"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetch",
		Name:      "errors_total",
		Help:      "Total fetch failures (per page attempt)",
	}, []string{"network"})

	FetchRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetch",
		Name:      "rate_limited_total",
		Help:      "Total HTTP 429 responses that triggered a delay-and-retry",
	}, []string{"network"})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetch",
		Name:      "pacing_waits_total",
		Help:      "Total inter-page pacing waits",
	}, []string{"network"})

	// Normalizer
	NormalizedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "normalizer",
		Name:      "records_total",
		Help:      "Total canonical records produced",
	}, []string{"network"})

	SkippedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "normalizer",
		Name:      "skipped_total",
		Help:      "Total raw records skipped during normalization",
	}, []string{"network", "reason"})

	// Store
	RowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "store",
		Name:      "rows_upserted_total",
		Help:      "Total new rows inserted (dedup hits excluded)",
	}, []string{"network"})

	// Orchestrator
	RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "orchestrator",
		Name:      "cycles_total",
		Help:      "Total per-pair refresh cycles",
	}, []string{"network", "contract"})

	RefreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "orchestrator",
		Name:      "cycle_errors_total",
		Help:      "Total per-pair refresh cycles aborted by an error",
	}, []string{"network", "contract"})

	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "orchestrator",
		Name:      "cycle_duration_seconds",
		Help:      "Per-pair refresh cycle duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"network", "contract"})

	// Alerter
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts dispatched per channel",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"channel", "type"})
)
