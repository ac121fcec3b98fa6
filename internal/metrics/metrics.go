package metrics

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotaUnits counts API quota units consumed, by operation.
	QuotaUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_quota_units_total",
			Help: "Total API quota units consumed, by operation.",
		},
		[]string{"operation"},
	)

	// QuotaDeferred counts acquisitions rejected or deferred by the quota guard.
	QuotaDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_quota_deferred_total",
			Help: "Total quota acquisitions deferred because the budget was exhausted.",
		},
	)

	// APICalls counts external API calls, by operation and outcome.
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_api_calls_total",
			Help: "Total external API calls, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// CacheHits counts cache lookups served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_cache_hits_total",
			Help: "Total cache hits.",
		},
	)

	// CacheMisses counts cache lookups that fell through to a fetch.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_cache_misses_total",
			Help: "Total cache misses.",
		},
	)

	// CacheStaleServed counts fetch failures answered with an expired value.
	CacheStaleServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_cache_stale_served_total",
			Help: "Total fetch failures answered with a stale cached value.",
		},
	)

	// JobRuns counts scheduled job executions, by job and status.
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_job_runs_total",
			Help: "Total scheduled job runs, by job and status.",
		},
		[]string{"job", "status"},
	)

	// JobDuration observes scheduled job run time, by job.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_job_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds, by job.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// EventsPublished counts domain events published to the broker, by event.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_published_total",
			Help: "Total domain events published, by event type.",
		},
		[]string{"event"},
	)
)

// RegisterPoolStats exposes live pgxpool statistics as gauges. Call once at
// startup after the pool is created.
func RegisterPoolStats(pool *pgxpool.Pool) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tracker_db_connection_pool_active",
			Help: "Number of active database connections.",
		},
		func() float64 {
			return float64(pool.Stat().AcquiredConns())
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tracker_db_connection_pool_idle",
			Help: "Number of idle database connections.",
		},
		func() float64 {
			return float64(pool.Stat().IdleConns())
		},
	))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
