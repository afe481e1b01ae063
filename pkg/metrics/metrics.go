package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrator tick/cycle metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otaagent_ticks_total",
			Help: "Total number of orchestrator tick() calls",
		},
	)

	UpdateCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_update_cycles_total",
			Help: "Total number of update cycles by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	UpdateCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otaagent_update_cycle_duration_seconds",
			Help:    "Time taken to apply one module's pending update, end to end",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"module"},
	)

	PendingUpdatesQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otaagent_pending_updates_queued",
			Help: "Number of pending updates currently queued, ordered by priority",
		},
	)

	// Catalog metrics
	CatalogCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otaagent_catalog_check_duration_seconds",
			Help:    "Time taken to fetch and parse the catalog manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatalogCheckFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_catalog_check_failures_total",
			Help: "Total number of manifest fetch/parse failures by reason",
		},
		[]string{"reason"},
	)

	ArtifactDownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otaagent_artifact_download_duration_seconds",
			Help:    "Time taken to download an artifact by module",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)

	ArtifactDownloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_artifact_download_bytes_total",
			Help: "Total bytes downloaded by module",
		},
		[]string{"module"},
	)

	// Verification metrics
	VerifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_verify_failures_total",
			Help: "Total number of verification failures by module and reason",
		},
		[]string{"module", "reason"}, // too_large, digest_mismatch, signature_invalid, signature_missing
	)

	// Staging metrics
	StagingCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otaagent_staging_commit_duration_seconds",
			Help:    "Time taken to commit a staged artifact into the active slot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)

	StagingRecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_staging_recoveries_total",
			Help: "Total number of boot-time journal recoveries by resolution",
		},
		[]string{"resolution"}, // clean, staging_discarded, commit_completed
	)

	// Loader / rollback metrics
	ModuleLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_module_loads_total",
			Help: "Total number of module load attempts by module and outcome",
		},
		[]string{"module", "outcome"}, // success, init_failed, reload_failed
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_rollbacks_total",
			Help: "Total number of rollbacks to the backup slot by module and reason",
		},
		[]string{"module", "reason"},
	)

	ReloadFailuresAfterRollbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otaagent_reload_failures_after_rollback_total",
			Help: "Total number of modules that failed to reload even after rollback to backup",
		},
		[]string{"module"},
	)

	ModulesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otaagent_modules_loaded",
			Help: "Number of modules currently loaded",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		UpdateCyclesTotal,
		UpdateCycleDuration,
		PendingUpdatesQueued,
		CatalogCheckDuration,
		CatalogCheckFailuresTotal,
		ArtifactDownloadDuration,
		ArtifactDownloadBytes,
		VerifyFailuresTotal,
		StagingCommitDuration,
		StagingRecoveriesTotal,
		ModuleLoadsTotal,
		RollbacksTotal,
		ReloadFailuresAfterRollbackTotal,
		ModulesLoaded,
	)
}

// Handler returns the Prometheus HTTP handler, served by the host's
// diagnostic endpoint if it chooses to expose one. No transport is
// mandatory; this is additive observability.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
