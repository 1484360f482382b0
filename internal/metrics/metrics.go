package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution metrics
var (
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmedia_resolutions_total",
			Help: "Total number of attachment resolutions",
		},
		[]string{"kind", "status"},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmedia_resolution_duration_seconds",
			Help:    "Attachment resolution duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 45, 90, 120},
		},
		[]string{"kind"},
	)

	VariantFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmedia_variant_fallbacks_total",
			Help: "Times the preferred variant failed and a lower-rank variant was used",
		},
	)

	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatmedia_tasks_in_flight",
			Help: "Number of decrypt/transcode tasks currently running",
		},
	)

	TasksDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmedia_tasks_deduplicated_total",
			Help: "Resolutions that attached to an already-running task for the same key",
		},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmedia_cache_hits_total",
			Help: "Cache index lookups answered from the on-disk output cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmedia_cache_misses_total",
			Help: "Cache index lookups that required pipeline work",
		},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmedia_cache_invalidations_total",
			Help: "Cache entries removed after the backing file disappeared or failed re-validation",
		},
	)

	CacheScanDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatmedia_cache_scan_duration_seconds",
			Help: "Duration of the lazy cache index scan",
		},
	)
)

// Decryptor metrics
var (
	DecryptAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmedia_decrypt_attempts_total",
			Help: "Decryption attempts by scheme and outcome",
		},
		[]string{"scheme", "status"},
	)
)

// Transcoder metrics
var (
	TranscodeStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmedia_transcode_stage_duration_seconds",
			Help:    "Duration of each voice transcode stage",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 45, 90},
		},
		[]string{"stage"},
	)

	TranscodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmedia_transcode_errors_total",
			Help: "Voice transcode failures by stage",
		},
		[]string{"stage"},
	)
)

// Validator metrics
var (
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmedia_validation_failures_total",
			Help: "Media validation failures by kind",
		},
		[]string{"kind"},
	)
)
