// Package metrics has prometheus metric variables/functions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlsync_build_duration_seconds",
			Help:    "Duration of snapshot builds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{
			"result", // ok, authentication, connection, search, canceled, error
		},
	)
	metricSnapshotGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlsync_snapshot_generation",
			Help: "Generation of the currently published snapshot.",
		},
	)
	metricSnapshotAddresses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlsync_snapshot_addresses",
			Help: "Number of addresses in the currently published snapshot.",
		},
	)
	metricSnapshotAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlsync_snapshot_built_timestamp_seconds",
			Help: "Unix time at which the currently published snapshot was built.",
		},
	)
	metricBuildWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlsync_build_warnings_total",
			Help: "Non-fatal problems found while building snapshots.",
		},
		[]string{
			"kind", // duplicate_address, unresolved_member, member_without_mail, invalid_group_type
		},
	)
	metricLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlsync_lookups_total",
			Help: "Recipient lookups and their outcome.",
		},
		[]string{
			"result", // found, not_found, not_ready, invalid
		},
	)
	metricSkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlsync_refresh_skipped_total",
			Help: "Refresh ticks skipped because a build was still running.",
		},
	)
	metricHookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlsync_hook_outcomes_total",
			Help: "Outcomes returned to the mail host, per hook.",
		},
		[]string{
			"hook",    // rcpt, queue
			"outcome", // continue, accept, tempfail, reject
		},
	)
)

// BuildObserve records the duration and result of a build attempt.
func BuildObserve(result string, start time.Time) {
	metricBuildDuration.WithLabelValues(result).Observe(float64(time.Since(start)) / float64(time.Second))
}

// SnapshotPublished updates the gauges describing the published snapshot.
func SnapshotPublished(generation uint64, addresses int, builtAt time.Time) {
	metricSnapshotGeneration.Set(float64(generation))
	metricSnapshotAddresses.Set(float64(addresses))
	metricSnapshotAge.Set(float64(builtAt.Unix()))
}

// BuildWarningsAdd counts n warnings of kind.
func BuildWarningsAdd(kind string, n int) {
	if n > 0 {
		metricBuildWarnings.WithLabelValues(kind).Add(float64(n))
	}
}

// LookupInc counts a recipient lookup with its result.
func LookupInc(result string) {
	metricLookups.WithLabelValues(result).Inc()
}

// RefreshSkippedInc counts a coalesced refresh tick.
func RefreshSkippedInc() {
	metricSkippedTicks.Inc()
}

// HookOutcomeInc counts an outcome returned by a mail hook.
func HookOutcomeInc(hook, outcome string) {
	metricHookOutcomes.WithLabelValues(hook, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
