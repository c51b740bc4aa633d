package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/metrics"
)

// ESMetrics implements es.ESMetrics using Prometheus. All series carry an
// aggregate_type label.
type ESMetrics struct {
	// Store metrics
	storeLoadDuration    *prometheus.HistogramVec
	storeAppendDuration  *prometheus.HistogramVec
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec

	// Repository metrics
	repoLoadDuration *prometheus.HistogramVec
	repoSaveDuration *prometheus.HistogramVec

	// Identity map metrics
	identityMapHits   *prometheus.CounterVec
	identityMapMisses *prometheus.CounterVec

	// Snapshot metrics
	snapshotHits         *prometheus.CounterVec
	snapshotMisses       *prometheus.CounterVec
	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec
}

// NewESMetrics creates the collectors and registers them with reg.
// Registering twice with the same Registerer panics.
func NewESMetrics(reg prometheus.Registerer) *ESMetrics {
	m := &ESMetrics{
		storeLoadDuration:    histogram("store_load_duration_seconds", "Event store load latency in seconds"),
		storeAppendDuration:  histogram("store_append_duration_seconds", "Event store create and append latency in seconds"),
		eventsAppended:       counter("events_appended_total", "Total number of persisted events"),
		concurrencyConflicts: counter("concurrency_conflicts_total", "Total number of rejected concurrent writes"),

		repoLoadDuration: histogram("repo_load_duration_seconds", "Repository load latency in seconds"),
		repoSaveDuration: histogram("repo_save_duration_seconds", "Repository save latency in seconds"),

		identityMapHits:   counter("identity_map_hits_total", "Total number of loads served by the identity map"),
		identityMapMisses: counter("identity_map_misses_total", "Total number of loads missing the identity map"),

		snapshotHits:         counter("snapshot_hits_total", "Total number of loads starting from a snapshot"),
		snapshotMisses:       counter("snapshot_misses_total", "Total number of loads without a snapshot"),
		snapshotLoadDuration: histogram("snapshot_load_duration_seconds", "Snapshot load latency in seconds"),
		snapshotSaveDuration: histogram("snapshot_save_duration_seconds", "Snapshot save latency in seconds"),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.repoLoadDuration,
		m.repoSaveDuration,
		m.identityMapHits,
		m.identityMapMisses,
		m.snapshotHits,
		m.snapshotMisses,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
	)

	return m
}

func (m *ESMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *ESMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.repoLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.repoSaveDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) IdentityMapHit(aggType string) {
	m.identityMapHits.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) IdentityMapMiss(aggType string) {
	m.identityMapMisses.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotHit(aggType string) {
	m.snapshotHits.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotMiss(aggType string) {
	m.snapshotMisses.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(aggType))
}

var _ es.ESMetrics = (*ESMetrics)(nil)
