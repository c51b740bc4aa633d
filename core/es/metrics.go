package es

import "github.com/codewandler/esrepo-go/core/metrics"

// ESMetrics receives the measurements of repositories. Every method is
// keyed by aggregate type. Implementations must be safe for concurrent use.
type ESMetrics interface {
	// Store operations
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)
	ConcurrencyConflict(aggType string)

	// Repository operations
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer

	// Identity map
	IdentityMapHit(aggType string)
	IdentityMapMiss(aggType string)

	// Snapshots
	SnapshotHit(aggType string)
	SnapshotMiss(aggType string)
	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer
}

type nopESMetrics struct{}

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}
func (nopESMetrics) ConcurrencyConflict(string)               {}

func (nopESMetrics) RepoLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) RepoSaveDuration(string) metrics.Timer { return metrics.NopTimer() }

func (nopESMetrics) IdentityMapHit(string)  {}
func (nopESMetrics) IdentityMapMiss(string) {}

func (nopESMetrics) SnapshotHit(string)                        {}
func (nopESMetrics) SnapshotMiss(string)                       {}
func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }

// NopESMetrics returns an ESMetrics that records nothing.
func NopESMetrics() ESMetrics { return nopESMetrics{} }

// ESMetricsOption sets the metrics of a repository or read model.
type ESMetricsOption valueOption[ESMetrics]

func WithMetrics(m ESMetrics) ESMetricsOption { return ESMetricsOption{v: m} }

func (o ESMetricsOption) applyToRepository(r *repoOpts) { r.metrics = o.v }
