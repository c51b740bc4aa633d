package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/estests/domain"
)

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var n uint64
		for _, m := range mf.GetMetric() {
			n += m.GetHistogram().GetSampleCount()
		}
		return n
	}
	return 0
}

func TestNewESMetrics_registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)
	require.NotNil(t, m)

	m.StoreLoadDuration("user").ObserveDuration()
	m.EventsAppended("user", 5)
	m.IdentityMapHit("user")
	m.SnapshotMiss("user")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["esrepo_store_load_duration_seconds"])
	assert.True(t, names["esrepo_events_appended_total"])
	assert.True(t, names["esrepo_identity_map_hits_total"])
	assert.True(t, names["esrepo_snapshot_misses_total"])
	assert.Equal(t, float64(5), testutil.ToFloat64(m.eventsAppended.WithLabelValues("user")))

	require.Panics(t, func() { NewESMetrics(reg) })
}

func TestESMetrics_repository(t *testing.T) {
	var (
		ctx  = t.Context()
		reg  = prometheus.NewRegistry()
		m    = NewESMetrics(reg)
		env  = es.StartTestEnv(t, es.WithMetrics(m))
		repo = es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User]())
		typ  = repo.AggregateType().String()
	)

	u, err := domain.NewUser("u1", "John")
	require.NoError(t, err)
	require.NoError(t, repo.SaveAggregateRoot(ctx, u))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsAppended.WithLabelValues(typ)))
	assert.Equal(t, uint64(1), histogramCount(t, reg, "esrepo_repo_save_duration_seconds"))

	loaded, err := repo.GetAggregateRoot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.identityMapMisses.WithLabelValues(typ)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.snapshotMisses.WithLabelValues(typ)))

	_, err = repo.GetAggregateRoot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.identityMapHits.WithLabelValues(typ)))

	_, err = repo.TakeSnapshot(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histogramCount(t, reg, "esrepo_snapshot_save_duration_seconds"))

	repo.ClearIdentityMap()
	_, err = repo.GetAggregateRoot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.snapshotHits.WithLabelValues(typ)))
	assert.Equal(t, uint64(2), histogramCount(t, reg, "esrepo_snapshot_load_duration_seconds"))
}

func TestESMetrics_conflicts(t *testing.T) {
	var (
		ctx     = t.Context()
		m       = NewESMetrics(prometheus.NewRegistry())
		env     = es.StartTestEnv(t, es.WithMetrics(m))
		aggType = es.AggregateTypeFor[*domain.User]()
		r1      = es.NewTestRepository(t, env, aggType)
		r2      = es.NewTestRepository(t, env, aggType)
	)

	u, err := domain.NewUser("u1", "John")
	require.NoError(t, err)
	require.NoError(t, r1.SaveAggregateRoot(ctx, u))

	a1, err := r1.GetAggregateRoot(ctx, "u1")
	require.NoError(t, err)
	a2, err := r2.GetAggregateRoot(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, a1.(*domain.User).ChangeName("Max"))
	require.NoError(t, a2.(*domain.User).ChangeName("Moritz"))

	require.NoError(t, r1.SaveAggregateRoot(ctx, a1))
	require.ErrorIs(t, r2.SaveAggregateRoot(ctx, a2), es.ErrConcurrencyConflict)

	typ := aggType.String()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.concurrencyConflicts.WithLabelValues(typ)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.eventsAppended.WithLabelValues(typ)))
}
