package estests

import (
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/cache"
	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/estests/domain"
	"github.com/codewandler/esrepo-go/ports/kv"
)

func TestRepository_InMemory(t *testing.T) {
	RunRepositorySuite(t, func(t *testing.T) *es.Env { return es.StartTestEnv(t) })
}

func TestRepository_KeyValueSnapshots(t *testing.T) {
	RunRepositorySuite(t, func(t *testing.T) *es.Env {
		return es.StartTestEnv(t, es.WithSnapshotStore(es.NewKeyValueSnapshotStore(kv.NewMemStore())))
	})
}

func TestNewRepository_requiresCollaborators(t *testing.T) {
	var (
		store      = es.NewInMemoryStore()
		aggType    = es.AggregateTypeFor[*domain.User]()
		translator = es.NewAggregateTranslator()
	)
	_, err := es.NewRepository(nil, aggType, translator)
	require.Error(t, err)
	_, err = es.NewRepository(store, es.AggregateType{}, translator)
	require.ErrorIs(t, err, es.ErrInvalidAggregateType)
	_, err = es.NewRepository(store, aggType, nil)
	require.Error(t, err)
}

func TestRepository_StreamName(t *testing.T) {
	var (
		store   = es.NewInMemoryStore()
		aggType = es.AggregateTypeFor[*domain.User]()
		tr      = es.NewAggregateTranslator()
	)

	shared, err := es.NewRepository(store, aggType, tr)
	require.NoError(t, err)
	require.Equal(t, es.DefaultStreamName, shared.StreamName("u1"))

	named, err := es.NewRepository(store, aggType, tr, es.WithStreamName("users"))
	require.NoError(t, err)
	require.Equal(t, "users", named.StreamName("u1"))

	perAgg, err := es.NewRepository(store, aggType, tr, es.WithOneStreamPerAggregate())
	require.NoError(t, err)
	require.Equal(t, aggType.String()+"-u1", perAgg.StreamName("u1"))

	prefixed, err := es.NewRepository(store, aggType, tr, es.WithOneStreamPerAggregate(), es.WithStreamName("foo"))
	require.NoError(t, err)
	require.Equal(t, "foo-u1", prefixed.StreamName("u1"))
}

func TestRepository_sharedStreamMustExist(t *testing.T) {
	env := es.StartTestEnv(t)
	repo, err := env.Repository(es.AggregateTypeFor[*domain.User](), es.WithStreamName(uniqueName("users")))
	require.NoError(t, err)

	u, err := domain.NewUser("u1", "John")
	require.NoError(t, err)
	require.ErrorIs(t, repo.SaveAggregateRoot(t.Context(), u), es.ErrStreamNotFound)
}

func TestRepository_mappedType(t *testing.T) {
	aggType, err := es.AggregateTypeFromMapping(es.TypeMapping{Name: "team", Prototype: &domain.Team{}})
	require.NoError(t, err)

	env := es.StartTestEnv(t)
	repo := es.NewTestRepository(t, env, aggType, es.WithOneStreamPerAggregate())

	team, err := domain.FoundTeam(gonanoid.Must())
	require.NoError(t, err)
	require.NoError(t, team.AddMember("ann"))
	require.NoError(t, repo.SaveAggregateRoot(t.Context(), team))

	require.Equal(t, "team-"+team.ID, repo.StreamName(team.ID))

	events, err := env.Store().Load(t.Context(), repo.StreamName(team.ID), 1)
	require.NoError(t, err)
	require.Equal(t, "team", events[0].Metadata()[es.MetaAggregateType])

	loaded, err := es.NewTypedRepository[*domain.Team](repo).Get(t.Context(), team.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"ann"}, loaded.Members)
}

func TestRepository_customSnapshots(t *testing.T) {
	env := es.StartTestEnv(t)
	repo := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.Post]())

	p, err := domain.PublishPost(gonanoid.Must(), "draft")
	require.NoError(t, err)
	require.NoError(t, repo.SaveAggregateRoot(t.Context(), p))

	ss, err := repo.TakeSnapshot(t.Context(), p)
	require.NoError(t, err)
	require.Equal(t, es.EncodingCustom, ss.Encoding)

	require.NoError(t, p.Retitle("final"))
	require.NoError(t, repo.SaveAggregateRoot(t.Context(), p))

	loaded, err := es.NewTypedRepository[*domain.Post](repo).Get(t.Context(), p.AggregateID())
	require.NoError(t, err)
	require.Equal(t, "final", loaded.Title())
	require.Equal(t, 1, loaded.Retitled())
	require.Equal(t, es.Version(2), repo.ExtractAggregateVersion(loaded))
}

func TestRepository_TakeSnapshot(t *testing.T) {
	env := es.StartTestEnv(t)

	noSnapshots := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), es.WithSnapshotStore(nil))
	u, err := domain.NewUser("u1", "John")
	require.NoError(t, err)
	_, err = noSnapshots.TakeSnapshot(t.Context(), u)
	require.ErrorIs(t, err, es.ErrSnapshotStoreUnconfigured)

	repo := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), es.WithStreamName(uniqueName("users")))
	_, err = repo.TakeSnapshot(t.Context(), u)
	require.ErrorIs(t, err, es.ErrAggregateHasPendingEvents)
}

func TestRepository_LRUIdentityMap(t *testing.T) {
	env := es.StartTestEnv(t)
	repo := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](),
		es.WithStreamName(uniqueName("users")),
		es.WithIdentityMap(cache.NewLRU(cache.LRUOpts{Size: 1})),
	)

	for _, id := range []string{"a", "b"} {
		u, err := domain.NewUser(id, id)
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(t.Context(), u))
	}

	a1, err := repo.GetAggregateRoot(t.Context(), "a")
	require.NoError(t, err)
	_, err = repo.GetAggregateRoot(t.Context(), "b")
	require.NoError(t, err)

	// "a" was evicted by "b"
	a2, err := repo.GetAggregateRoot(t.Context(), "a")
	require.NoError(t, err)
	require.NotSame(t, a1, a2)
}
