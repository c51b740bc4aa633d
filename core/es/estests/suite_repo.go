package estests

import (
	"context"
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/cache"
	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/estests/domain"
)

// NewEnvFunc returns an Env with a snapshot store over the backend under
// test.
type NewEnvFunc func(t *testing.T) *es.Env

type streamMode struct {
	name string
	opts func() []es.RepositoryOption
}

var streamModes = []streamMode{
	{"shared stream", func() []es.RepositoryOption {
		return []es.RepositoryOption{es.WithStreamName(uniqueName("event_stream"))}
	}},
	{"one stream per aggregate", func() []es.RepositoryOption {
		return []es.RepositoryOption{es.WithOneStreamPerAggregate(), es.WithStreamName(uniqueName("user"))}
	}},
}

func newUserRepo(t *testing.T, env *es.Env, mode streamMode, opts ...es.RepositoryOption) *es.Repository {
	return es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), append(mode.opts(), opts...)...)
}

func streamLen(t *testing.T, env *es.Env, repo *es.Repository, aggID string) int {
	events, err := env.Store().Load(t.Context(), repo.StreamName(aggID), 1)
	require.NoError(t, err)
	return len(events)
}

// RunRepositorySuite checks the repository behaviour on top of the Env's
// stores, in shared and per aggregate stream mode.
func RunRepositorySuite(t *testing.T, newEnv NewEnvFunc) {
	for _, mode := range streamModes {
		t.Run(mode.name, func(t *testing.T) {
			runRepositoryModeSuite(t, newEnv, mode)
		})
	}

	t.Run("one stream per aggregate isolates aggregates", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			mode = streamModes[1]
			repo = newUserRepo(t, env, mode)
		)

		u1, err := domain.NewUser("u1-"+gonanoid.Must(6), "A")
		require.NoError(t, err)
		u2, err := domain.NewUser("u2-"+gonanoid.Must(6), "B")
		require.NoError(t, err)

		require.NoError(t, repo.SaveAggregateRoot(ctx, u1))
		require.NoError(t, repo.SaveAggregateRoot(ctx, u2))
		require.NoError(t, u1.ChangeName("A2"))
		require.NoError(t, u2.ChangeName("B2"))
		require.NoError(t, repo.SaveAggregateRoot(ctx, u2))
		require.NoError(t, repo.SaveAggregateRoot(ctx, u1))

		require.NotEqual(t, repo.StreamName(u1.ID), repo.StreamName(u2.ID))
		for _, u := range []*domain.User{u1, u2} {
			events, err := env.Store().Load(ctx, repo.StreamName(u.ID), 1)
			require.NoError(t, err)
			require.Len(t, events, 2)
			for _, e := range events {
				require.Equal(t, u.ID, e.AggregateID())
			}
		}
	})

	t.Run("stream metadata", func(t *testing.T) {
		env, ctx := newEnv(t), t.Context()
		md := map[string]any{"tenant": "acme"}

		perAgg := newUserRepo(t, env, streamModes[1], es.WithStreamMetadata(md))
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, perAgg.SaveAggregateRoot(ctx, u))

		got, err := env.Store().FetchStreamMetadata(ctx, perAgg.StreamName(u.ID))
		require.NoError(t, err)
		require.Equal(t, "acme", got["tenant"])

		shared := newUserRepo(t, env, streamModes[0], es.WithStreamMetadata(md))
		got, err = env.Store().FetchStreamMetadata(ctx, shared.StreamName(""))
		require.NoError(t, err)
		require.Equal(t, "acme", got["tenant"])

		// initializing twice is fine
		require.NoError(t, shared.InitializeStream(ctx))
	})

	t.Run("concurrent creation in one stream per aggregate mode", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			mode = streamModes[1]
			opts = mode.opts()
			id   = gonanoid.Must()
		)
		r1 := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)
		r2 := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)

		a, err := domain.NewUser(id, "first")
		require.NoError(t, err)
		b, err := domain.NewUser(id, "second")
		require.NoError(t, err)

		require.NoError(t, r1.SaveAggregateRoot(ctx, a))
		require.ErrorIs(t, r2.SaveAggregateRoot(ctx, b), es.ErrStreamExistsAlready)
	})

	t.Run("snapshot read model", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, streamModes[0])
			ids  = []string{gonanoid.Must(), gonanoid.Must()}
		)
		for _, id := range ids {
			u, err := domain.NewUser(id, "v1")
			require.NoError(t, err)
			require.NoError(t, u.ChangeName("v2"))
			require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		}

		events, err := env.Store().Load(ctx, repo.StreamName(""), 1)
		require.NoError(t, err)
		require.Len(t, events, 4)

		rm, err := env.SnapshotReadModel(repo)
		require.NoError(t, err)
		require.NoError(t, rm.Stack(ctx, events...))
		require.NoError(t, rm.Persist(ctx))

		for _, id := range ids {
			ss, err := env.SnapshotStore().Get(ctx, repo.AggregateType(), id)
			require.NoError(t, err)
			require.Equal(t, es.Version(2), ss.LastVersion)
			require.Equal(t, id, ss.AggregateID)
		}
		require.ErrorIs(t, rm.Reset(ctx), es.ErrNotSupported)
	})
}

func runRepositoryModeSuite(t *testing.T, newEnv NewEnvFunc, mode streamMode) {
	t.Run("round trip", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode, es.WithSnapshotStore(nil))
			id   = gonanoid.Must()
		)

		u, err := domain.NewUser(id, "John Doe")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		loaded, err := repo.GetAggregateRoot(ctx, id)
		require.NoError(t, err)
		user := loaded.(*domain.User)
		require.NotSame(t, u, user)
		require.Equal(t, "John Doe", user.Name)
		require.Equal(t, es.Version(1), repo.ExtractAggregateVersion(user))

		require.NoError(t, user.ChangeName("Max"))
		require.NoError(t, repo.SaveAggregateRoot(ctx, user))

		reloaded, err := es.NewTypedRepository[*domain.User](repo).Get(ctx, id)
		require.NoError(t, err)
		require.NotSame(t, user, reloaded)
		require.Equal(t, "Max", reloaded.Name)
		require.Equal(t, 1, reloaded.NameChanges)
		require.Equal(t, es.Version(2), repo.ExtractAggregateVersion(reloaded))
	})

	t.Run("events carry the aggregate id", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode, es.WithSnapshotStore(nil))
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, u.ChangeName("Max"))
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		events, err := env.Store().Load(ctx, repo.StreamName(u.ID), 1)
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, e := range events {
			require.Equal(t, u.ID, e.AggregateID())
			id, _ := e.MetadataValue(es.MetaAggregateID)
			require.Equal(t, u.ID, id)
		}

		repo.ClearIdentityMap()
		loaded, err := es.NewTypedRepository[*domain.User](repo).Get(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Max", loaded.Name)
	})

	t.Run("events of another aggregate are rejected", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		require.NoError(t, u.Record(es.Occur(domain.UserNameChanged, "someone-else", map[string]any{"name": "Max"})))
		require.ErrorIs(t, repo.SaveAggregateRoot(ctx, u), es.ErrInvalidEvent)
		require.Equal(t, 1, streamLen(t, env, repo, u.ID))

		require.ErrorIs(t, u.Record(es.Occur(domain.UserNameChanged, "", map[string]any{"name": "Max"})), es.ErrInvalidEvent)
	})

	t.Run("not found", func(t *testing.T) {
		env := newEnv(t)
		repo := newUserRepo(t, env, mode)

		_, err := repo.GetAggregateRoot(t.Context(), gonanoid.Must())
		require.ErrorIs(t, err, es.ErrAggregateNotFound)
		require.NotErrorIs(t, err, es.ErrStreamNotFound)

		_, err = es.NewTypedRepository[*domain.User](repo).Get(t.Context(), gonanoid.Must())
		require.ErrorIs(t, err, es.ErrAggregateNotFound)
	})

	t.Run("no-op save", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		before := streamLen(t, env, repo, u.ID)

		require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		require.Equal(t, before, streamLen(t, env, repo, u.ID))
	})

	t.Run("identity map", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		a, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		b, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.Same(t, a, b)

		require.NoError(t, a.(*domain.User).ChangeName("Max"))
		require.NoError(t, repo.SaveAggregateRoot(ctx, a))

		c, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.NotSame(t, a, c)
		require.Equal(t, "Max", c.(*domain.User).Name)

		repo.ClearIdentityMap()
		d, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.NotSame(t, c, d)
	})

	t.Run("identity map disabled", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode, es.WithoutIdentityMap())
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		a, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		b, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.NotSame(t, a, b)
	})

	t.Run("type mismatch", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		p, err := domain.PublishPost(gonanoid.Must(), "hello")
		require.NoError(t, err)

		require.ErrorIs(t, repo.SaveAggregateRoot(ctx, p), es.ErrAggregateTypeMismatch)
		require.True(t, p.HasPendingEvents())

		ok, err := env.Store().HasStream(ctx, repo.StreamName(p.AggregateID()))
		require.NoError(t, err)
		if ok {
			require.Zero(t, streamLen(t, env, repo, p.AggregateID()))
		}
	})

	t.Run("version monotonicity", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		u, err := domain.NewUser(gonanoid.Must(), "n0")
		require.NoError(t, err)
		for _, name := range []string{"n1", "n2", "n3"} {
			require.NoError(t, u.ChangeName(name))
		}
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		repo.ClearIdentityMap()

		loaded, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, es.Version(4), repo.ExtractAggregateVersion(loaded))

		require.NoError(t, loaded.(*domain.User).ChangeName("n4"))
		require.NoError(t, repo.SaveAggregateRoot(ctx, loaded))

		events, err := env.Store().Load(ctx, repo.StreamName(u.ID), 1)
		require.NoError(t, err)
		last := events[len(events)-1]
		require.Equal(t, es.Version(5), last.Version())
		require.Equal(t, u.ID, last.Metadata()[es.MetaAggregateID])
		require.Equal(t, repo.AggregateType().String(), last.Metadata()[es.MetaAggregateType])
	})

	t.Run("stale writer conflicts", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			opts = mode.opts()
		)
		r1 := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)
		r2 := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)

		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, r1.SaveAggregateRoot(ctx, u))

		a, err := r1.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		b, err := r2.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)

		require.NoError(t, a.(*domain.User).ChangeName("A"))
		require.NoError(t, b.(*domain.User).ChangeName("B"))
		require.NoError(t, r1.SaveAggregateRoot(ctx, a))
		require.ErrorIs(t, r2.SaveAggregateRoot(ctx, b), es.ErrConcurrencyConflict)
	})

	t.Run("snapshot", func(t *testing.T) {
		var (
			env    = newEnv(t)
			ctx    = t.Context()
			opts   = mode.opts()
			writer = es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)
		)

		u, err := domain.NewUser(gonanoid.Must(), "n0")
		require.NoError(t, err)
		require.NoError(t, u.ChangeName("n1"))
		require.NoError(t, writer.SaveAggregateRoot(ctx, u))

		ss, err := writer.TakeSnapshot(ctx, u)
		require.NoError(t, err)
		require.Equal(t, es.Version(2), ss.LastVersion)

		require.NoError(t, u.ChangeName("n2"))
		require.NoError(t, u.ChangeName("n3"))
		require.NoError(t, u.ChangeName("n4"))
		require.NoError(t, writer.SaveAggregateRoot(ctx, u))

		withSnapshots := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)
		fromSnapshot, err := es.NewTypedRepository[*domain.User](withSnapshots).Get(ctx, u.ID)
		require.NoError(t, err)

		withoutSnapshots := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), append(opts, es.WithSnapshotStore(nil))...)
		fromHistory, err := es.NewTypedRepository[*domain.User](withoutSnapshots).Get(ctx, u.ID)
		require.NoError(t, err)

		require.Equal(t, es.Version(5), withSnapshots.ExtractAggregateVersion(fromSnapshot))
		require.Equal(t, withoutSnapshots.ExtractAggregateVersion(fromHistory), withSnapshots.ExtractAggregateVersion(fromSnapshot))
		require.Equal(t, fromHistory.Name, fromSnapshot.Name)
		require.Equal(t, fromHistory.NameChanges, fromSnapshot.NameChanges)

		// snapshot without newer events
		_, err = withSnapshots.TakeSnapshot(ctx, fromSnapshot)
		require.NoError(t, err)
		withSnapshots.ClearIdentityMap()
		again, err := es.NewTypedRepository[*domain.User](withSnapshots).Get(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "n4", again.Name)
		require.Equal(t, es.Version(5), withSnapshots.ExtractAggregateVersion(again))
	})

	t.Run("snapshot miss falls back to history", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			repo = newUserRepo(t, env, mode)
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))
		repo.ClearIdentityMap()

		loaded, err := repo.GetAggregateRoot(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "John", loaded.(*domain.User).Name)
	})

	t.Run("unit of work", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			opts = mode.opts()
			repo = es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), opts...)
		)
		u, err := domain.NewUser(gonanoid.Must(), "John")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, u))

		// commit flushes changes of aggregates in the identity map
		err = env.UnitOfWork(repo).Do(ctx, func(ctx context.Context) error {
			a, err := repo.GetAggregateRoot(ctx, u.ID)
			if err != nil {
				return err
			}
			return a.(*domain.User).ChangeName("Max")
		})
		require.NoError(t, err)

		fresh := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), append(opts, es.WithSnapshotStore(nil))...)
		loaded, err := es.NewTypedRepository[*domain.User](fresh).Get(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Max", loaded.Name)

		// rollback discards them
		err = env.UnitOfWork(repo).Do(ctx, func(ctx context.Context) error {
			a, err := repo.GetAggregateRoot(ctx, u.ID)
			if err != nil {
				return err
			}
			if err := a.(*domain.User).ChangeName("Nope"); err != nil {
				return err
			}
			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)

		again, err := es.NewTypedRepository[*domain.User](repo).Get(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Max", again.Name)
	})

	t.Run("unit of work with a bounded identity map", func(t *testing.T) {
		var (
			env  = newEnv(t)
			ctx  = t.Context()
			opts = mode.opts()
			repo = es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](),
				append(opts, es.WithIdentityMap(cache.NewLRU(cache.LRUOpts{Size: 1})))...)
		)
		a, err := domain.NewUser("a-"+gonanoid.Must(6), "a")
		require.NoError(t, err)
		b, err := domain.NewUser("b-"+gonanoid.Must(6), "b")
		require.NoError(t, err)
		require.NoError(t, repo.SaveAggregateRoot(ctx, a))
		require.NoError(t, repo.SaveAggregateRoot(ctx, b))

		// loading b evicts the changed a from the identity map
		err = env.UnitOfWork(repo).Do(ctx, func(ctx context.Context) error {
			loaded, err := repo.GetAggregateRoot(ctx, a.ID)
			if err != nil {
				return err
			}
			if err := loaded.(*domain.User).ChangeName("a-changed"); err != nil {
				return err
			}
			_, err = repo.GetAggregateRoot(ctx, b.ID)
			return err
		})
		require.NoError(t, err)

		fresh := es.NewTestRepository(t, env, es.AggregateTypeFor[*domain.User](), append(opts, es.WithSnapshotStore(nil))...)
		loaded, err := es.NewTypedRepository[*domain.User](fresh).Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, "a-changed", loaded.Name)
		require.Equal(t, es.Version(2), fresh.ExtractAggregateVersion(loaded))
	})
}
