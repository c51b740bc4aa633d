package es

import (
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Env bundles the collaborators shared by all repositories of an
// application: the event store, the snapshot store, metrics and logging.
// Repositories themselves are cheap and created per unit of work.
type Env struct {
	id            string
	log           *slog.Logger
	store         EventStore
	snapshotStore SnapshotStore
	translator    AggregateTranslator
	metrics       ESMetrics
	repoOpts      []RepositoryOption
}

type (
	envOptions struct {
		log           *slog.Logger
		store         EventStore
		snapshotStore SnapshotStore
		metrics       ESMetrics
		repoOpts      []RepositoryOption
	}

	EnvOption interface{ applyToEnv(*envOptions) }

	StoreOption        valueOption[EventStore]
	MemoryOption       struct{}
	RepoDefaultsOption struct{ opts []RepositoryOption }
)

func WithStore(s EventStore) StoreOption { return StoreOption{v: s} }

// WithInMemory uses an in-memory event store and snapshot store.
func WithInMemory() MemoryOption { return MemoryOption{} }

// WithRepositoryDefaults are applied to every repository of the Env before
// the options given to Env.Repository.
func WithRepositoryDefaults(opts ...RepositoryOption) RepoDefaultsOption {
	return RepoDefaultsOption{opts: opts}
}

func (o StoreOption) applyToEnv(e *envOptions)         { e.store = o.v }
func (o SnapshotStoreOption) applyToEnv(e *envOptions) { e.snapshotStore = o.v }
func (o LogOption) applyToEnv(e *envOptions)           { e.log = o.v }
func (o ESMetricsOption) applyToEnv(e *envOptions)     { e.metrics = o.v }
func (o MemoryOption) applyToEnv(e *envOptions) {
	e.store = NewInMemoryStore()
	e.snapshotStore = NewInMemorySnapshotStore()
}
func (o RepoDefaultsOption) applyToEnv(e *envOptions) { e.repoOpts = append(e.repoOpts, o.opts...) }

func NewEnv(opts ...EnvOption) (*Env, error) {
	options := envOptions{metrics: NopESMetrics()}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}
	if options.store == nil {
		return nil, fmt.Errorf("no event store configured")
	}

	id := gonanoid.Must(6)
	return &Env{
		id:            id,
		log:           logOrDefault(options.log).With(slog.String("env", id)),
		store:         options.store,
		snapshotStore: options.snapshotStore,
		translator:    NewAggregateTranslator(),
		metrics:       options.metrics,
		repoOpts:      options.repoOpts,
	}, nil
}

func (e *Env) Store() EventStore               { return e.store }
func (e *Env) SnapshotStore() SnapshotStore    { return e.snapshotStore }
func (e *Env) Translator() AggregateTranslator { return e.translator }
func (e *Env) Log() *slog.Logger               { return e.log }

// Repository creates a repository for aggType wired to the Env's stores.
func (e *Env) Repository(aggType AggregateType, opts ...RepositoryOption) (*Repository, error) {
	base := []RepositoryOption{WithLog(e.log), WithMetrics(e.metrics)}
	if e.snapshotStore != nil {
		base = append(base, WithSnapshotStore(e.snapshotStore))
	}
	base = append(base, e.repoOpts...)
	return NewRepository(e.store, aggType, e.translator, append(base, opts...)...)
}

// SnapshotReadModel creates a read model snapshotting aggregates of repo
// into the Env's snapshot store.
func (e *Env) SnapshotReadModel(repo *Repository) (*SnapshotReadModel, error) {
	if e.snapshotStore == nil {
		return nil, ErrSnapshotStoreUnconfigured
	}
	return NewSnapshotReadModel(repo, e.translator, e.snapshotStore, WithLog(e.log)), nil
}

// UnitOfWork starts a unit of work over the given repositories.
func (e *Env) UnitOfWork(hooks ...CommitHook) *UnitOfWork {
	return NewUnitOfWork(e.log, hooks...)
}
