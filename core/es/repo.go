package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/codewandler/esrepo-go/core/cache"
)

// Repository loads and saves aggregates of one AggregateType.
//
// A Repository is not safe for concurrent use: its identity map is an
// unsynchronized per instance cache. Use one repository per unit of work.
type Repository struct {
	log                   *slog.Logger
	store                 EventStore
	aggType               AggregateType
	translator            AggregateTranslator
	snapshotStore         SnapshotStore
	streamName            string
	oneStreamPerAggregate bool
	identityMap           cache.TypedCache[Aggregate]
	tracked               map[string][]Aggregate
	metadata              map[string]any
	metrics               ESMetrics
}

func NewRepository(
	store EventStore,
	aggType AggregateType,
	translator AggregateTranslator,
	opts ...RepositoryOption,
) (*Repository, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if aggType.IsZero() {
		return nil, fmt.Errorf("%w: aggregate type is required", ErrInvalidAggregateType)
	}
	if translator == nil {
		return nil, errors.New("aggregate translator is required")
	}

	options := newRepoOpts(opts...)

	r := &Repository{
		store:                 store,
		aggType:               aggType,
		translator:            translator,
		snapshotStore:         options.snapshotStore,
		streamName:            options.streamName,
		oneStreamPerAggregate: options.oneStreamPerAggregate,
		identityMap:           cache.NewTyped[Aggregate](options.identityMap),
		tracked:               map[string][]Aggregate{},
		metadata:              options.metadata,
		metrics:               options.metrics,
	}
	r.log = options.log.With(
		slog.String("repo", aggType.String()),
		slog.Bool("one_stream_per_aggregate", r.oneStreamPerAggregate),
	)
	return r, nil
}

func (r *Repository) AggregateType() AggregateType { return r.aggType }

// StreamName returns the stream aggregate aggID is stored in.
func (r *Repository) StreamName(aggID string) string {
	if r.oneStreamPerAggregate {
		prefix := r.streamName
		if prefix == "" {
			prefix = r.aggType.String()
		}
		return prefix + "-" + aggID
	}
	if r.streamName == "" {
		return DefaultStreamName
	}
	return r.streamName
}

// InitializeStream creates the shared stream with the configured metadata
// unless it exists. It does nothing in one stream per aggregate mode.
func (r *Repository) InitializeStream(ctx context.Context) error {
	if r.oneStreamPerAggregate {
		return nil
	}
	name := r.StreamName("")
	err := r.store.Create(ctx, Stream{Name: name, Metadata: maps.Clone(r.metadata)})
	if err != nil && !errors.Is(err, ErrStreamExistsAlready) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

// SaveAggregateRoot persists the pending events of a. Without pending
// events it does nothing. Store errors, including ErrConcurrencyConflict
// and ErrStreamExistsAlready, are returned unchanged.
func (r *Repository) SaveAggregateRoot(ctx context.Context, a Aggregate) error {
	if err := r.aggType.Assert(a); err != nil {
		return err
	}

	aggID := r.translator.ExtractAggregateID(a)
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}

	events := r.translator.ExtractPendingStreamEvents(a)
	if len(events) == 0 {
		return nil
	}

	defer r.metrics.RepoSaveDuration(r.aggType.String()).ObserveDuration()

	if err := r.persist(ctx, a, aggID, events); err != nil {
		return err
	}

	r.identityMap.Delete(aggID)
	return nil
}

func (r *Repository) persist(ctx context.Context, a Aggregate, aggID string, events []AggregateChanged) error {
	var (
		aggType    = r.aggType.String()
		typeName   = r.aggType.NameOf(a)
		streamName = r.StreamName(aggID)
		enriched   = make([]AggregateChanged, len(events))
	)
	for i, e := range events {
		if e.AggregateID() != aggID {
			return fmt.Errorf("%w: %s belongs to %q, not to %s %s", ErrInvalidEvent, e, e.AggregateID(), aggType, aggID)
		}
		enriched[i] = enrichEventMetadata(e, aggID, typeName)
	}

	stopTimer := r.metrics.StoreAppendDuration(aggType)
	var err error
	if r.oneStreamPerAggregate && enriched[0].Version() == 1 {
		err = r.store.Create(ctx, Stream{
			Name:     streamName,
			Metadata: maps.Clone(r.metadata),
			Events:   enriched,
		})
	} else {
		err = r.store.AppendTo(ctx, streamName, enriched)
	}
	stopTimer.ObserveDuration()

	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrStreamExistsAlready) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save %s %s to %s: %w", aggType, aggID, streamName, err)
	}

	r.metrics.EventsAppended(aggType, len(enriched))
	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
			enriched[len(enriched)-1].Version().SlogAttr(),
		),
		slog.String("stream", streamName),
		slog.Int("num_events", len(enriched)),
	)
	return nil
}

func enrichEventMetadata(e AggregateChanged, aggID, typeName string) AggregateChanged {
	return e.
		withAggregateID(aggID).
		WithAddedMetadata(MetaAggregateType, typeName).
		WithAddedMetadata(MetaAggregateVersion, uint64(e.Version()))
}

// GetAggregateRoot returns the aggregate with id aggID. An id that was
// never persisted yields ErrAggregateNotFound; every other error comes
// from the stores.
func (r *Repository) GetAggregateRoot(ctx context.Context, aggID string) (Aggregate, error) {
	aggType := r.aggType.String()

	if a, ok := r.identityMap.Get(aggID); ok {
		r.metrics.IdentityMapHit(aggType)
		r.track(aggID, a)
		return a, nil
	}
	r.metrics.IdentityMapMiss(aggType)

	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	log := r.log.With(slog.Group("agg", slog.String("type", aggType), slog.String("id", aggID)))

	var (
		a   Aggregate
		err error
	)
	if r.snapshotStore != nil {
		a, err = r.loadFromSnapshotStore(ctx, log, aggID)
	}
	if err != nil {
		return nil, err
	}
	if a == nil {
		if a, err = r.loadFromHistory(ctx, aggID); err != nil {
			return nil, err
		}
	}

	log.Debug("loaded", r.translator.ExtractAggregateVersion(a).SlogAttr())
	r.identityMap.Put(aggID, a)
	r.track(aggID, a)
	return a, nil
}

// track remembers a handed out aggregate until the next commit, rollback
// or ClearIdentityMap, independent of what the identity map evicts.
// Older instances of aggID without pending events are forgotten.
func (r *Repository) track(aggID string, a Aggregate) {
	var kept []Aggregate
	for _, prev := range r.tracked[aggID] {
		if prev == a {
			return
		}
		if prev.root().HasPendingEvents() {
			kept = append(kept, prev)
		}
	}
	r.tracked[aggID] = append(kept, a)
}

// loadFromSnapshotStore returns nil and no error on a snapshot miss.
func (r *Repository) loadFromSnapshotStore(ctx context.Context, log *slog.Logger, aggID string) (Aggregate, error) {
	aggType := r.aggType.String()

	stopTimer := r.metrics.SnapshotLoadDuration(aggType)
	ss, err := r.snapshotStore.Get(ctx, r.aggType, aggID)
	stopTimer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			r.metrics.SnapshotMiss(aggType)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot of %s %s: %w", aggType, aggID, err)
	}
	r.metrics.SnapshotHit(aggType)

	a, err := restoreSnapshot(r.aggType, ss)
	if err != nil {
		return nil, err
	}
	log.Debug("snapshot applied", ss.logAttrs())

	var (
		streamName = r.StreamName(aggID)
		events     []AggregateChanged
	)
	if r.oneStreamPerAggregate {
		events, err = r.load(ctx, streamName, uint64(ss.LastVersion)+1)
	} else {
		events, err = r.load(ctx, streamName, 1, WithMetadataMatcher(
			r.aggregateMatcher(aggID).WithMetadataMatch(MetaAggregateVersion, OpGreaterThan, uint64(ss.LastVersion)),
		))
	}
	if err != nil && !errors.Is(err, ErrStreamNotFound) {
		return nil, err
	}
	if len(events) == 0 {
		return a, nil
	}
	if err := r.translator.ReplayStreamEvents(a, events); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) loadFromHistory(ctx context.Context, aggID string) (Aggregate, error) {
	var (
		streamName = r.StreamName(aggID)
		events     []AggregateChanged
		err        error
	)
	if r.oneStreamPerAggregate {
		events, err = r.load(ctx, streamName, 1)
	} else {
		events, err = r.load(ctx, streamName, 1, WithMetadataMatcher(r.aggregateMatcher(aggID)))
	}
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrAggregateNotFound, r.aggType, aggID)
		}
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrAggregateNotFound, r.aggType, aggID)
	}
	return r.translator.ReconstituteAggregateFromHistory(r.aggType, events)
}

func (r *Repository) load(ctx context.Context, streamName string, from uint64, opts ...StoreLoadOption) ([]AggregateChanged, error) {
	defer r.metrics.StoreLoadDuration(r.aggType.String()).ObserveDuration()
	events, err := r.store.Load(ctx, streamName, from, opts...)
	if err != nil || r.oneStreamPerAggregate || len(r.aggType.Names()) == 1 {
		return events, err
	}
	// the matcher cannot express several type names, filter here
	return slices.DeleteFunc(events, func(e AggregateChanged) bool {
		name, _ := e.metadata[MetaAggregateType].(string)
		return !r.aggType.HasName(name)
	}), nil
}

func (r *Repository) aggregateMatcher(aggID string) MetadataMatcher {
	m := NewMetadataMatcher().WithMetadataMatch(MetaAggregateID, OpEquals, aggID)
	if names := r.aggType.Names(); len(names) == 1 {
		m = m.WithMetadataMatch(MetaAggregateType, OpEquals, names[0])
	}
	return m
}

// ExtractAggregateVersion returns the current version of a.
func (r *Repository) ExtractAggregateVersion(a Aggregate) Version {
	return r.translator.ExtractAggregateVersion(a)
}

// ClearIdentityMap forgets every cached and tracked aggregate.
func (r *Repository) ClearIdentityMap() {
	r.identityMap.Clear()
	clear(r.tracked)
}

// TakeSnapshot stores a snapshot of a, which must have no pending events.
func (r *Repository) TakeSnapshot(ctx context.Context, a Aggregate) (*Snapshot, error) {
	if r.snapshotStore == nil {
		return nil, ErrSnapshotStoreUnconfigured
	}
	if err := r.aggType.Assert(a); err != nil {
		return nil, err
	}
	ss, err := NewSnapshot(r.aggType, a)
	if err != nil {
		return nil, err
	}

	stopTimer := r.metrics.SnapshotSaveDuration(r.aggType.String())
	err = r.snapshotStore.Save(ctx, ss)
	stopTimer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.log.Debug("snapshot saved", ss.logAttrs())
	return ss, nil
}

// === commit hooks ===

// BeforeCommit persists the pending events of every aggregate the
// repository handed out since the last commit, including those the
// identity map evicted meanwhile.
func (r *Repository) BeforeCommit(ctx context.Context) error {
	for _, aggID := range slices.Sorted(maps.Keys(r.tracked)) {
		for _, a := range r.tracked[aggID] {
			events := r.translator.ExtractPendingStreamEvents(a)
			if len(events) == 0 {
				continue
			}
			if err := r.persist(ctx, a, aggID, events); err != nil {
				return err
			}
		}
	}
	return nil
}

// AfterCommit clears the identity map.
func (r *Repository) AfterCommit(context.Context) { r.ClearIdentityMap() }

// Rollback drops in-memory changes by clearing the identity map.
func (r *Repository) Rollback(context.Context) { r.ClearIdentityMap() }

var (
	_ CommitHook   = (*Repository)(nil)
	_ RollbackHook = (*Repository)(nil)
)

// === TypedRepository ===

// TypedRepository wraps a Repository for one concrete aggregate type.
type TypedRepository[T Aggregate] struct {
	r *Repository
}

func NewTypedRepository[T Aggregate](r *Repository) *TypedRepository[T] {
	return &TypedRepository[T]{r: r}
}

func (t *TypedRepository[T]) Repository() *Repository      { return t.r }
func (t *TypedRepository[T]) AggregateType() AggregateType { return t.r.aggType }

func (t *TypedRepository[T]) Get(ctx context.Context, aggID string) (out T, err error) {
	a, err := t.r.GetAggregateRoot(ctx, aggID)
	if err != nil {
		return out, err
	}
	out, ok := a.(T)
	if !ok {
		return out, fmt.Errorf("%w: loaded %T, want %T", ErrAggregateTypeMismatch, a, out)
	}
	return out, nil
}

func (t *TypedRepository[T]) Save(ctx context.Context, a T) error {
	return t.r.SaveAggregateRoot(ctx, a)
}
