package es

import (
	"log/slog"
	"maps"

	"github.com/codewandler/esrepo-go/core/cache"
)

type repoOpts struct {
	log                   *slog.Logger
	snapshotStore         SnapshotStore
	streamName            string
	oneStreamPerAggregate bool
	identityMap           cache.Cache
	metadata              map[string]any
	metrics               ESMetrics
}

type (
	RepositoryOption interface{ applyToRepository(*repoOpts) }

	SnapshotStoreOption         valueOption[SnapshotStore]
	StreamNameOption            valueOption[string]
	OneStreamPerAggregateOption valueOption[bool]
	IdentityMapOption           valueOption[cache.Cache]
	StreamMetadataOption        valueOption[map[string]any]
)

// WithSnapshotStore enables the snapshot fast path on load.
func WithSnapshotStore(s SnapshotStore) SnapshotStoreOption { return SnapshotStoreOption{v: s} }

// WithStreamName names the shared stream, or the prefix of per aggregate
// streams.
func WithStreamName(name string) StreamNameOption { return StreamNameOption{v: name} }

// WithOneStreamPerAggregate stores each aggregate in its own stream named
// {stream name or aggregate type}-{aggregate id}.
func WithOneStreamPerAggregate() OneStreamPerAggregateOption {
	return OneStreamPerAggregateOption{v: true}
}

// WithIdentityMap replaces the default identity map.
func WithIdentityMap(c cache.Cache) IdentityMapOption { return IdentityMapOption{v: c} }

// WithoutIdentityMap makes every load hit the stores.
func WithoutIdentityMap() IdentityMapOption { return IdentityMapOption{v: cache.NewNop()} }

// WithStreamMetadata is attached to every stream the repository creates.
func WithStreamMetadata(md map[string]any) StreamMetadataOption {
	return StreamMetadataOption{v: maps.Clone(md)}
}

func (o SnapshotStoreOption) applyToRepository(r *repoOpts)         { r.snapshotStore = o.v }
func (o StreamNameOption) applyToRepository(r *repoOpts)            { r.streamName = o.v }
func (o OneStreamPerAggregateOption) applyToRepository(r *repoOpts) { r.oneStreamPerAggregate = o.v }
func (o IdentityMapOption) applyToRepository(r *repoOpts)           { r.identityMap = o.v }
func (o StreamMetadataOption) applyToRepository(r *repoOpts)        { r.metadata = o.v }
func (o LogOption) applyToRepository(r *repoOpts)                   { r.log = o.v }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	options := repoOpts{
		log:      slog.Default(),
		metrics:  NopESMetrics(),
		metadata: map[string]any{},
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	if options.identityMap == nil {
		options.identityMap = cache.NewMap()
	}
	if options.metadata == nil {
		options.metadata = map[string]any{}
	}
	return options
}
