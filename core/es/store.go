package es

import (
	"context"
	"errors"
	"maps"
)

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrStreamExistsAlready = errors.New("stream exists already")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// DefaultStreamName is the shared stream used when none is configured.
const DefaultStreamName = "event_stream"

// Stream is a named, ordered sequence of events plus stream metadata.
type Stream struct {
	Name     string
	Metadata map[string]any
	Events   []AggregateChanged
}

// EventStore persists events in named streams. Positions within a stream
// start at 1.
//
// Implementations report
//   - ErrStreamExistsAlready from Create when the stream exists,
//   - ErrStreamNotFound from AppendTo and Load when it does not,
//   - ErrConcurrencyConflict when an appended event collides with an
//     already stored (aggregate_type, aggregate_id, aggregate_version).
type EventStore interface {
	Create(ctx context.Context, stream Stream) error
	AppendTo(ctx context.Context, streamName string, events []AggregateChanged) error
	// Load returns the events at position fromNumber and later that
	// satisfy the configured matcher, at most WithCount of them.
	Load(ctx context.Context, streamName string, fromNumber uint64, opts ...StoreLoadOption) ([]AggregateChanged, error)
	HasStream(ctx context.Context, streamName string) (bool, error)
	FetchStreamMetadata(ctx context.Context, streamName string) (map[string]any, error)
}

type (
	// StoreLoadOptions is the resolved form of a Load call's options.
	// Store implementations outside this package read it via
	// NewStoreLoadOptions.
	StoreLoadOptions struct {
		Count   int
		Matcher MetadataMatcher
	}

	StoreLoadOption interface{ applyToStoreLoad(*StoreLoadOptions) }

	countOption   valueOption[int]
	matcherOption valueOption[MetadataMatcher]
)

// WithCount limits the number of loaded events. Zero means unlimited.
func WithCount(n int) StoreLoadOption { return countOption{v: n} }

// WithMetadataMatcher filters loaded events by their metadata.
func WithMetadataMatcher(m MetadataMatcher) StoreLoadOption { return matcherOption{v: m} }

func (o countOption) applyToStoreLoad(opts *StoreLoadOptions)   { opts.Count = o.v }
func (o matcherOption) applyToStoreLoad(opts *StoreLoadOptions) { opts.Matcher = o.v }

func NewStoreLoadOptions(opts ...StoreLoadOption) StoreLoadOptions {
	var options StoreLoadOptions
	for _, opt := range opts {
		opt.applyToStoreLoad(&options)
	}
	return options
}

// Limit reports whether n collected events exhaust the count.
func (o StoreLoadOptions) Limit(n int) bool { return o.Count > 0 && n >= o.Count }

// versionKey identifies one aggregate version inside a stream. ok is false
// for events without aggregate metadata.
type versionKey struct {
	aggType string
	aggID   string
	version Version
}

func versionKeyOf(e AggregateChanged) (versionKey, bool) {
	typ, _ := e.metadata[MetaAggregateType].(string)
	if typ == "" || e.aggregateID == "" || e.version == 0 {
		return versionKey{}, false
	}
	return versionKey{aggType: typ, aggID: e.aggregateID, version: e.version}, true
}

func cloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	return maps.Clone(md)
}
