package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type memStream struct {
	metadata map[string]any
	events   []AggregateChanged
	versions map[versionKey]struct{}
}

// InMemoryStore keeps streams in process memory. It is safe for
// concurrent use and is meant for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	streams map[string]*memStream
}

func NewInMemoryStore(opts ...LogOption) *InMemoryStore {
	var log *slog.Logger
	for _, o := range opts {
		log = o.v
	}
	return &InMemoryStore{
		log:     logOrDefault(log).With(slog.String("store", "memory")),
		streams: map[string]*memStream{},
	}
}

func (s *InMemoryStore) Create(_ context.Context, stream Stream) error {
	if stream.Name == "" {
		return fmt.Errorf("stream name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[stream.Name]; ok {
		return fmt.Errorf("%w: %s", ErrStreamExistsAlready, stream.Name)
	}

	ms := &memStream{
		metadata: cloneMetadata(stream.Metadata),
		versions: map[versionKey]struct{}{},
	}
	if err := ms.append(stream.Events); err != nil {
		return err
	}
	s.streams[stream.Name] = ms

	s.log.Debug(
		"created",
		slog.String("stream", stream.Name),
		slog.Int("num_events", len(stream.Events)),
	)
	return nil
}

func (s *InMemoryStore) AppendTo(_ context.Context, streamName string, events []AggregateChanged) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.streams[streamName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamName)
	}
	if err := ms.append(events); err != nil {
		return err
	}

	s.log.Debug(
		"append",
		slog.String("stream", streamName),
		slog.Int("num_events", len(events)),
		slog.Int("stream_len", len(ms.events)),
	)
	return nil
}

// append adds all events or none of them.
func (ms *memStream) append(events []AggregateChanged) error {
	batch := make(map[versionKey]struct{}, len(events))
	for _, e := range events {
		k, ok := versionKeyOf(e)
		if !ok {
			continue
		}
		if _, dup := ms.versions[k]; dup {
			return fmt.Errorf("%w: %s %s version %d", ErrConcurrencyConflict, k.aggType, k.aggID, k.version)
		}
		if _, dup := batch[k]; dup {
			return fmt.Errorf("%w: %s %s version %d appended twice", ErrConcurrencyConflict, k.aggType, k.aggID, k.version)
		}
		batch[k] = struct{}{}
	}
	for k := range batch {
		ms.versions[k] = struct{}{}
	}
	ms.events = append(ms.events, events...)
	return nil
}

func (s *InMemoryStore) Load(
	_ context.Context,
	streamName string,
	fromNumber uint64,
	opts ...StoreLoadOption,
) ([]AggregateChanged, error) {
	options := NewStoreLoadOptions(opts...)
	if err := options.Matcher.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, streamName)
	}

	if fromNumber < 1 {
		fromNumber = 1
	}

	out := make([]AggregateChanged, 0)
	for i := fromNumber - 1; i < uint64(len(ms.events)); i++ {
		e := ms.events[i]
		if !options.Matcher.Matches(e) {
			continue
		}
		out = append(out, e)
		if options.Limit(len(out)) {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) HasStream(_ context.Context, streamName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[streamName]
	return ok, nil
}

func (s *InMemoryStore) FetchStreamMetadata(_ context.Context, streamName string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, streamName)
	}
	return cloneMetadata(ms.metadata), nil
}

var _ EventStore = (*InMemoryStore)(nil)
