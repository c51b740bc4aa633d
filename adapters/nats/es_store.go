package nats

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/ports/kv"
)

const (
	defaultStreamName    = "ESREPO_EVENTS"
	defaultSubjectPrefix = "esrepo.events"
	defaultRegistry      = "esrepo_streams"

	fetchBatch   = 256
	fetchMaxWait = 5 * time.Second
)

// RetentionPolicy defines how messages are retained in the JetStream stream.
type RetentionPolicy int

const (
	// RetentionLimits keeps messages until MaxAge, MaxBytes or MaxMsgs is hit.
	RetentionLimits RetentionPolicy = iota
	// RetentionInterest keeps messages while consumers have interest.
	RetentionInterest
)

func (r RetentionPolicy) toJetStream() jetstream.RetentionPolicy {
	if r == RetentionInterest {
		return jetstream.InterestPolicy
	}
	return jetstream.LimitsPolicy
}

type EventStoreConfig struct {
	Connect       Connector    // Connect creates the NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	StreamName    string       // StreamName is the JetStream stream holding all event streams.
	SubjectPrefix string       // SubjectPrefix is the subject prefix of all event streams.
	Registry      string       // Registry is the KV bucket holding stream metadata and version claims.
	Memory        bool         // Memory keeps the stream and the registry in server memory.

	Retention RetentionPolicy
	// MaxAge, MaxBytes and MaxMsgs limit the stream. Zero means unlimited.
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64
}

// EventStore implements es.EventStore on one JetStream stream. Every event
// stream is a subject below the configured prefix; stream metadata and
// per aggregate version claims live in a KV bucket.
type EventStore struct {
	nc            *natsgo.Conn
	closeNc       closeFunc
	js            jetstream.JetStream
	stream        jetstream.Stream
	registry      kv.Store
	log           *slog.Logger
	subjectPrefix string
}

// streamRecord is the registry entry of an event stream.
type streamRecord struct {
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewEventStore(ctx context.Context, cfg EventStoreConfig) (*EventStore, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = defaultStreamName
	}
	subjectPrefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	registryName := cfg.Registry
	if registryName == "" {
		registryName = defaultRegistry
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(
		slog.String("store", "nats_js"),
		slog.String("stream", streamName),
	)

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	storage := jetstream.FileStorage
	if cfg.Memory {
		storage = jetstream.MemoryStorage
	}

	// the server reports unlimited as -1
	maxBytes, maxMsgs := cfg.MaxBytes, cfg.MaxMsgs
	if maxBytes == 0 {
		maxBytes = -1
	}
	if maxMsgs == 0 {
		maxMsgs = -1
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: cfg.Retention.toJetStream(),
		Storage:   storage,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  maxBytes,
		MaxMsgs:   maxMsgs,
		FirstSeq:  1,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	bucket, err := ensureBucket(ctx, js, registryName, cfg.Memory)
	if err != nil {
		closeNc()
		return nil, err
	}

	log.Debug("ensured", slog.String("subjects", subjectPrefix+".>"), slog.String("registry", registryName))

	return &EventStore{
		nc:            nc,
		closeNc:       closeNc,
		js:            js,
		stream:        stream,
		registry:      &KvStore{kv: bucket, closeNc: func() {}},
		log:           log,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (e *EventStore) Close() error {
	e.js.CleanupPublisher()
	e.closeNc()
	e.log.Debug("closed event store")
	return nil
}

func (e *EventStore) Create(ctx context.Context, stream es.Stream) error {
	if stream.Name == "" {
		return errors.New("stream name is empty")
	}

	data, err := json.Marshal(streamRecord{Metadata: stream.Metadata, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := e.registry.Create(ctx, streamKey(stream.Name), kv.Entry{Data: data}); err != nil {
		if errors.Is(err, kv.ErrKeyExists) {
			return fmt.Errorf("%w: %s", es.ErrStreamExistsAlready, stream.Name)
		}
		return err
	}

	if err := e.append(ctx, stream.Name, stream.Events); err != nil {
		if delErr := e.registry.Delete(ctx, streamKey(stream.Name)); delErr != nil {
			e.log.Error("failed to release stream", slog.String("name", stream.Name), slog.Any("error", delErr))
		}
		return err
	}

	e.log.Debug("created", slog.String("name", stream.Name), slog.Int("num_events", len(stream.Events)))
	return nil
}

func (e *EventStore) AppendTo(ctx context.Context, streamName string, events []es.AggregateChanged) error {
	if err := e.mustExist(ctx, streamName); err != nil {
		return err
	}
	if err := e.append(ctx, streamName, events); err != nil {
		return err
	}
	e.log.Debug("append", slog.String("name", streamName), slog.Int("num_events", len(events)))
	return nil
}

func (e *EventStore) append(ctx context.Context, streamName string, events []es.AggregateChanged) error {
	if len(events) == 0 {
		return nil
	}

	claimed, err := e.claimVersions(ctx, streamName, events)
	if err != nil {
		return err
	}

	for i, ev := range events {
		if err := e.publish(ctx, streamName, ev); err != nil {
			e.release(claimed[i:])
			return err
		}
	}
	return nil
}

// claimVersions reserves the aggregate version of every event. The
// returned keys are aligned with events; events without aggregate
// metadata have an empty key.
func (e *EventStore) claimVersions(ctx context.Context, streamName string, events []es.AggregateChanged) ([]string, error) {
	claimed := make([]string, len(events))
	for i, ev := range events {
		key, ok := versionClaimKey(streamName, ev)
		if !ok {
			continue
		}
		if err := e.registry.Create(ctx, key, kv.Entry{Data: []byte(ev.UUID())}); err != nil {
			e.release(claimed[:i])
			if errors.Is(err, kv.ErrKeyExists) {
				return nil, fmt.Errorf(
					"%w: %s %s version %d",
					es.ErrConcurrencyConflict,
					aggregateType(ev),
					ev.AggregateID(),
					ev.Version(),
				)
			}
			return nil, err
		}
		claimed[i] = key
	}
	return claimed, nil
}

func (e *EventStore) release(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), natsgo.DefaultTimeout)
	defer cancel()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := e.registry.Delete(ctx, k); err != nil {
			e.log.Error("failed to release version claim", slog.String("key", k), slog.Any("error", err))
		}
	}
}

func (e *EventStore) publish(ctx context.Context, streamName string, ev es.AggregateChanged) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	subject := e.subject(streamName)
	msg := natsgo.NewMsg(subject)
	msg.Header.Set("x-event-type", ev.MessageName())
	msg.Header.Set("x-aggregate-id", ev.AggregateID())
	if typ := aggregateType(ev); typ != "" {
		msg.Header.Set("x-aggregate-type", typ)
	}
	msg.Data = data

	ack, err := e.js.PublishMsg(ctx, msg, jetstream.WithMsgID(ev.UUID()))
	if err != nil {
		return fmt.Errorf("failed to append %s to %s: %w", ev.MessageName(), subject, err)
	}
	if ack.Duplicate {
		e.log.Debug("duplicate publish", slog.String("event_id", ev.UUID()))
	}
	return nil
}

func (e *EventStore) Load(
	ctx context.Context,
	streamName string,
	fromNumber uint64,
	opts ...es.StoreLoadOption,
) (loaded []es.AggregateChanged, err error) {
	options := es.NewStoreLoadOptions(opts...)
	if err = options.Matcher.Validate(); err != nil {
		return nil, err
	}
	if err = e.mustExist(ctx, streamName); err != nil {
		return nil, err
	}
	if fromNumber < 1 {
		fromNumber = 1
	}

	startAt := time.Now()
	defer func() {
		if err == nil {
			e.log.Debug(
				"loaded",
				slog.String("name", streamName),
				slog.Uint64("from", fromNumber),
				slog.String("matcher", options.Matcher.String()),
				slog.Int("num_events", len(loaded)),
				slog.Duration("duration", time.Since(startAt)),
			)
		}
	}()

	subject := e.subject(streamName)
	last, err := e.stream.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return []es.AggregateChanged{}, nil
		}
		return nil, fmt.Errorf("failed to get last message of %s: %w", subject, err)
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{subject},
	})
	if err != nil {
		return nil, err
	}
	return e.consume(ctx, cc, last.Sequence, fromNumber, options)
}

// consume reads the subject of cc up to endSeq. Positions count the
// messages of the subject starting at 1.
func (e *EventStore) consume(
	ctx context.Context,
	cc jetstream.Consumer,
	endSeq uint64,
	fromNumber uint64,
	options es.StoreLoadOptions,
) ([]es.AggregateChanged, error) {
	var (
		loaded   = make([]es.AggregateChanged, 0)
		position uint64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mb, err := cc.Fetch(fetchBatch, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			return nil, err
		}

		received := 0
		for msg := range mb.Messages() {
			received++
			position++

			md, err := msg.Metadata()
			if err != nil {
				return nil, err
			}

			if position >= fromNumber {
				var ev es.AggregateChanged
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					return nil, fmt.Errorf("failed to decode message %d: %w", md.Sequence.Stream, err)
				}
				if options.Matcher.Matches(ev) {
					loaded = append(loaded, ev)
					if options.Limit(len(loaded)) {
						return loaded, nil
					}
				}
			}

			if md.Sequence.Stream >= endSeq {
				return loaded, nil
			}
		}
		if err := mb.Error(); err != nil {
			return nil, err
		}
		if received == 0 {
			return nil, fmt.Errorf("stream ended before sequence %d", endSeq)
		}
	}
}

func (e *EventStore) HasStream(ctx context.Context, streamName string) (bool, error) {
	_, err := e.registry.Get(ctx, streamKey(streamName))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *EventStore) FetchStreamMetadata(ctx context.Context, streamName string) (map[string]any, error) {
	rec, err := e.streamRecord(ctx, streamName)
	if err != nil {
		return nil, err
	}
	if rec.Metadata == nil {
		return map[string]any{}, nil
	}
	return rec.Metadata, nil
}

func (e *EventStore) mustExist(ctx context.Context, streamName string) error {
	_, err := e.streamRecord(ctx, streamName)
	return err
}

func (e *EventStore) streamRecord(ctx context.Context, streamName string) (*streamRecord, error) {
	entry, err := e.registry.Get(ctx, streamKey(streamName))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", es.ErrStreamNotFound, streamName)
		}
		return nil, err
	}
	var rec streamRecord
	if err := json.Unmarshal(entry.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode stream %s: %w", streamName, err)
	}
	return &rec, nil
}

var _ es.EventStore = (*EventStore)(nil)

// --- naming ---

// token encodes s as a single subject or key token.
func token(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func (e *EventStore) subject(streamName string) string {
	return e.subjectPrefix + "." + token(streamName)
}

func streamKey(streamName string) string { return "s." + token(streamName) }

func versionClaimKey(streamName string, ev es.AggregateChanged) (string, bool) {
	typ := aggregateType(ev)
	if typ == "" || ev.AggregateID() == "" || ev.Version() == 0 {
		return "", false
	}
	return strings.Join([]string{
		"v",
		token(streamName),
		token(typ),
		token(ev.AggregateID()),
		strconv.FormatUint(ev.Version().Uint64(), 10),
	}, "."), true
}

func aggregateType(ev es.AggregateChanged) string {
	v, _ := ev.MetadataValue(es.MetaAggregateType)
	typ, _ := v.(string)
	return typ
}
