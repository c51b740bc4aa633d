package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/codewandler/esrepo-go/core/es"
)

// EventStore implements es.EventStore on the event_streams and
// stream_events tables. Run Migrate before first use.
type EventStore struct {
	db      *sqlx.DB
	dialect Dialect
	gq      goqu.DialectWrapper
	log     *slog.Logger
}

type eventRow struct {
	No        int64  `db:"no"`
	EventID   string `db:"event_id"`
	EventType string `db:"event_type"`
	Payload   []byte `db:"payload"`
	Metadata  []byte `db:"metadata"`
	CreatedAt string `db:"created_at"`
}

func NewEventStore(cfg Config) (*EventStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &EventStore{
		db:      cfg.DB,
		dialect: cfg.Dialect,
		gq:      cfg.builder(),
		log:     cfg.logger().With(slog.String("store", "sql"), slog.String("dialect", string(cfg.Dialect))),
	}, nil
}

func (s *EventStore) Create(ctx context.Context, stream es.Stream) error {
	if stream.Name == "" {
		return errors.New("stream name is empty")
	}

	md, err := jsonCodec.Marshal(nonNil(stream.Metadata))
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.gq.Insert(tableStreams).Prepared(true).Rows(goqu.Record{
			"stream_name": stream.Name,
			"metadata":    string(md),
			"created_at":  time.Now().UTC().Format(es.TimeFormat),
		}).ToSQL()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", es.ErrStreamExistsAlready, stream.Name)
			}
			return err
		}
		return s.insertEvents(ctx, tx, stream.Name, 0, stream.Events)
	})
	if err != nil {
		return err
	}

	s.log.Debug("created", slog.String("name", stream.Name), slog.Int("num_events", len(stream.Events)))
	return nil
}

func (s *EventStore) AppendTo(ctx context.Context, streamName string, events []es.AggregateChanged) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockStream(ctx, tx, streamName); err != nil {
			return err
		}
		last, err := s.lastNumber(ctx, tx, streamName)
		if err != nil {
			return err
		}
		return s.insertEvents(ctx, tx, streamName, last, events)
	})
	if err != nil {
		return err
	}

	s.log.Debug("append", slog.String("name", streamName), slog.Int("num_events", len(events)))
	return nil
}

// lockStream fails with es.ErrStreamNotFound for unknown streams. On
// PostgreSQL it holds the stream row until the transaction ends.
func (s *EventStore) lockStream(ctx context.Context, tx *sqlx.Tx, streamName string) error {
	ds := s.gq.From(tableStreams).Prepared(true).
		Select("stream_name").
		Where(goqu.C("stream_name").Eq(streamName))
	if s.dialect == DialectPostgres {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return err
	}

	var name string
	if err := tx.GetContext(ctx, &name, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", es.ErrStreamNotFound, streamName)
		}
		return err
	}
	return nil
}

func (s *EventStore) lastNumber(ctx context.Context, tx *sqlx.Tx, streamName string) (int64, error) {
	query, args, err := s.gq.From(tableEvents).Prepared(true).
		Select(goqu.COALESCE(goqu.MAX("no"), 0)).
		Where(goqu.C("stream_name").Eq(streamName)).
		ToSQL()
	if err != nil {
		return 0, err
	}
	var last int64
	if err := tx.GetContext(ctx, &last, query, args...); err != nil {
		return 0, err
	}
	return last, nil
}

// insertEvents numbers events after position last.
func (s *EventStore) insertEvents(ctx context.Context, tx *sqlx.Tx, streamName string, last int64, events []es.AggregateChanged) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]any, len(events))
	for i, e := range events {
		rec, err := eventRecord(streamName, last+int64(i)+1, e)
		if err != nil {
			return err
		}
		rows[i] = rec
	}

	query, args, err := s.gq.Insert(tableEvents).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", es.ErrConcurrencyConflict, streamName)
		}
		return err
	}
	return nil
}

func eventRecord(streamName string, no int64, e es.AggregateChanged) (goqu.Record, error) {
	payload, err := jsonCodec.Marshal(nonNil(e.Payload()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of %s: %w", e.UUID(), err)
	}
	md, err := jsonCodec.Marshal(nonNil(e.Metadata()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata of %s: %w", e.UUID(), err)
	}
	aggType, _ := e.Metadata()[es.MetaAggregateType].(string)
	return goqu.Record{
		"stream_name":       streamName,
		"no":                no,
		"event_id":          e.UUID(),
		"event_type":        e.MessageName(),
		"aggregate_type":    aggType,
		"aggregate_id":      e.AggregateID(),
		"aggregate_version": int64(e.Version()),
		"payload":           string(payload),
		"metadata":          string(md),
		"created_at":        e.CreatedAt().UTC().Format(es.TimeFormat),
	}, nil
}

func (s *EventStore) Load(
	ctx context.Context,
	streamName string,
	fromNumber uint64,
	opts ...es.StoreLoadOption,
) (loaded []es.AggregateChanged, err error) {
	options := es.NewStoreLoadOptions(opts...)
	where, err := matcherExpressions(s.dialect, options.Matcher)
	if err != nil {
		return nil, err
	}

	ok, err := s.HasStream(ctx, streamName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", es.ErrStreamNotFound, streamName)
	}

	startAt := time.Now()
	defer func() {
		if err == nil {
			s.log.Debug(
				"loaded",
				slog.String("name", streamName),
				slog.Uint64("from", fromNumber),
				slog.String("matcher", options.Matcher.String()),
				slog.Int("num_events", len(loaded)),
				slog.Duration("duration", time.Since(startAt)),
			)
		}
	}()

	ds := s.gq.From(tableEvents).Prepared(true).
		Select("no", "event_id", "event_type", "payload", "metadata", "created_at").
		Where(goqu.C("stream_name").Eq(streamName), goqu.C("no").Gte(int64(max(fromNumber, 1)))).
		Where(where...).
		Order(goqu.C("no").Asc())
	if options.Count > 0 {
		ds = ds.Limit(uint(options.Count))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", streamName, err)
	}

	loaded = make([]es.AggregateChanged, 0, len(rows))
	for _, row := range rows {
		e, err := row.event()
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d of %s: %w", row.No, streamName, err)
		}
		loaded = append(loaded, e)
	}
	return loaded, nil
}

func (r eventRow) event() (es.AggregateChanged, error) {
	payload, err := es.UnmarshalMap(r.Payload)
	if err != nil {
		return es.AggregateChanged{}, err
	}
	md, err := es.UnmarshalMap(r.Metadata)
	if err != nil {
		return es.AggregateChanged{}, err
	}
	createdAt, err := es.ParseTime(r.CreatedAt)
	if err != nil {
		return es.AggregateChanged{}, err
	}
	return es.RestoreAggregateChanged(r.EventID, r.EventType, payload, md, createdAt)
}

func (s *EventStore) HasStream(ctx context.Context, streamName string) (bool, error) {
	query, args, err := s.gq.From(tableStreams).Prepared(true).
		Select(goqu.COUNT("*")).
		Where(goqu.C("stream_name").Eq(streamName)).
		ToSQL()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *EventStore) FetchStreamMetadata(ctx context.Context, streamName string) (map[string]any, error) {
	query, args, err := s.gq.From(tableStreams).Prepared(true).
		Select("metadata").
		Where(goqu.C("stream_name").Eq(streamName)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := s.db.GetContext(ctx, &data, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", es.ErrStreamNotFound, streamName)
		}
		return nil, err
	}
	return es.UnmarshalMap(data)
}

func (s *EventStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("rollback failed", slog.Any("error", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ es.EventStore = (*EventStore)(nil)
