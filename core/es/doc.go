// Package es provides the persistence core of an event sourced domain
// model: aggregates, their event envelopes and the repository that loads
// and saves them through an [EventStore].
//
// # Aggregates
//
// An aggregate embeds [AggregateRoot] and changes state only by recording
// events with [RecordThat]. Apply dispatches an event to its handler,
// either through a switch or an [EventHandlers] table; an event without a
// handler is a programming error and fails with [ErrMissingEventHandler].
//
//	type User struct {
//	    es.AggregateRoot
//	    id   string
//	    name string
//	}
//
//	func (u *User) ChangeName(name string) error {
//	    return es.RecordThat(u, es.Occur(UserNameChanged, u.id, map[string]any{"name": name}))
//	}
//
// # Repository
//
// [Repository] stores aggregates either in one shared stream, selecting an
// aggregate's events by metadata, or in one stream per aggregate. It keeps
// an identity map so that repeated loads within a unit of work return the
// same instance, and with a [SnapshotStore] configured it restores from the
// latest snapshot and replays only newer events.
//
//	repo, _ := es.NewRepository(store, es.AggregateTypeFor[*User](), es.NewAggregateTranslator())
//	u, err := repo.GetAggregateRoot(ctx, "user-123")
//	if errors.Is(err, es.ErrAggregateNotFound) { ... }
//
// [UnitOfWork] commits or rolls back the repositories used by one business
// transaction. [SnapshotReadModel] builds snapshots from a stream of events.
//
// # Stores
//
// [InMemoryStore] and [InMemorySnapshotStore] serve tests. The adapters
// packages provide NATS JetStream and SQL backed stores.
package es
