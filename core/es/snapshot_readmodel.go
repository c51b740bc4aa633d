package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrNotSupported = errors.New("not supported")

// SnapshotReadModel turns a stream of events into snapshots. Stack collects
// the aggregates touched by the events, Persist writes one snapshot per
// aggregate in a single batch.
type SnapshotReadModel struct {
	log        *slog.Logger
	repo       *Repository
	translator AggregateTranslator
	store      SnapshotStore
	cache      map[string]Aggregate
	order      []string
}

func NewSnapshotReadModel(
	repo *Repository,
	translator AggregateTranslator,
	store SnapshotStore,
	opts ...LogOption,
) *SnapshotReadModel {
	var log *slog.Logger
	for _, o := range opts {
		log = o.v
	}
	return &SnapshotReadModel{
		log:        logOrDefault(log).With(slog.String("read_model", "snapshot"), slog.String("aggregate_type", repo.aggType.String())),
		repo:       repo,
		translator: translator,
		store:      store,
		cache:      map[string]Aggregate{},
	}
}

// Stack brings the aggregates referenced by events up to date. Events of
// aggregates the repository does not know are skipped, as are events the
// aggregate has already seen.
func (m *SnapshotReadModel) Stack(ctx context.Context, events ...AggregateChanged) error {
	for _, e := range events {
		aggID := e.AggregateID()
		if aggID == "" {
			continue
		}

		a, ok := m.cache[aggID]
		if !ok {
			loaded, err := m.repo.GetAggregateRoot(ctx, aggID)
			if errors.Is(err, ErrAggregateNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			a = loaded
			m.cache[aggID] = a
			m.order = append(m.order, aggID)
		}

		if e.Version() <= m.translator.ExtractAggregateVersion(a) {
			continue
		}
		if err := m.translator.ReplayStreamEvents(a, []AggregateChanged{e}); err != nil {
			return err
		}
	}
	return nil
}

// Persist saves a snapshot of every stacked aggregate and forgets them.
func (m *SnapshotReadModel) Persist(ctx context.Context) error {
	if len(m.order) == 0 {
		return nil
	}

	snapshots := make([]*Snapshot, 0, len(m.order))
	for _, aggID := range m.order {
		ss, err := NewSnapshot(m.repo.aggType, m.cache[aggID])
		if err != nil {
			return err
		}
		snapshots = append(snapshots, ss)
	}

	stopTimer := m.repo.metrics.SnapshotSaveDuration(m.repo.aggType.String())
	err := m.store.Save(ctx, snapshots...)
	stopTimer.ObserveDuration()
	if err != nil {
		return fmt.Errorf("failed to save %d snapshots: %w", len(snapshots), err)
	}

	m.log.Debug("persisted", slog.Int("num_snapshots", len(snapshots)))
	clear(m.cache)
	m.order = m.order[:0]
	m.repo.ClearIdentityMap()
	return nil
}

func (m *SnapshotReadModel) Init(context.Context) error   { return ErrNotSupported }
func (m *SnapshotReadModel) Reset(context.Context) error  { return ErrNotSupported }
func (m *SnapshotReadModel) Delete(context.Context) error { return ErrNotSupported }
