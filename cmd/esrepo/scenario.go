package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/perkey"
)

type Summary struct {
	RunID     string
	Accounts  int
	Deposits  int
	Conflicts int64
	Snapshots int
	Duration  time.Duration
}

func (s Summary) LogAttrs() []any {
	return []any{
		slog.String("run", s.RunID),
		slog.Int("accounts", s.Accounts),
		slog.Int("deposits", s.Deposits),
		slog.Int64("conflicts", s.Conflicts),
		slog.Int("snapshots", s.Snapshots),
		slog.Duration("duration", s.Duration),
	}
}

type scenario struct {
	env       *es.Env
	cfg       *Config
	log       *slog.Logger
	aggType   es.AggregateType
	ids       []string
	lanes     *perkey.Lanes[string]
	conflicts atomic.Int64
}

// run opens the configured number of accounts, deposits into them from
// concurrent units of work, snapshots them and checks every balance.
func run(ctx context.Context, env *es.Env, cfg *Config, log *slog.Logger) (*Summary, error) {
	startAt := time.Now()
	s := &scenario{
		env:     env,
		cfg:     cfg,
		log:     log,
		aggType: (&Account{}).AggregateType(),
		lanes:   perkey.New[string](),
	}
	defer s.lanes.Close()
	runID := gonanoid.Must(6)
	for i := range cfg.Accounts {
		s.ids = append(s.ids, fmt.Sprintf("%s-%04d", runID, i))
	}

	if err := s.openAccounts(ctx); err != nil {
		return nil, err
	}
	log.Info("accounts opened", slog.Int("accounts", len(s.ids)))

	if err := s.deposit(ctx); err != nil {
		return nil, err
	}
	log.Info("deposits done", slog.Int64("conflicts", s.conflicts.Load()))

	snapshots, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.verify(ctx); err != nil {
		return nil, err
	}

	return &Summary{
		RunID:     runID,
		Accounts:  len(s.ids),
		Deposits:  len(s.ids) * cfg.Deposits,
		Conflicts: s.conflicts.Load(),
		Snapshots: snapshots,
		Duration:  time.Since(startAt),
	}, nil
}

func (s *scenario) repository(ctx context.Context) (*es.TypedRepository[*Account], error) {
	repo, err := s.env.Repository(s.aggType)
	if err != nil {
		return nil, err
	}
	if err := repo.InitializeStream(ctx); err != nil {
		return nil, err
	}
	return es.NewTypedRepository[*Account](repo), nil
}

func (s *scenario) openAccounts(ctx context.Context) error {
	accounts, err := s.repository(ctx)
	if err != nil {
		return err
	}
	for i, id := range s.ids {
		a, err := OpenAccount(id, fmt.Sprintf("owner-%d", i))
		if err != nil {
			return err
		}
		if err := accounts.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// amount is the value of the n-th deposit, starting at 0.
func amount(n int) int64 { return int64(n + 1) }

func expectedBalance(deposits int) int64 {
	return int64(deposits) * int64(deposits+1) / 2
}

func (s *scenario) deposit(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for n := range s.cfg.Deposits {
		for _, id := range s.ids {
			g.Go(func() error {
				if !s.cfg.Serialize {
					return s.depositOnce(gctx, id, amount(n))
				}
				return s.lanes.Do(gctx, id, func(ctx context.Context) error {
					return s.depositOnce(ctx, id, amount(n))
				})
			})
		}
	}
	return g.Wait()
}

// depositOnce runs one deposit in its own unit of work and retries it on
// concurrency conflicts.
func (s *scenario) depositOnce(ctx context.Context, id string, value int64) error {
	for attempt := 0; ; attempt++ {
		accounts, err := s.repository(ctx)
		if err != nil {
			return err
		}
		uow := s.env.UnitOfWork(accounts.Repository())
		err = uow.Do(ctx, func(ctx context.Context) error {
			a, err := accounts.Get(ctx, id)
			if err != nil {
				return err
			}
			return a.Deposit(value)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, es.ErrConcurrencyConflict) {
			return err
		}
		s.conflicts.Add(1)
		if attempt >= s.cfg.Retries {
			return fmt.Errorf("deposit into %s gave up after %d attempts: %w", id, attempt+1, err)
		}
		s.log.Debug("retry deposit", slog.String("account", id), slog.Int("attempt", attempt+1))
	}
}

// snapshot stacks the history of every account into a snapshot read
// model. It returns the number of accounts seen.
func (s *scenario) snapshot(ctx context.Context) (int, error) {
	if !s.cfg.Snapshots {
		return 0, nil
	}

	accounts, err := s.repository(ctx)
	if err != nil {
		return 0, err
	}
	repo := accounts.Repository()
	rm, err := s.env.SnapshotReadModel(repo)
	if err != nil {
		return 0, err
	}

	if s.cfg.StreamMode == "shared" {
		events, err := s.env.Store().Load(ctx, repo.StreamName(""), 1, es.WithMetadataMatcher(
			es.NewMetadataMatcher().WithMetadataMatch(es.MetaAggregateType, es.OpEquals, s.aggType.String()),
		))
		if err != nil {
			return 0, err
		}
		if err := rm.Stack(ctx, events...); err != nil {
			return 0, err
		}
	} else {
		for _, id := range s.ids {
			events, err := s.env.Store().Load(ctx, repo.StreamName(id), 1)
			if err != nil {
				return 0, err
			}
			if err := rm.Stack(ctx, events...); err != nil {
				return 0, err
			}
		}
	}

	if err := rm.Persist(ctx); err != nil {
		return 0, err
	}
	return len(s.ids), nil
}

func (s *scenario) verify(ctx context.Context) error {
	accounts, err := s.repository(ctx)
	if err != nil {
		return err
	}
	want := expectedBalance(s.cfg.Deposits)
	for _, id := range s.ids {
		a, err := accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		if a.Balance != want || a.Deposits != s.cfg.Deposits {
			return fmt.Errorf("account %s: balance %d after %d deposits, want %d after %d", id, a.Balance, a.Deposits, want, s.cfg.Deposits)
		}
	}
	return nil
}
