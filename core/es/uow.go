package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	// CommitHook takes part in a UnitOfWork commit. BeforeCommit may fail
	// and abort the commit, AfterCommit runs once everything succeeded.
	CommitHook interface {
		BeforeCommit(ctx context.Context) error
		AfterCommit(ctx context.Context)
	}

	// RollbackHook is notified when a UnitOfWork is rolled back.
	RollbackHook interface {
		Rollback(ctx context.Context)
	}
)

// UnitOfWork groups the repositories used by one business transaction.
// Commit flushes every registered hook, Rollback discards their state.
//
//	uow := es.NewUnitOfWork(log, users, orders)
//	err := uow.Do(ctx, func(ctx context.Context) error {
//	    u, err := users.GetAggregateRoot(ctx, id)
//	    ...
//	})
type UnitOfWork struct {
	id    string
	log   *slog.Logger
	hooks []CommitHook
	done  bool
}

func NewUnitOfWork(log *slog.Logger, hooks ...CommitHook) *UnitOfWork {
	id := gonanoid.Must()
	return &UnitOfWork{
		id:    id,
		log:   logOrDefault(log).With(slog.String("uow", id)),
		hooks: hooks,
	}
}

func (u *UnitOfWork) ID() string { return u.id }

// Register adds hooks to an open unit of work.
func (u *UnitOfWork) Register(hooks ...CommitHook) { u.hooks = append(u.hooks, hooks...) }

// Commit runs BeforeCommit on every hook in registration order. On the
// first failure the unit of work is rolled back and the error returned.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	for i, h := range u.hooks {
		if err := h.BeforeCommit(ctx); err != nil {
			u.Rollback(ctx)
			return fmt.Errorf("commit hook %d (%T): %w", i, h, err)
		}
	}
	for _, h := range u.hooks {
		h.AfterCommit(ctx)
	}
	u.done = true
	u.log.Debug("committed", slog.Int("num_hooks", len(u.hooks)))
	return nil
}

// Rollback notifies every hook implementing RollbackHook.
func (u *UnitOfWork) Rollback(ctx context.Context) {
	if u.done {
		return
	}
	for _, h := range u.hooks {
		if rh, ok := h.(RollbackHook); ok {
			rh.Rollback(ctx)
		}
	}
	u.done = true
	u.log.Debug("rolled back")
}

// Do runs fn and commits, or rolls back if fn fails.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		u.Rollback(ctx)
		return err
	}
	return u.Commit(ctx)
}
