package es

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	name string
	log  *[]string
	fail error
}

func (h *recordingHook) BeforeCommit(context.Context) error {
	*h.log = append(*h.log, h.name+".before")
	return h.fail
}
func (h *recordingHook) AfterCommit(context.Context) { *h.log = append(*h.log, h.name+".after") }
func (h *recordingHook) Rollback(context.Context)    { *h.log = append(*h.log, h.name+".rollback") }

func TestUnitOfWork_Commit(t *testing.T) {
	var log []string
	uow := NewUnitOfWork(nil, &recordingHook{name: "a", log: &log})
	uow.Register(&recordingHook{name: "b", log: &log})

	require.NotEmpty(t, uow.ID())
	require.NoError(t, uow.Commit(t.Context()))
	require.Equal(t, []string{"a.before", "b.before", "a.after", "b.after"}, log)

	require.Error(t, uow.Commit(t.Context()))
}

func TestUnitOfWork_failingHookRollsBack(t *testing.T) {
	var (
		log  []string
		boom = errors.New("boom")
	)
	uow := NewUnitOfWork(nil,
		&recordingHook{name: "a", log: &log, fail: boom},
		&recordingHook{name: "b", log: &log},
	)

	require.ErrorIs(t, uow.Commit(t.Context()), boom)
	require.Equal(t, []string{"a.before", "a.rollback", "b.rollback"}, log)
}

func TestUnitOfWork_Do(t *testing.T) {
	var log []string
	fail := errors.New("fail")

	err := NewUnitOfWork(nil, &recordingHook{name: "a", log: &log}).Do(t.Context(), func(context.Context) error {
		return fail
	})
	require.ErrorIs(t, err, fail)
	require.Equal(t, []string{"a.rollback"}, log)

	log = nil
	err = NewUnitOfWork(nil, &recordingHook{name: "a", log: &log}).Do(t.Context(), func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.before", "a.after"}, log)
}
