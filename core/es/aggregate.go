package es

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/esrepo-go/core/es/assert"
)

var (
	ErrAggregateNotFound         = errors.New("aggregate not found")
	ErrMissingEventHandler       = errors.New("missing event handler")
	ErrAggregateHasPendingEvents = errors.New("aggregate has pending events")
	ErrInvalidEvent              = errors.New("invalid event")
)

// Aggregate is an event sourced domain object. Concrete aggregates embed
// [AggregateRoot], which provides version tracking and the pending event
// buffer, and implement Apply to mutate their state from one event.
//
//	type User struct {
//	    es.AggregateRoot
//	    id   string
//	    name string
//	}
//
//	func (u *User) AggregateID() string { return u.id }
//	func (u *User) Apply(e es.AggregateChanged) error { ... }
//
// Version and pending events are only reachable through the repository and
// [AggregateTranslator]; domain code changes state with [RecordThat].
type Aggregate interface {
	AggregateID() string
	// Apply mutates state from e. Unknown events must fail with
	// ErrMissingEventHandler, see [EventHandlers] and [MissingEventHandler].
	Apply(e AggregateChanged) error

	root() *AggregateRoot
}

// AggregateRoot is the embeddable base of every aggregate.
type AggregateRoot struct {
	version  Version
	recorded []AggregateChanged
}

func (r *AggregateRoot) root() *AggregateRoot { return r }

// HasPendingEvents reports whether events were recorded since the last save.
func (r *AggregateRoot) HasPendingEvents() bool { return len(r.recorded) > 0 }

// Checked runs then only if c holds.
func (r *AggregateRoot) Checked(c assert.Cond, then func() error) error {
	if err := c.Check(); err != nil {
		return err
	}
	return then()
}

func (r *AggregateRoot) popRecordedEvents() []AggregateChanged {
	out := r.recorded
	r.recorded = nil
	return out
}

// RecordThat stamps each event with the next version, buffers it as
// pending and applies it to a. It stops at the first failing Apply. Events
// without an aggregate id fail with ErrInvalidEvent.
func RecordThat(a Aggregate, events ...AggregateChanged) error {
	r := a.root()
	for _, e := range events {
		if e.AggregateID() == "" {
			return fmt.Errorf("%w: %s has no aggregate id", ErrInvalidEvent, e.MessageName())
		}
		r.version++
		e = e.WithVersion(r.version)
		r.recorded = append(r.recorded, e)
		if err := a.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// replay applies historical events, adopting each event's version.
func replay(a Aggregate, events []AggregateChanged) error {
	r := a.root()
	for _, e := range events {
		r.version = e.Version()
		if err := a.Apply(e); err != nil {
			return fmt.Errorf("replay %s: %w", e, err)
		}
	}
	return nil
}

// EventHandlers is a dispatch table from event name to handler.
//
//	func (u *User) Apply(e es.AggregateChanged) error {
//	    return es.EventHandlers{
//	        UserCreated:     u.whenUserCreated,
//	        UserNameChanged: u.whenUserNameChanged,
//	    }.Dispatch(u, e)
//	}
type EventHandlers map[string]func(e AggregateChanged) error

// Dispatch calls the handler registered for e or fails with
// ErrMissingEventHandler.
func (h EventHandlers) Dispatch(owner any, e AggregateChanged) error {
	fn, ok := h[e.MessageName()]
	if !ok || fn == nil {
		return MissingEventHandler(owner, e)
	}
	return fn(e)
}

// MissingEventHandler returns the error for an event owner cannot handle.
func MissingEventHandler(owner any, e AggregateChanged) error {
	return fmt.Errorf("%w: %T has no handler when%s", ErrMissingEventHandler, owner, shortName(e.MessageName()))
}

func shortName(name string) string {
	if i := strings.LastIndexAny(name, `.\/`); i >= 0 {
		return name[i+1:]
	}
	return name
}
