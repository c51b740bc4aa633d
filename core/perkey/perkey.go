// Package perkey serializes work per key while work for different keys
// runs concurrently.
//
// Typical use: commands against event sourced aggregates, where writers
// of the same aggregate would otherwise race on its version.
package perkey

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("perkey: closed")

// Lanes hands out one lane per key. A lane admits a single function at a
// time; idle lanes are dropped.
type Lanes[K comparable] struct {
	mu     sync.Mutex
	lanes  map[K]*lane
	closed bool
}

type lane struct {
	token chan struct{}
	refs  int
}

func New[K comparable]() *Lanes[K] {
	return &Lanes[K]{lanes: make(map[K]*lane)}
}

// Do runs fn once no other function runs for key. Waiting callers give up
// when ctx is done; fn itself receives ctx.
func (l *Lanes[K]) Do(ctx context.Context, key K, fn func(ctx context.Context) error) error {
	ln, err := l.acquire(key)
	if err != nil {
		return err
	}
	defer l.release(key, ln)

	select {
	case ln.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ln.token }()

	return fn(ctx)
}

// Len returns the number of keys with running or waiting functions.
func (l *Lanes[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close rejects further calls. Running functions are not interrupted.
func (l *Lanes[K]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Lanes[K]) acquire(key K) (*lane, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{token: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	return ln, nil
}

func (l *Lanes[K]) release(key K, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}
