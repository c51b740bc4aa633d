// Package metrics holds the backend neutral instrumentation primitives the
// event sourcing packages report through.
package metrics

import "time"

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
//
//	defer m.RepoLoadDuration("user").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type funcTimer struct {
	start   time.Time
	observe func(time.Duration)
}

func (t funcTimer) ObserveDuration() { t.observe(time.Since(t.start)) }

// NewTimer starts a timer reporting the elapsed time to observe.
func NewTimer(observe func(time.Duration)) Timer {
	if observe == nil {
		return nopTimer{}
	}
	return funcTimer{start: time.Now(), observe: observe}
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a Timer that records nothing.
func NopTimer() Timer { return nopTimer{} }
