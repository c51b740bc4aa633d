package es

import (
	"errors"
	"fmt"
)

var ErrEmptyHistory = errors.New("empty history")

// AggregateTranslator is the privileged bridge between the repository and
// aggregates. It is the only place that reads versions, drains pending
// events and rebuilds aggregates from history.
type AggregateTranslator interface {
	ExtractAggregateID(a Aggregate) string
	ExtractAggregateVersion(a Aggregate) Version
	// ExtractPendingStreamEvents returns the pending events of a and
	// clears them. A second call returns nothing.
	ExtractPendingStreamEvents(a Aggregate) []AggregateChanged
	ReconstituteAggregateFromHistory(t AggregateType, history []AggregateChanged) (Aggregate, error)
	ReplayStreamEvents(a Aggregate, events []AggregateChanged) error
}

type aggregateTranslator struct{}

func NewAggregateTranslator() AggregateTranslator { return aggregateTranslator{} }

func (aggregateTranslator) ExtractAggregateID(a Aggregate) string { return a.AggregateID() }

func (aggregateTranslator) ExtractAggregateVersion(a Aggregate) Version { return a.root().version }

func (aggregateTranslator) ExtractPendingStreamEvents(a Aggregate) []AggregateChanged {
	return a.root().popRecordedEvents()
}

func (aggregateTranslator) ReconstituteAggregateFromHistory(
	t AggregateType,
	history []AggregateChanged,
) (Aggregate, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: cannot reconstitute %s", ErrEmptyHistory, t)
	}

	typeName, _ := history[0].metadata[MetaAggregateType].(string)
	a, err := t.newInstance(typeName)
	if err != nil {
		return nil, err
	}
	if err := replay(a, history); err != nil {
		return nil, err
	}
	return a, nil
}

func (aggregateTranslator) ReplayStreamEvents(a Aggregate, events []AggregateChanged) error {
	return replay(a, events)
}
