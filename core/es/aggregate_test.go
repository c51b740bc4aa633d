package es

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es/assert"
)

type counter struct {
	AggregateRoot

	ID    string `json:"id"`
	Count int    `json:"count"`
}

func (c *counter) AggregateID() string { return c.ID }

func (c *counter) Apply(e AggregateChanged) error {
	return EventHandlers{
		"Started":     func(e AggregateChanged) error { c.ID = e.AggregateID(); return nil },
		"Incremented": func(AggregateChanged) error { c.Count++; return nil },
	}.Dispatch(c, e)
}

func (c *counter) Inc() error {
	return c.Checked(assert.True(c.Count < 3, "count below 3"), func() error {
		return RecordThat(c, Occur("Incremented", c.ID, nil))
	})
}

func startCounter(t *testing.T, id string) *counter {
	c := &counter{}
	require.NoError(t, RecordThat(c, Occur("Started", id, nil)))
	return c
}

func TestRecordThat(t *testing.T) {
	c := startCounter(t, "c1")
	require.NoError(t, c.Inc())
	require.NoError(t, c.Inc())

	require.Equal(t, "c1", c.ID)
	require.Equal(t, 2, c.Count)
	require.Equal(t, Version(3), c.version)
	require.True(t, c.HasPendingEvents())

	pending := c.popRecordedEvents()
	require.Len(t, pending, 3)
	for i, e := range pending {
		require.Equal(t, Version(i+1), e.Version())
	}
	require.Empty(t, c.popRecordedEvents())
	require.False(t, c.HasPendingEvents())

	// version keeps counting after a pop
	require.NoError(t, c.Inc())
	require.Equal(t, Version(4), c.popRecordedEvents()[0].Version())
}

func TestRecordThat_emptyAggregateID(t *testing.T) {
	c := &counter{}
	err := RecordThat(c, Occur("Started", "", nil))
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.False(t, c.HasPendingEvents())
	require.Equal(t, Version(0), c.version)
}

func TestChecked(t *testing.T) {
	c := startCounter(t, "c1")
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Inc())
	}
	require.ErrorIs(t, c.Inc(), assert.ErrFailed)
	require.Equal(t, 3, c.Count)
}

func TestMissingEventHandler(t *testing.T) {
	c := startCounter(t, "c1")
	err := RecordThat(c, Occur("app.events.Exploded", "c1", nil))
	require.ErrorIs(t, err, ErrMissingEventHandler)
	require.ErrorContains(t, err, "whenExploded")
}

func TestReplay(t *testing.T) {
	history := []AggregateChanged{
		Occur("Started", "c1", nil).WithVersion(1),
		Occur("Incremented", "c1", nil).WithVersion(2),
		Occur("Incremented", "c1", nil).WithVersion(3),
	}

	c := &counter{}
	require.NoError(t, replay(c, history))
	require.Equal(t, Version(3), c.version)
	require.Equal(t, 2, c.Count)
	require.False(t, c.HasPendingEvents())

	require.NoError(t, replay(c, nil))

	err := replay(c, []AggregateChanged{Occur("Unknown", "c1", nil).WithVersion(4)})
	require.True(t, errors.Is(err, ErrMissingEventHandler))
}
