package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRU_Evicts(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})

	l.Put("a", 1)
	l.Put("b", 2)

	val, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, val)

	// "a" was touched last, so "b" goes
	l.Put("c", 3)

	_, ok = l.Get("b")
	require.False(t, ok)
	require.ElementsMatch(t, []string{"a", "c"}, l.Keys())
}

func TestLRU_Update(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Put("a", 2)

	val, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, val)
	require.Equal(t, 1, l.Len())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	l := NewLRU(LRUOpts{})
	l.Put("a", 1)
	l.Put("b", 2)

	l.Delete("a")
	_, ok := l.Get("a")
	require.False(t, ok)

	l.Clear()
	require.Zero(t, l.Len())
	require.Empty(t, l.Keys())
}

func TestLRU_Concurrent(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 16})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%32)
				l.Put(key, w)
				l.Get(key)
			}
		}(w)
	}
	wg.Wait()

	require.LessOrEqual(t, l.Len(), 16)
}

func TestMap(t *testing.T) {
	m := NewMap()
	m.Put("a", 1)
	m.Put("b", 2)

	v, ok := m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.ElementsMatch(t, []string{"a", "b"}, m.Keys())

	m.Delete("b")
	require.Equal(t, 1, m.Len())

	m.Clear()
	require.Zero(t, m.Len())
}

func TestNop(t *testing.T) {
	n := NewNop()
	n.Put("a", 1)
	_, ok := n.Get("a")
	require.False(t, ok)
	require.Empty(t, n.Keys())
}

func TestTyped(t *testing.T) {
	c := NewTyped[string](NewMap())
	c.Put("a", "x")

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = c.Get("missing")
	require.False(t, ok)
}
