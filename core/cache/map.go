package cache

import "maps"

// Map is an unbounded cache backed by a plain map. It performs no locking
// and must be confined to a single goroutine.
type Map struct {
	m map[string]any
}

func NewMap() *Map {
	return &Map{m: map[string]any{}}
}

func (c *Map) Get(key string) (any, bool) {
	v, ok := c.m[key]
	return v, ok
}

func (c *Map) Put(key string, val any) { c.m[key] = val }
func (c *Map) Delete(key string)       { delete(c.m, key) }
func (c *Map) Clear()                  { clear(c.m) }
func (c *Map) Len() int                { return len(c.m) }

func (c *Map) Keys() []string {
	keys := make([]string, 0, len(c.m))
	for k := range maps.Keys(c.m) {
		keys = append(keys, k)
	}
	return keys
}

var _ Cache = (*Map)(nil)
