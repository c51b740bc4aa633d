package cache

// Cache is a string keyed store of arbitrary values.
//
// Implementations differ in their eviction and concurrency guarantees:
// [Map] neither evicts nor locks, [LRU] evicts the least recently used
// entry and is safe for concurrent use, [Nop] stores nothing.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any)
	Delete(key string)
	// Keys returns the keys currently held, in no particular order.
	Keys() []string
	// Clear drops every entry.
	Clear()
	Len() int
}

type TypedCache[T any] interface {
	Put(key string, val T)
	Get(key string) (T, bool)
	Delete(key string)
	Keys() []string
	Clear()
}

type typedCache[T any] struct {
	c Cache
}

func NewTyped[T any](c Cache) TypedCache[T] { return &typedCache[T]{c: c} }

func (t *typedCache[T]) Get(key string) (out T, ok bool) {
	var v any
	v, ok = t.c.Get(key)
	if !ok {
		return out, false
	}

	if out, ok = v.(T); !ok {
		return out, false
	}
	return
}

func (t *typedCache[T]) Put(key string, val T) { t.c.Put(key, val) }
func (t *typedCache[T]) Delete(key string)     { t.c.Delete(key) }
func (t *typedCache[T]) Keys() []string        { return t.c.Keys() }
func (t *typedCache[T]) Clear()                { t.c.Clear() }

var _ TypedCache[any] = (*typedCache[any])(nil)
