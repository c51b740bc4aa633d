// Package cache provides the small key-value cache abstraction used for
// identity maps.
//
// The package defines two interfaces:
//
//   - [Cache]: Untyped cache storing values as any
//   - [TypedCache]: Generic type-safe wrapper via [NewTyped]
//
// # Implementations
//
// [Map] is an unbounded map without locking. It is what a repository uses
// for its identity map: one repository belongs to one unit of work, which
// runs on one goroutine.
//
// [LRU] bounds the number of entries and is safe for concurrent use:
//
//	c := cache.NewLRU(cache.LRUOpts{Size: 1000})
//	c.Put("key", value)
//	if val, ok := c.Get("key"); ok {
//	    // Use val
//	}
//
// [Nop] never stores anything and turns an identity map off.
package cache
