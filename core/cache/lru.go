package cache

import (
	"container/list"
	"sync"
)

type LRUOpts struct {
	Size int
}

type entry struct {
	key string
	val any
}

// LRU is a size bounded cache evicting the least recently used entry.
type LRU struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	index map[string]*list.Element
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	return &LRU{
		size:  opts.Size,
		ll:    list.New(),
		index: make(map[string]*list.Element),
	}
}

func (l *LRU) Get(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.index[key]
	if !ok {
		return nil, false
	}
	l.ll.MoveToFront(ele)
	return ele.Value.(*entry).val, true
}

func (l *LRU) Put(key string, val any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ele, ok := l.index[key]; ok {
		l.ll.MoveToFront(ele)
		ele.Value.(*entry).val = val
		return
	}

	l.index[key] = l.ll.PushFront(&entry{key: key, val: val})
	if l.ll.Len() > l.size {
		if last := l.ll.Back(); last != nil {
			l.ll.Remove(last)
			delete(l.index, last.Value.(*entry).key)
		}
	}
}

func (l *LRU) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ele, ok := l.index[key]; ok {
		l.ll.Remove(ele)
		delete(l.index, key)
	}
}

func (l *LRU) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, l.ll.Len())
	for ele := l.ll.Front(); ele != nil; ele = ele.Next() {
		keys = append(keys, ele.Value.(*entry).key)
	}
	return keys
}

func (l *LRU) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ll.Init()
	clear(l.index)
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

var _ Cache = (*LRU)(nil)
