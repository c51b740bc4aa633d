package cache

// Nop is a cache that never holds anything.
type Nop struct{}

func (n *Nop) Get(string) (any, bool) { return nil, false }
func (n *Nop) Put(string, any)        {}
func (n *Nop) Delete(string)          {}
func (n *Nop) Keys() []string         { return nil }
func (n *Nop) Clear()                 {}
func (n *Nop) Len() int               { return 0 }

func NewNop() *Nop {
	return &Nop{}
}

var _ Cache = (*Nop)(nil)
