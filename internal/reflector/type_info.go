package reflector

import (
	"reflect"
	"sync"
)

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]TypeInfo)
)

// TypeInfo describes a named Go type with pointers stripped.
type TypeInfo struct {
	// Name is the fully qualified name, pkgpath.Name.
	Name string
	// ShortName is the bare type name.
	ShortName string
	// Type is the non-pointer type.
	Type reflect.Type
}

func (ti TypeInfo) IsZero() bool { return ti.Type == nil }

// New returns a pointer to a fresh zero value of the type.
func (ti TypeInfo) New() any {
	return reflect.New(ti.Type).Interface()
}

func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeFor[T]())
}

func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}

	muCache.RLock()
	ti, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return ti
	}

	key := t
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	ti = TypeInfo{
		Name:      t.PkgPath() + "." + t.Name(),
		ShortName: t.Name(),
		Type:      t,
	}

	muCache.Lock()
	cache[key] = ti
	muCache.Unlock()
	return ti
}
