package es

import (
	"errors"
	"fmt"
	"slices"

	"github.com/codewandler/esrepo-go/internal/reflector"
)

var (
	ErrAggregateTypeMismatch = errors.New("aggregate type mismatch")
	ErrInvalidAggregateType  = errors.New("invalid aggregate type")
)

// AggregateTypeProvider lets an aggregate declare its own type instead of
// having it derived from its Go type.
type AggregateTypeProvider interface {
	AggregateType() AggregateType
}

// TypeMapping binds a logical aggregate type name to the Go type of
// Prototype.
type TypeMapping struct {
	Name      string
	Prototype Aggregate
}

// AggregateType identifies a kind of aggregate. It either is the Go type
// itself (the type string is pkgpath.Name) or a table of logical names to
// Go types. In the latter case String returns the first logical name and
// MappedClass the Go type bound to it.
type AggregateType struct {
	name    string
	direct  reflector.TypeInfo
	mapping map[string]reflector.TypeInfo
	names   []string // mapping names in declaration order
}

// AggregateTypeOf derives the type of a, honouring AggregateTypeProvider.
func AggregateTypeOf(a Aggregate) AggregateType {
	if p, ok := a.(AggregateTypeProvider); ok {
		return p.AggregateType()
	}
	ti := reflector.TypeInfoOf(a)
	return AggregateType{name: ti.Name, direct: ti}
}

// AggregateTypeFor is the type of aggregate T, e.g. AggregateTypeFor[*User]().
func AggregateTypeFor[T Aggregate]() AggregateType {
	ti := reflector.TypeInfoFor[T]()
	return AggregateType{name: ti.Name, direct: ti}
}

// AggregateTypeFromString is a type known only by name. It can be compared
// and used for stream naming but cannot instantiate aggregates on its own.
func AggregateTypeFromString(name string) (AggregateType, error) {
	if name == "" {
		return AggregateType{}, fmt.Errorf("%w: aggregate type must be a non empty string", ErrInvalidAggregateType)
	}
	return AggregateType{name: name}, nil
}

// AggregateTypeFromMapping builds a mapping mode type. The first mapping
// is the primary one.
func AggregateTypeFromMapping(mappings ...TypeMapping) (AggregateType, error) {
	if len(mappings) == 0 {
		return AggregateType{}, fmt.Errorf("%w: empty mapping", ErrInvalidAggregateType)
	}
	t := AggregateType{
		name:    mappings[0].Name,
		mapping: make(map[string]reflector.TypeInfo, len(mappings)),
	}
	for _, m := range mappings {
		if m.Name == "" || m.Prototype == nil {
			return AggregateType{}, fmt.Errorf("%w: mapping needs a name and a prototype", ErrInvalidAggregateType)
		}
		if _, dup := t.mapping[m.Name]; dup {
			return AggregateType{}, fmt.Errorf("%w: duplicate mapping %q", ErrInvalidAggregateType, m.Name)
		}
		t.mapping[m.Name] = reflector.TypeInfoOf(m.Prototype)
		t.names = append(t.names, m.Name)
	}
	return t, nil
}

// NamedAggregateType maps name to T. It panics on an empty name and is
// meant for AggregateTypeProvider implementations.
func NamedAggregateType[T Aggregate](name string) AggregateType {
	if name == "" {
		panic("es: empty aggregate type name")
	}
	return AggregateType{
		name:    name,
		mapping: map[string]reflector.TypeInfo{name: reflector.TypeInfoFor[T]()},
		names:   []string{name},
	}
}

func (t AggregateType) String() string { return t.name }
func (t AggregateType) IsZero() bool   { return t.name == "" }

// MappedClass returns the Go type name bound to the primary logical name,
// or "" when t is not in mapping mode.
func (t AggregateType) MappedClass() string {
	if t.mapping == nil {
		return ""
	}
	return t.mapping[t.name].Name
}

// Names returns the logical names of t, the primary one first.
func (t AggregateType) Names() []string {
	if t.mapping == nil {
		return []string{t.name}
	}
	return slices.Clone(t.names)
}

// HasName reports whether name is the type string or a mapped name of t.
func (t AggregateType) HasName(name string) bool {
	if t.mapping == nil {
		return name == t.name
	}
	_, ok := t.mapping[name]
	return ok
}

// NameOf returns the logical name of a's concrete type: the first mapping
// bound to it, or the type string.
func (t AggregateType) NameOf(a Aggregate) string {
	class := reflector.TypeInfoOf(a).Name
	for _, name := range t.names {
		if t.mapping[name].Name == class {
			return name
		}
	}
	return t.name
}

// classNames are the concrete identities used for equality.
func (t AggregateType) classNames() []string {
	if t.mapping == nil {
		return []string{t.name}
	}
	out := make([]string, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, t.mapping[name].Name)
	}
	return out
}

// Equals holds when one type string is a name of the other type or when
// both resolve to a common concrete class.
func (t AggregateType) Equals(other AggregateType) bool {
	if t.IsZero() || other.IsZero() {
		return false
	}
	if t.HasName(other.name) || other.HasName(t.name) {
		return true
	}
	theirs := other.classNames()
	for _, class := range t.classNames() {
		if slices.Contains(theirs, class) {
			return true
		}
	}
	return false
}

// Assert fails with ErrAggregateTypeMismatch unless a is of type t.
func (t AggregateType) Assert(a Aggregate) error {
	other := AggregateTypeOf(a)
	if !t.Equals(other) {
		return fmt.Errorf("%w: aggregate types must be equal. %s != %s", ErrAggregateTypeMismatch, t, other)
	}
	return nil
}

// newInstance creates a zero aggregate. typeName is the aggregate_type
// recorded on an event and selects the mapping entry, it may be empty.
func (t AggregateType) newInstance(typeName string) (Aggregate, error) {
	var ti reflector.TypeInfo
	switch {
	case t.mapping != nil:
		if typeName == "" {
			typeName = t.name
		}
		var ok bool
		if ti, ok = t.mapping[typeName]; !ok {
			return nil, fmt.Errorf("%w: %q is not mapped by %s", ErrInvalidAggregateType, typeName, t)
		}
	case !t.direct.IsZero():
		ti = t.direct
	default:
		return nil, fmt.Errorf("%w: %s has no concrete type to instantiate", ErrInvalidAggregateType, t)
	}

	a, ok := ti.New().(Aggregate)
	if !ok {
		return nil, fmt.Errorf("%w: *%s does not implement Aggregate", ErrInvalidAggregateType, ti.Name)
	}
	return a, nil
}
