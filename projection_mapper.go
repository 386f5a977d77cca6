package xrepo

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// ProjectionMapper converts one projected value P (usually a Row) into R.
// ToModel may be called concurrently.
type ProjectionMapper[P, R any] interface {
	ToModel(p P) (R, error)
}

// MapperFunc adapts a function to ProjectionMapper.
type MapperFunc[P, R any] func(p P) (R, error)

func (f MapperFunc[P, R]) ToModel(p P) (R, error) { return f(p) }

// ConstructorMapper unpacks every row positionally into the arguments of one
// constructor chosen up front.
type ConstructorMapper[R any] struct {
	ctor *Constructor
}

// NewConstructorMapper maps rows through c, which must build R.
func NewConstructorMapper[R any](c *Constructor) (*ConstructorMapper[R], error) {
	if rt := reflect.TypeFor[R](); c.Target() != rt {
		return nil, fmt.Errorf("%w: constructor builds %s, mapper wants %s", ErrInvalidConstructor, c.Target(), rt)
	}
	return &ConstructorMapper[R]{ctor: c}, nil
}

// ResolveConstructorMapper resolves the constructor of R registered in reg
// (DefaultRegistry when nil) with the given qualifier.
func ResolveConstructorMapper[R any](reg *Registry, qualifier string) (*ConstructorMapper[R], error) {
	c, err := registryOrDefault(reg).Resolve(reflect.TypeFor[R](), qualifier)
	if err != nil {
		return nil, err
	}
	return NewConstructorMapper[R](c)
}

// NewMetamodelMapper picks the constructor of R whose parameter types are
// exactly the attribute types, in order. It fails with
// ErrNoMatchingConstructor before any query runs when there is none.
func NewMetamodelMapper[R, T any](reg *Registry, attrs ...Attribute[T]) (*ConstructorMapper[R], error) {
	c, err := registryOrDefault(reg).MatchExact(reflect.TypeFor[R](), attributeTypes(attrs))
	if err != nil {
		return nil, err
	}
	return &ConstructorMapper[R]{ctor: c}, nil
}

func (m *ConstructorMapper[R]) Constructor() *Constructor { return m.ctor }

func (m *ConstructorMapper[R]) ToModel(row Row) (R, error) {
	v, err := m.ctor.Invoke(Values(row))
	if err != nil {
		var zero R
		return zero, err
	}
	r, _ := v.(R)
	return r, nil
}

// SignatureMapper finds its constructor from the element types of the first
// row it sees and reuses it for every later row. All rows passed to one
// mapper must have the same element types.
type SignatureMapper[R any] struct {
	ctor atomic.Pointer[Constructor]
	find func(types []reflect.Type) (*Constructor, error)
}

// NewSignatureMapper searches reg (DefaultRegistry when nil) lazily.
func NewSignatureMapper[R any](reg *Registry) *SignatureMapper[R] {
	reg = registryOrDefault(reg)
	rt := reflect.TypeFor[R]()
	return &SignatureMapper[R]{
		find: func(types []reflect.Type) (*Constructor, error) { return reg.Match(rt, types) },
	}
}

// Constructor returns the memoized constructor, or nil before the first row.
func (m *SignatureMapper[R]) Constructor() *Constructor { return m.ctor.Load() }

func (m *SignatureMapper[R]) ToModel(row Row) (R, error) {
	var zero R
	c := m.ctor.Load()
	if c == nil {
		found, err := m.find(rowTypes(row))
		if err != nil {
			return zero, asMappingError(reflect.TypeFor[R](), err)
		}
		// Concurrent first rows find the same constructor; keep the first.
		if !m.ctor.CompareAndSwap(nil, found) {
			found = m.ctor.Load()
		}
		c = found
	}
	v, err := c.Invoke(Values(row))
	if err != nil {
		return zero, err
	}
	r, _ := v.(R)
	return r, nil
}

// FieldMapper assigns each row element to the field of struct R named by the
// element's alias, ignoring ASCII case. Elements without a field are ignored.
type FieldMapper[R any] struct {
	rt  reflect.Type
	idx *fieldIndex
}

func NewFieldMapper[R any]() (*FieldMapper[R], error) {
	rt := reflect.TypeFor[R]()
	if !isStruct(rt) {
		return nil, fmt.Errorf("xrepo: field mapper: %s is not a struct", rt)
	}
	return &FieldMapper[R]{rt: rt, idx: getMapper().structIndex(derefPtr(rt))}, nil
}

func (m *FieldMapper[R]) ToModel(row Row) (R, error) {
	var out R
	rv := reflect.ValueOf(&out).Elem()
	for rv.Kind() == reflect.Pointer {
		rv.Set(reflect.New(rv.Type().Elem()))
		rv = rv.Elem()
	}
	for i := 0; i < row.Len(); i++ {
		f, ok := m.idx.byName[toLowerAscii(row.Alias(i))]
		if !ok {
			continue
		}
		v, err := convertArg(row.Get(i), f.typ)
		if err != nil {
			var zero R
			return zero, mappingErrorf(m.rt, "field %s: %w", f.name, err)
		}
		parent := fieldByPathAlloc(rv, f.path[:len(f.path)-1])
		if parent.Kind() == reflect.Pointer {
			parent = parent.Elem()
		}
		parent.Field(f.path[len(f.path)-1]).Set(v)
	}
	return out, nil
}

// ScalarMapper returns the single element of each row as R.
type ScalarMapper[R any] struct{}

func (ScalarMapper[R]) ToModel(row Row) (R, error) {
	var zero R
	rt := reflect.TypeFor[R]()
	if row.Len() != 1 {
		return zero, mappingErrorf(rt, "scalar mapping needs 1 element, row has %d", row.Len())
	}
	v, err := convertArg(row.Get(0), rt)
	if err != nil {
		return zero, mappingErrorf(rt, "%w", err)
	}
	r, _ := v.Interface().(R)
	return r, nil
}

func registryOrDefault(reg *Registry) *Registry {
	if reg == nil {
		return DefaultRegistry
	}
	return reg
}
