package xrepo

import (
	"fmt"
	"reflect"
)

// Projection builds the select list of a query over entity T. It is called
// once per query construction, after the specification's predicate has been
// attached, and is skipped when the specification already set a selection.
// The order of the returned selections is the order of every Row the query
// produces.
type Projection[T any] interface {
	ToSelections(root *Root[T], query *CriteriaQuery) ([]Selection, error)
}

// ProjectionFunc adapts a function to Projection.
type ProjectionFunc[T any] func(root *Root[T], query *CriteriaQuery) ([]Selection, error)

func (f ProjectionFunc[T]) ToSelections(root *Root[T], query *CriteriaQuery) ([]Selection, error) {
	return f(root, query)
}

// AttributeNames selects attributes of T by name, in order. Names are not
// checked until a query is built; an unknown name then fails with
// ErrUnknownAttribute.
type AttributeNames[T any] struct {
	names []string
}

// ByAttributeNames selects the named attributes of T in the given order.
func ByAttributeNames[T any](names ...string) AttributeNames[T] {
	return AttributeNames[T]{names: append([]string(nil), names...)}
}

// ByFields selects one attribute per mapped field of struct R, in field
// declaration order. Field names follow the scanning rules (db tags, inline
// and embedded structs flattened, "-" skipped).
func ByFields[T, R any]() (AttributeNames[T], error) {
	rt := reflect.TypeFor[R]()
	if !isStruct(rt) {
		return AttributeNames[T]{}, fmt.Errorf("xrepo: ByFields: %s is not a struct", rt)
	}
	fi := getMapper().structIndex(derefPtr(rt))
	if len(fi.fields) == 0 {
		return AttributeNames[T]{}, fmt.Errorf("xrepo: ByFields: %s has no mappable fields", rt)
	}
	names := make([]string, len(fi.fields))
	for i, f := range fi.fields {
		names[i] = f.name
	}
	return AttributeNames[T]{names: names}, nil
}

// ByConstructor selects the parameters of c, in declaration order, so
// column i feeds parameter i.
func ByConstructor[T any](c *Constructor) (AttributeNames[T], error) {
	if c.Arity() == 0 {
		return AttributeNames[T]{}, fmt.Errorf("%w: %s", ErrNoConstructor, c.Target())
	}
	if len(c.names) != c.Arity() {
		return AttributeNames[T]{}, fmt.Errorf("%w: %s has no parameter names; register it with Params", ErrInvalidConstructor, c)
	}
	return AttributeNames[T]{names: c.ParamNames()}, nil
}

func (p AttributeNames[T]) Names() []string { return append([]string(nil), p.names...) }

func (p AttributeNames[T]) ToSelections(root *Root[T], _ *CriteriaQuery) ([]Selection, error) {
	out := make([]Selection, 0, len(p.names))
	for _, n := range p.names {
		path, err := root.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

// MetamodelAttributes selects typed attributes of T, in order. Each column is
// scanned as its attribute's static type; plural attributes are joined.
type MetamodelAttributes[T any] struct {
	attrs []Attribute[T]
}

// ByMetamodel selects attrs in the given order.
func ByMetamodel[T any](attrs ...Attribute[T]) MetamodelAttributes[T] {
	return MetamodelAttributes[T]{attrs: append([]Attribute[T](nil), attrs...)}
}

func (p MetamodelAttributes[T]) Attributes() []Attribute[T] {
	return append([]Attribute[T](nil), p.attrs...)
}

func (p MetamodelAttributes[T]) ToSelections(root *Root[T], _ *CriteriaQuery) ([]Selection, error) {
	out := make([]Selection, 0, len(p.attrs))
	for _, a := range p.attrs {
		s, err := a.selection(root)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
