package xrepo

import (
	"fmt"
	"reflect"
)

// Entity describes how a struct type T is stored: its table, its id column and
// the attribute → column mapping derived from T's fields.
//
// Attributes follow the scanning rules: `db:"name"` names an attribute,
// otherwise the field name is used; `db:",inline"` and embedded structs are
// flattened; `db:"-"` and unexported fields are skipped. Attribute lookups are
// ASCII case-insensitive and the column of an attribute is its lower-cased
// name.
//
// Example:
//
//	type Person struct {
//	    ID   int64  `db:"id"`
//	    Name string `db:"name"`
//	    Age  int    `db:"age"`
//	}
//
//	people := xrepo.MustEntity[Person]("people")
type Entity[T any] struct {
	t *table
}

type table struct {
	name   string
	id     string
	attrs  []*attribute
	byName map[string]*attribute
}

type attribute struct {
	name   string
	column string
	typ    reflect.Type
}

// EntityOption configures NewEntity.
type EntityOption func(*table)

// WithIDColumn sets the column counted by page count queries. It defaults to
// the "id" attribute when T has one, otherwise to the first attribute.
func WithIDColumn(column string) EntityOption {
	return func(t *table) { t.id = column }
}

// NewEntity derives the metamodel of struct type T stored in tableName.
func NewEntity[T any](tableName string, opts ...EntityOption) (*Entity[T], error) {
	rt := reflect.TypeFor[T]()
	if derefPtr(rt).Kind() != reflect.Struct {
		return nil, fmt.Errorf("xrepo: entity type %s is not a struct", rt)
	}
	if tableName == "" {
		return nil, fmt.Errorf("xrepo: entity %s: empty table name", rt)
	}

	fi := getMapper().structIndex(derefPtr(rt))
	if len(fi.fields) == 0 {
		return nil, fmt.Errorf("xrepo: entity %s has no mappable fields", rt)
	}

	t := &table{name: tableName, byName: make(map[string]*attribute, len(fi.fields))}
	for _, f := range fi.fields {
		a := &attribute{name: f.name, column: toLowerAscii(f.name), typ: f.typ}
		t.attrs = append(t.attrs, a)
		t.byName[a.column] = a
	}
	for _, o := range opts {
		o(t)
	}
	if t.id == "" {
		if _, ok := t.byName["id"]; ok {
			t.id = "id"
		} else {
			t.id = t.attrs[0].column
		}
	}
	return &Entity[T]{t: t}, nil
}

// MustEntity is like NewEntity but panics on error. Intended for package-level
// metamodel variables.
func MustEntity[T any](tableName string, opts ...EntityOption) *Entity[T] {
	e, err := NewEntity[T](tableName, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Table returns the table name.
func (e *Entity[T]) Table() string { return e.t.name }

// IDColumn returns the column used by count queries.
func (e *Entity[T]) IDColumn() string { return e.t.id }

// Attributes returns the attribute names in declaration order.
func (e *Entity[T]) Attributes() []string {
	out := make([]string, len(e.t.attrs))
	for i, a := range e.t.attrs {
		out[i] = a.name
	}
	return out
}

func (t *table) attribute(name string) (*attribute, bool) {
	a, ok := t.byName[toLowerAscii(name)]
	return a, ok
}
