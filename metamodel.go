package xrepo

import "reflect"

// Attribute is a typed, statically known attribute of entity T. The static
// type drives both the scan of the selected column and the constructor
// lookup of metamodel mappers.
type Attribute[T any] interface {
	Name() string
	Type() reflect.Type
	selection(root *Root[T]) (Selection, error)
}

// SingularAttribute is a single-valued attribute of T with value type V.
type SingularAttribute[T, V any] struct {
	name string
}

// Singular declares a single-valued attribute of T.
//
//	var (
//	    PersonName = xrepo.Singular[Person, string]("name")
//	    PersonAge  = xrepo.Singular[Person, int]("age")
//	)
func Singular[T, V any](name string) SingularAttribute[T, V] {
	return SingularAttribute[T, V]{name: name}
}

func (a SingularAttribute[T, V]) Name() string       { return a.name }
func (a SingularAttribute[T, V]) Type() reflect.Type { return reflect.TypeFor[V]() }

func (a SingularAttribute[T, V]) selection(root *Root[T]) (Selection, error) {
	p, err := root.Get(a.name)
	if err != nil {
		return nil, err
	}
	return p.withType(a.Type()), nil
}

// CollectionJoin describes where the elements of a collection-valued
// attribute live: a table whose ForeignKey column references the root's id
// column and whose Column holds the element value.
type CollectionJoin struct {
	Table      string
	ForeignKey string
	Column     string
}

// PluralAttribute is a collection-valued attribute of T with element type V.
// Selecting it joins the collection table, so one root produces one row per
// element (and one row with a NULL element when the collection is empty).
type PluralAttribute[T, V any] struct {
	name string
	join CollectionJoin
}

// Plural declares a collection-valued attribute of T.
//
//	var PostTags = xrepo.Plural[Post, string]("tags", xrepo.CollectionJoin{
//	    Table: "post_tags", ForeignKey: "post_id", Column: "tag",
//	})
func Plural[T, V any](name string, join CollectionJoin) PluralAttribute[T, V] {
	return PluralAttribute[T, V]{name: name, join: join}
}

func (a PluralAttribute[T, V]) Name() string       { return a.name }
func (a PluralAttribute[T, V]) Type() reflect.Type { return reflect.TypeFor[V]() }

func (a PluralAttribute[T, V]) selection(root *Root[T]) (Selection, error) {
	return root.JoinCollection(a.name, a.join, a.Type())
}

func attributeTypes[T any](attrs []Attribute[T]) []reflect.Type {
	out := make([]reflect.Type, len(attrs))
	for i, a := range attrs {
		out[i] = a.Type()
	}
	return out
}
