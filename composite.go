package xrepo

import "reflect"

// ConstructorProjection pairs a constructor-parameter projection with a
// mapper over the same constructor, so column i always feeds parameter i.
//
//	people := xrepo.MustRegister(NewPersonView, xrepo.Params("name", "age"))
//	p, err := xrepo.NewConstructorProjection[Person, PersonView](nil, "")
//	views, err := xrepo.MapAll[PersonView, xrepo.Row](ctx, repo, spec, p, p)
type ConstructorProjection[T, R any] struct {
	AttributeNames[T]
	*ConstructorMapper[R]
}

// NewConstructorProjection resolves the constructor of R in reg
// (DefaultRegistry when nil). An empty qualifier selects the preferred or
// only constructor.
func NewConstructorProjection[T, R any](reg *Registry, qualifier string) (*ConstructorProjection[T, R], error) {
	c, err := registryOrDefault(reg).Resolve(reflect.TypeFor[R](), qualifier)
	if err != nil {
		return nil, err
	}
	names, err := ByConstructor[T](c)
	if err != nil {
		return nil, err
	}
	m, err := NewConstructorMapper[R](c)
	if err != nil {
		return nil, err
	}
	return &ConstructorProjection[T, R]{AttributeNames: names, ConstructorMapper: m}, nil
}

// MetamodelProjection selects typed attributes and maps them through the
// constructor whose parameter types equal the attribute types.
type MetamodelProjection[T, R any] struct {
	MetamodelAttributes[T]
	*ConstructorMapper[R]
}

func NewMetamodelProjection[T, R any](reg *Registry, attrs ...Attribute[T]) (*MetamodelProjection[T, R], error) {
	m, err := NewMetamodelMapper[R](reg, attrs...)
	if err != nil {
		return nil, err
	}
	return &MetamodelProjection[T, R]{MetamodelAttributes: ByMetamodel(attrs...), ConstructorMapper: m}, nil
}

// FieldProjection selects the fields of struct R and assigns them back by
// name.
type FieldProjection[T, R any] struct {
	AttributeNames[T]
	*FieldMapper[R]
}

func NewFieldProjection[T, R any]() (*FieldProjection[T, R], error) {
	names, err := ByFields[T, R]()
	if err != nil {
		return nil, err
	}
	m, err := NewFieldMapper[R]()
	if err != nil {
		return nil, err
	}
	return &FieldProjection[T, R]{AttributeNames: names, FieldMapper: m}, nil
}
