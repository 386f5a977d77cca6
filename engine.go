package xrepo

import (
	"context"
	"reflect"
)

// Engine turns criteria queries into executable queries. SQLEngine is the
// database/sql implementation; tests and other stores provide their own.
type Engine interface {
	// Dialect is used to quote the paths built while a query is constructed.
	Dialect() Dialect

	// CreateQuery prepares q for execution. Results are values of shape:
	// Row for TupleShape, otherwise values of the shape's type.
	CreateQuery(q *CriteriaQuery, shape RowShape) (TypedQuery, error)

	// CreateCountQuery prepares the row count of q: same restriction and
	// joins, no ordering, COUNT DISTINCT when q is distinct.
	CreateCountQuery(q *CriteriaQuery) (CountQuery, error)
}

// TypedQuery is a prepared query. Setters must be called before the first
// result method.
type TypedQuery interface {
	SetHint(name string, value any)
	SetFirstResult(offset int)
	SetMaxResults(limit int)

	// SingleResult returns the only result, ErrNoResult when there is none
	// and ErrTooManyResults when there are several.
	SingleResult(ctx context.Context) (any, error)
	ResultList(ctx context.Context) ([]any, error)
	ResultStream(ctx context.Context) (Cursor, error)
}

// CountQuery is a prepared row count.
type CountQuery interface {
	Count(ctx context.Context) (int64, error)
}

// Cursor is a single-pass iterator over query results. Close must be called
// unless Next returned false.
type Cursor interface {
	Next() bool
	Value() any
	Err() error
	Close() error
}

// RowShape identifies what a query produces per row.
type RowShape struct {
	t reflect.Type
}

// ShapeOf is the shape producing values of P. ShapeOf[Row]() is TupleShape.
func ShapeOf[P any]() RowShape { return RowShape{t: reflect.TypeFor[P]()} }

// TupleShape produces positional Rows.
var TupleShape = RowShape{t: rowType}

func (s RowShape) Type() reflect.Type { return s.t }

// IsTuple reports whether s produces Rows.
func (s RowShape) IsTuple() bool { return s.t == rowType }

func (s RowShape) String() string {
	if s.t == nil {
		return "<nil>"
	}
	return s.t.String()
}
