package xrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type Person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Age  int    `db:"age"`
}

var people = MustEntity[Person]("people")

var (
	personName = Singular[Person, string]("name")
	personAge  = Singular[Person, int]("age")
	personTags = Plural[Person, string]("tags", CollectionJoin{
		Table: "person_tags", ForeignKey: "person_id", Column: "tag",
	})
)

type PersonView struct {
	Name string
	Age  int
}

func newPersonView(name string, age int) PersonView { return PersonView{Name: name, Age: age} }

// viewRegistry registers the (name, age) constructor of PersonView.
func viewRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	_, err := reg.Register(newPersonView, Params("name", "age"))
	require.NoError(t, err)
	return reg
}

/* -------------------------------------------------------
   testify mocks of the engine boundary
--------------------------------------------------------*/

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Dialect() Dialect { return SQLite }

func (m *MockEngine) CreateQuery(q *CriteriaQuery, shape RowShape) (TypedQuery, error) {
	args := m.Called(q, shape)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(TypedQuery), args.Error(1)
}

func (m *MockEngine) CreateCountQuery(q *CriteriaQuery) (CountQuery, error) {
	args := m.Called(q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(CountQuery), args.Error(1)
}

type MockQuery struct {
	mock.Mock
}

func (m *MockQuery) SetHint(name string, value any) { m.Called(name, value) }
func (m *MockQuery) SetFirstResult(offset int)      { m.Called(offset) }
func (m *MockQuery) SetMaxResults(limit int)        { m.Called(limit) }

func (m *MockQuery) SingleResult(ctx context.Context) (any, error) {
	args := m.Called(ctx)
	return args.Get(0), args.Error(1)
}

func (m *MockQuery) ResultList(ctx context.Context) ([]any, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]any), args.Error(1)
}

func (m *MockQuery) ResultStream(ctx context.Context) (Cursor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Cursor), args.Error(1)
}

type MockCountQuery struct {
	mock.Mock
}

func (m *MockCountQuery) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// sliceCursor serves fixed values.
type sliceCursor struct {
	vals   []any
	i      int
	err    error
	closed int
}

func (c *sliceCursor) Next() bool {
	if c.i >= len(c.vals) {
		return false
	}
	c.i++
	return true
}

func (c *sliceCursor) Value() any   { return c.vals[c.i-1] }
func (c *sliceCursor) Err() error   { return c.err }
func (c *sliceCursor) Close() error { c.closed++; return nil }
