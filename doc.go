/*
Package xrepo runs specification queries over database/sql and maps their
results into entities, positional rows or arbitrary target types.

# Overview

A Repository[T] queries one entity type. Each call takes a Specification
(the restriction), optionally a Projection (what to select) and options
(sort, hints). Results come back as whole entities, as positional Rows, or as
any Go type the engine can scan. A ProjectionMapper turns each row into a
target value on top of that.

	type Person struct {
	    ID   int64  `db:"id"`
	    Name string `db:"name"`
	    Age  int    `db:"age"`
	}

	type PersonView struct{ Name string; Age int }

	func NewPersonView(name string, age int) PersonView { return PersonView{name, age} }

	xrepo.MustRegister(NewPersonView, xrepo.Params("name", "age"))

	people := xrepo.New(db, xrepo.MustEntity[Person]("people"))
	p, _ := xrepo.NewConstructorProjection[Person, PersonView](nil, "")
	views, err := xrepo.MapAll[PersonView, xrepo.Row](ctx, people,
	    xrepo.Equal[Person]("id", 42), p, p)

# Selection and mapping

Selection order is the contract between a projection and a mapper: column i
of every Row is selection i. The paired projections keep the two sides in
step by sharing state:

  - ConstructorProjection selects the parameter names of one constructor and
    invokes it positionally.
  - MetamodelProjection selects typed attributes and invokes the constructor
    whose parameter types equal the attribute types, found before any query
    runs.
  - FieldProjection selects the fields of a struct and assigns them back by
    name.

SignatureMapper picks its constructor from the element types of the first
row it sees and reuses it afterwards.

Constructors are ordinary functions registered with Register. Resolution
keeps only constructors with parameters, filters by qualifier, prefers
constructors marked Preferred (or qualified) and never guesses between ties.

# Scanning

SQLEngine builds statements with squirrel and executes them through sqlx.
Struct row shapes bind columns by `db:"name"` tags, falling back to
case-insensitive field names; `db:",inline"` flattens nested structs. Every
selected column must bind to a field unless WithLenientShapes is set. Scan
plans are cached per (type, column set) in a sync.Map.

# Paging and streaming

A paged request runs the content query with offset and limit, then a count
query with the same restriction and no ordering. Streams are single-pass and
must be drained or closed; StreamingHints gives the usual hint set for them.

# Errors

Configuration problems (ErrNoConstructor, ErrNoQualifiedConstructor,
ErrAmbiguousConstructor, ErrNoMatchingConstructor) surface while wiring.
At call time ErrTooManyResults reports cardinality and mapping failures
satisfy errors.Is(err, ErrMapping). Driver errors pass through unchanged.
*/
package xrepo
