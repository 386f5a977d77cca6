package xrepo

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Repository runs specification queries over entity T. It is safe for
// concurrent use; every call builds its own query.
//
// Entities are streamed with FindAllStream. Projected rows are read with the
// Row methods (FindOneRow, FindAllRows, StreamRows, FindRowPage) or, for any
// row shape, with FindOneAs, FindAllAs, StreamAs and FindPageAs. MapOne,
// MapAll, MapStream and MapPage additionally convert each row with a
// ProjectionMapper.
type Repository[T any] struct {
	engine Engine
	entity *Entity[T]
	logger *slog.Logger
}

// New returns a repository backed by an SQLEngine over db.
//
//	db := sqlx.MustOpen("sqlite", "file::memory:")
//	people := xrepo.New(db, xrepo.MustEntity[Person]("people"))
//	p, found, err := xrepo.FindOneAs[Person](ctx, people, xrepo.Equal[Person]("id", 42),
//	    xrepo.ByAttributeNames[Person]("id", "name", "age"))
func New[T any](db Querier, entity *Entity[T], opts ...Option) *Repository[T] {
	return NewRepository(NewSQLEngine(db, opts...), entity, opts...)
}

// NewRepository returns a repository backed by engine.
func NewRepository[T any](engine Engine, entity *Entity[T], opts ...Option) *Repository[T] {
	cfg := newConfig(opts)
	return &Repository[T]{engine: engine, entity: entity, logger: cfg.Logger}
}

func (r *Repository[T]) Entity() *Entity[T] { return r.entity }
func (r *Repository[T]) Engine() Engine     { return r.engine }

// QueryOption adjusts one repository call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	sort  Sort
	hints map[string]any
}

// WithSort orders the results. Without it results are unsorted.
func WithSort(s Sort) QueryOption {
	return func(o *queryOptions) { o.sort = s }
}

// OrderBy is WithSort(By(orders...)).
func OrderBy(orders ...Order) QueryOption {
	return WithSort(By(orders...))
}

// WithHints passes execution hints to the query. Repeated calls merge.
func WithHints(hints map[string]any) QueryOption {
	return func(o *queryOptions) {
		if o.hints == nil {
			o.hints = make(map[string]any, len(hints))
		}
		maps.Copy(o.hints, hints)
	}
}

func collectOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// build constructs the criteria query: restriction first, then the
// projection unless the specification selected already, then ordering.
func (r *Repository[T]) build(spec Specification[T], proj Projection[T], sort Sort) (*CriteriaQuery, error) {
	q := newCriteriaQuery(r.entity.t, r.engine.Dialect())
	root := newRoot(r.entity, q)
	if spec != nil {
		pred, err := spec.ToPredicate(root, q)
		if err != nil {
			return nil, err
		}
		q.Where(pred)
	}
	if !q.HasSelection() {
		if proj == nil {
			return nil, fmt.Errorf("xrepo: query on %s: nil projection", r.entity.t.name)
		}
		sels, err := proj.ToSelections(root, q)
		if err != nil {
			return nil, err
		}
		if len(sels) == 0 {
			return nil, fmt.Errorf("%w: projection on %s selects nothing", ErrShapeMismatch, r.entity.t.name)
		}
		q.Multiselect(sels...)
	}
	if err := applySort(root, sort); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *Repository[T]) createQuery(spec Specification[T], proj Projection[T], shape RowShape, o queryOptions) (TypedQuery, error) {
	q, err := r.build(spec, proj, o.sort)
	if err != nil {
		return nil, err
	}
	tq, err := r.engine.CreateQuery(q, shape)
	if err != nil {
		return nil, err
	}
	for _, k := range slices.Sorted(maps.Keys(o.hints)) {
		tq.SetHint(k, o.hints[k])
	}
	return tq, nil
}

// createCountQuery mirrors the restriction of spec. Selection and ordering
// are left to the engine's count expression.
func (r *Repository[T]) createCountQuery(spec Specification[T]) (CountQuery, error) {
	q := newCriteriaQuery(r.entity.t, r.engine.Dialect())
	root := newRoot(r.entity, q)
	if spec != nil {
		pred, err := spec.ToPredicate(root, q)
		if err != nil {
			return nil, err
		}
		q.Where(pred)
	}
	q.clearOrders()
	return r.engine.CreateCountQuery(q)
}

// entityProjection selects every attribute of T.
func entityProjection[T any]() Projection[T] {
	return ProjectionFunc[T](func(root *Root[T], _ *CriteriaQuery) ([]Selection, error) {
		return root.Attributes(), nil
	})
}
