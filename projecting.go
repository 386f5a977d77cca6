package xrepo

import (
	"context"
	"errors"
)

// FindOneAs returns the only result of spec projected by proj, as P. P is
// Row for positional rows, or a type the engine scans columns into by name.
// No result gives found == false; more than one gives ErrTooManyResults.
func FindOneAs[P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], opts ...QueryOption) (v P, found bool, err error) {
	ctx = ensureQueryID(ctx)
	q, err := r.createQuery(spec, proj, ShapeOf[P](), collectOptions(opts))
	if err != nil {
		return v, false, err
	}
	res, err := q.SingleResult(ctx)
	if errors.Is(err, ErrNoResult) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v, err = assertShape[P](res)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// FindAllAs returns every result of spec projected by proj, as P.
func FindAllAs[P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], opts ...QueryOption) ([]P, error) {
	ctx = ensureQueryID(ctx)
	q, err := r.createQuery(spec, proj, ShapeOf[P](), collectOptions(opts))
	if err != nil {
		return nil, err
	}
	return resultList[P](ctx, q)
}

// StreamAs streams the results of spec projected by proj, as P.
func StreamAs[P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], opts ...QueryOption) (*Stream[P], error) {
	ctx = ensureQueryID(ctx)
	q, err := r.createQuery(spec, proj, ShapeOf[P](), collectOptions(opts))
	if err != nil {
		return nil, err
	}
	cur, err := q.ResultStream(ctx)
	if err != nil {
		return nil, err
	}
	return newStream(cur, assertShape[P]), nil
}

// FindPageAs returns one page of the results of spec projected by proj. The
// pageable's sort, when set, replaces any WithSort option.
//
// An unpaged request runs one query and reports its length as the total.
// A paged request runs the content query with offset and limit, then a
// separate count query with the same restriction.
func FindPageAs[P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], page Pageable, opts ...QueryOption) (*Page[P], error) {
	ctx = ensureQueryID(ctx)
	o := collectOptions(opts)
	if page.Sort().IsSorted() {
		o.sort = page.Sort()
	}
	q, err := r.createQuery(spec, proj, ShapeOf[P](), o)
	if err != nil {
		return nil, err
	}
	if !page.IsPaged() {
		content, err := resultList[P](ctx, q)
		if err != nil {
			return nil, err
		}
		return &Page[P]{Content: content, Pageable: page, Total: int64(len(content))}, nil
	}

	q.SetFirstResult(page.Offset())
	q.SetMaxResults(page.PageSize())
	content, err := resultList[P](ctx, q)
	if err != nil {
		return nil, err
	}
	cq, err := r.createCountQuery(spec)
	if err != nil {
		return nil, err
	}
	total, err := cq.Count(ctx)
	if err != nil {
		return nil, err
	}
	loggerFor(ctx, r.logger).DebugContext(ctx, "xrepo: page",
		"table", r.entity.t.name, "offset", page.Offset(), "limit", page.PageSize(),
		"elements", len(content), "total", total)
	return &Page[P]{Content: content, Pageable: page, Total: total}, nil
}

func resultList[P any](ctx context.Context, q TypedQuery) ([]P, error) {
	res, err := q.ResultList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]P, 0, len(res))
	for _, v := range res {
		p, err := assertShape[P](v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindOneRow is FindOneAs[Row].
func (r *Repository[T]) FindOneRow(ctx context.Context, spec Specification[T], proj Projection[T], opts ...QueryOption) (Row, bool, error) {
	return FindOneAs[Row](ctx, r, spec, proj, opts...)
}

// FindAllRows is FindAllAs[Row].
func (r *Repository[T]) FindAllRows(ctx context.Context, spec Specification[T], proj Projection[T], opts ...QueryOption) ([]Row, error) {
	return FindAllAs[Row](ctx, r, spec, proj, opts...)
}

// StreamRows is StreamAs[Row].
func (r *Repository[T]) StreamRows(ctx context.Context, spec Specification[T], proj Projection[T], opts ...QueryOption) (*Stream[Row], error) {
	return StreamAs[Row](ctx, r, spec, proj, opts...)
}

// FindRowPage is FindPageAs[Row].
func (r *Repository[T]) FindRowPage(ctx context.Context, spec Specification[T], proj Projection[T], page Pageable, opts ...QueryOption) (*Page[Row], error) {
	return FindPageAs[Row](ctx, r, spec, proj, page, opts...)
}
