package xrepo

import (
	"context"
	"reflect"
)

// MapOne is FindOneAs followed by m. Mapping failures satisfy
// errors.Is(err, ErrMapping).
//
//	view, found, err := xrepo.MapOne[PersonView, xrepo.Row](ctx, repo, spec, p, p)
func MapOne[R, P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], m ProjectionMapper[P, R], opts ...QueryOption) (R, bool, error) {
	var zero R
	v, found, err := FindOneAs[P](ctx, r, spec, proj, opts...)
	if err != nil || !found {
		return zero, false, err
	}
	out, err := m.ToModel(v)
	if err != nil {
		return zero, false, asMappingError(reflect.TypeFor[R](), err)
	}
	return out, true, nil
}

// MapAll is FindAllAs followed by m on every row. The first mapping failure
// aborts the call.
func MapAll[R, P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], m ProjectionMapper[P, R], opts ...QueryOption) ([]R, error) {
	rows, err := FindAllAs[P](ctx, r, spec, proj, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(rows))
	for _, v := range rows {
		mv, err := m.ToModel(v)
		if err != nil {
			return nil, asMappingError(reflect.TypeFor[R](), err)
		}
		out = append(out, mv)
	}
	return out, nil
}

// MapStream is StreamAs with m applied lazily as values are drawn. A mapping
// failure ends the stream; it is reported by Err.
func MapStream[R, P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], m ProjectionMapper[P, R], opts ...QueryOption) (*Stream[R], error) {
	s, err := StreamAs[P](ctx, r, spec, proj, opts...)
	if err != nil {
		return nil, err
	}
	return mapStream(s, mapWith(m)), nil
}

// MapPage is FindPageAs with m applied to the content. Pageable and total are
// kept.
func MapPage[R, P, T any](ctx context.Context, r *Repository[T], spec Specification[T], proj Projection[T], m ProjectionMapper[P, R], page Pageable, opts ...QueryOption) (*Page[R], error) {
	p, err := FindPageAs[P](ctx, r, spec, proj, page, opts...)
	if err != nil {
		return nil, err
	}
	return mapPage(p, mapWith(m))
}

func mapWith[P, R any](m ProjectionMapper[P, R]) func(P) (R, error) {
	rt := reflect.TypeFor[R]()
	return func(v P) (R, error) {
		out, err := m.ToModel(v)
		if err != nil {
			return out, asMappingError(rt, err)
		}
		return out, nil
	}
}
