package xrepo

import "context"

// FindAllStream streams the entities matching spec. A nil spec matches every
// entity. Pass StreamingHints through WithHints for large reads.
func (r *Repository[T]) FindAllStream(ctx context.Context, spec Specification[T], opts ...QueryOption) (*Stream[T], error) {
	return StreamAs[T](ctx, r, spec, entityProjection[T](), opts...)
}

// FindAll returns the entities matching spec.
func (r *Repository[T]) FindAll(ctx context.Context, spec Specification[T], opts ...QueryOption) ([]T, error) {
	return FindAllAs[T](ctx, r, spec, entityProjection[T](), opts...)
}
