package xrepo

import (
	"fmt"
	"iter"
	"reflect"
)

// Stream is a lazily consumed, single-pass sequence of query results. Values
// are converted as they are drawn. A Stream must be drained or closed before
// the database handle it reads from is released.
//
//	s, err := repo.FindAllStream(ctx, spec, xrepo.WithHints(xrepo.StreamingHints(500)))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for s.Next() {
//	    process(s.Value())
//	}
//	return s.Err()
type Stream[T any] struct {
	cur    Cursor
	conv   func(any) (T, error)
	val    T
	err    error
	done   bool
	closed bool
}

func newStream[T any](cur Cursor, conv func(any) (T, error)) *Stream[T] {
	return &Stream[T]{cur: cur, conv: conv}
}

// Next advances to the next value. It returns false at the end of the
// sequence or on the first error; the cursor is closed in both cases.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	if !s.cur.Next() {
		s.finish(s.cur.Err())
		return false
	}
	v, err := s.conv(s.cur.Value())
	if err != nil {
		s.finish(err)
		return false
	}
	s.val = v
	return true
}

// Value returns the value read by the last successful Next.
func (s *Stream[T]) Value() T { return s.val }

// Err returns the error that ended the stream, if any.
func (s *Stream[T]) Err() error { return s.err }

// Close releases the cursor. It is safe to call more than once.
func (s *Stream[T]) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cur.Close()
}

func (s *Stream[T]) finish(err error) {
	s.done = true
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	s.err = err
	var zero T
	s.val = zero
}

// All yields the remaining values. A failure is yielded once, with a zero
// value, as the last pair. Breaking out of the loop closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.val, nil) {
				return
			}
		}
		if s.err != nil {
			var zero T
			yield(zero, s.err)
		}
	}
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect() ([]T, error) {
	var out []T
	for v, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// mapStream converts the values of s lazily with f.
func mapStream[A, B any](s *Stream[A], f func(A) (B, error)) *Stream[B] {
	return newStream(&streamCursor[A]{s: s}, func(v any) (B, error) { return f(v.(A)) })
}

// streamCursor exposes a Stream as a Cursor.
type streamCursor[A any] struct{ s *Stream[A] }

func (c *streamCursor[A]) Next() bool   { return c.s.Next() }
func (c *streamCursor[A]) Value() any   { return c.s.Value() }
func (c *streamCursor[A]) Err() error   { return c.s.Err() }
func (c *streamCursor[A]) Close() error { return c.s.Close() }

// assertShape converts an engine result into P, failing with
// ErrShapeMismatch when the engine produced something else.
func assertShape[P any](v any) (P, error) {
	p, ok := v.(P)
	if !ok && v != nil {
		var zero P
		return zero, shapeError(reflect.TypeFor[P](), v)
	}
	return p, nil
}

func shapeError(want reflect.Type, got any) error {
	return fmt.Errorf("%w: engine produced %T, want %s", ErrShapeMismatch, got, want)
}
