package xrepo

import (
	sq "github.com/Masterminds/squirrel"
)

// Specification produces the restriction of a query over entity T. It is
// called once per query construction (content and count queries each call
// it), so it must be pure. Returning a nil Predicate means "no restriction".
//
// A specification may also set a selection on the query; projections are
// skipped when one is present.
type Specification[T any] interface {
	ToPredicate(root *Root[T], query *CriteriaQuery) (Predicate, error)
}

// SpecificationFunc adapts a function to Specification.
type SpecificationFunc[T any] func(root *Root[T], query *CriteriaQuery) (Predicate, error)

func (f SpecificationFunc[T]) ToPredicate(root *Root[T], query *CriteriaQuery) (Predicate, error) {
	return f(root, query)
}

// Equal matches entities whose attribute equals value.
//
//	spec := xrepo.Equal[Person]("id", 42)
func Equal[T any](attribute string, value any) Specification[T] {
	return SpecificationFunc[T](func(root *Root[T], _ *CriteriaQuery) (Predicate, error) {
		p, err := root.Get(attribute)
		if err != nil {
			return nil, err
		}
		return p.Eq(value), nil
	})
}

// Where matches entities with a hand-written SQL condition. Bare identifiers
// naming an attribute of T, or a collection joined earlier in the same query,
// are replaced by the qualified column quoted for the dialect. Params follow
// the binding rules of named parameters:
//
//   - exactly one struct or map[string]any binds :name tokens (slices expand to
//     lists, an empty slice becomes NULL);
//   - anything else is used as positional "?" arguments, one per placeholder.
//
// Example:
//
//	spec := xrepo.Where[Person](`age >= :min AND name LIKE :pat`,
//	    map[string]any{"min": 30, "pat": "A%"})
//	// "people"."age" >= ? AND "people"."name" LIKE ?
func Where[T any](clause string, params ...any) Specification[T] {
	return SpecificationFunc[T](func(root *Root[T], _ *CriteriaQuery) (Predicate, error) {
		bound, args, err := bindClause(clause, root.columnOf, params...)
		if err != nil {
			return nil, err
		}
		return sq.Expr(bound, args...), nil
	})
}

// AllOf combines specifications with AND. Nil specifications and nil
// predicates are skipped.
func AllOf[T any](specs ...Specification[T]) Specification[T] {
	return SpecificationFunc[T](func(root *Root[T], query *CriteriaQuery) (Predicate, error) {
		preds, err := collectPredicates(root, query, specs)
		if err != nil || len(preds) == 0 {
			return nil, err
		}
		if len(preds) == 1 {
			return preds[0], nil
		}
		return sq.And(preds), nil
	})
}

// AnyOf combines specifications with OR. Nil specifications and nil
// predicates are skipped.
func AnyOf[T any](specs ...Specification[T]) Specification[T] {
	return SpecificationFunc[T](func(root *Root[T], query *CriteriaQuery) (Predicate, error) {
		preds, err := collectPredicates(root, query, specs)
		if err != nil || len(preds) == 0 {
			return nil, err
		}
		if len(preds) == 1 {
			return preds[0], nil
		}
		return sq.Or(preds), nil
	})
}

// Distinct marks the query distinct and delegates the restriction to spec.
func Distinct[T any](spec Specification[T]) Specification[T] {
	return SpecificationFunc[T](func(root *Root[T], query *CriteriaQuery) (Predicate, error) {
		query.Distinct(true)
		if spec == nil {
			return nil, nil
		}
		return spec.ToPredicate(root, query)
	})
}

func collectPredicates[T any](root *Root[T], query *CriteriaQuery, specs []Specification[T]) ([]sq.Sqlizer, error) {
	preds := make([]sq.Sqlizer, 0, len(specs))
	for _, s := range specs {
		if s == nil {
			continue
		}
		p, err := s.ToPredicate(root, query)
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	return preds, nil
}
