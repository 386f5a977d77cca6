package xrepo

import "fmt"

// Direction of an Order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Order sorts by one attribute.
type Order struct {
	Property  string
	Direction Direction
}

func Asc(property string) Order  { return Order{Property: property, Direction: Ascending} }
func Desc(property string) Order { return Order{Property: property, Direction: Descending} }

// Sort is an ordered list of orders. The zero value is unsorted.
type Sort []Order

// By builds a Sort from orders.
func By(orders ...Order) Sort { return Sort(orders) }

// IsSorted reports whether s has at least one order.
func (s Sort) IsSorted() bool { return len(s) > 0 }

// And appends the orders of o.
func (s Sort) And(o Sort) Sort {
	out := make(Sort, 0, len(s)+len(o))
	return append(append(out, s...), o...)
}

// applySort resolves every property against the root and records the order
// on the root's query.
func applySort[T any](root *Root[T], s Sort) error {
	for _, o := range s {
		p, err := root.Get(o.Property)
		if err != nil {
			return fmt.Errorf("xrepo: sort: %w", err)
		}
		root.query.orderBy(p.Expr(), o.Direction == Descending)
	}
	return nil
}
