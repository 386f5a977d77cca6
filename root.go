package xrepo

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Root is the root entity handle of a query under construction. Paths
// obtained from it are qualified with the root table and quoted for the
// query's dialect.
type Root[T any] struct {
	query  *CriteriaQuery
	entity *Entity[T]
}

func newRoot[T any](e *Entity[T], q *CriteriaQuery) *Root[T] {
	return &Root[T]{query: q, entity: e}
}

// Entity returns the metamodel of the root.
func (r *Root[T]) Entity() *Entity[T] { return r.entity }

// Query returns the query the root belongs to.
func (r *Root[T]) Query() *CriteriaQuery { return r.query }

// Get resolves an attribute name to a column path. Unknown names fail with
// ErrUnknownAttribute.
func (r *Root[T]) Get(name string) (*Path, error) {
	a, ok := r.entity.t.attribute(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, name, r.entity.t.name)
	}
	return &Path{expr: r.column(a.column), alias: a.name, typ: a.typ}, nil
}

// ID returns the path of the id column.
func (r *Root[T]) ID() *Path {
	if a, ok := r.entity.t.attribute(r.entity.t.id); ok {
		return &Path{expr: r.column(a.column), alias: a.name, typ: a.typ}
	}
	return &Path{expr: r.column(r.entity.t.id), alias: r.entity.t.id}
}

// Attributes returns a path per attribute in declaration order.
func (r *Root[T]) Attributes() []Selection {
	out := make([]Selection, len(r.entity.t.attrs))
	for i, a := range r.entity.t.attrs {
		out[i] = &Path{expr: r.column(a.column), alias: a.name, typ: a.typ}
	}
	return out
}

// JoinCollection left-joins the collection table of a plural attribute and
// returns the path of its element column. Joining the same attribute twice
// within one query reuses the first join.
func (r *Root[T]) JoinCollection(name string, j CollectionJoin, elem reflect.Type) (*Path, error) {
	if j.Table == "" || j.ForeignKey == "" || j.Column == "" {
		return nil, fmt.Errorf("%w: collection %q on %s needs table, foreign key and column", ErrUnknownAttribute, name, r.entity.t.name)
	}
	q := r.query
	d := q.dialect
	for _, qj := range q.joins {
		if qj.name == name {
			return &Path{expr: qj.expr, alias: name, typ: elem}, nil
		}
	}

	alias := "j" + strconv.Itoa(len(q.joins)+1)
	on := fmt.Sprintf("%s %s ON %s.%s = %s",
		d.Quote(j.Table), d.Quote(alias),
		d.Quote(alias), d.Quote(j.ForeignKey),
		r.column(r.entity.t.id))
	expr := d.Quote(alias) + "." + d.Quote(j.Column)
	q.joins = append(q.joins, queryJoin{name: name, alias: alias, sql: on, expr: expr})
	return &Path{expr: expr, alias: name, typ: elem}, nil
}

// columnOf resolves an attribute or joined collection name to its qualified
// column.
func (r *Root[T]) columnOf(name string) (string, bool) {
	if a, ok := r.entity.t.attribute(name); ok {
		return r.column(a.column), true
	}
	for _, qj := range r.query.joins {
		if strings.EqualFold(qj.name, name) {
			return qj.expr, true
		}
	}
	return "", false
}

func (r *Root[T]) column(col string) string {
	d := r.query.dialect
	return d.Quote(r.entity.t.name) + "." + d.Quote(col)
}
