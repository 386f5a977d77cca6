package xrepo

import (
	"reflect"

	sq "github.com/Masterminds/squirrel"
)

// Predicate is a boolean SQL expression with its arguments. Any squirrel
// condition (sq.Eq, sq.And, sq.Expr, ...) is a Predicate. Use "?" placeholders;
// engines rewrite them for their dialect.
type Predicate = sq.Sqlizer

// Selection is one item of a query's select list.
type Selection interface {
	// Alias names the result column.
	Alias() string
	// Type is the static Go type of the column, or nil when unknown.
	Type() reflect.Type
	// Expr is the SQL expression, already quoted for the query's dialect.
	Expr() string
}

// CriteriaQuery accumulates one query under construction: the root table,
// joins, restriction, selection, distinct flag and ordering. Specifications
// receive it alongside the root and may set a selection or the distinct flag.
type CriteriaQuery struct {
	table     *table
	dialect   Dialect
	where     Predicate
	selection []Selection
	distinct  bool
	joins     []queryJoin
	orders    []queryOrder
}

type queryJoin struct {
	name  string
	alias string
	sql   string
	expr  string // element column
}

type queryOrder struct {
	expr string
	desc bool
}

func newCriteriaQuery(t *table, d Dialect) *CriteriaQuery {
	return &CriteriaQuery{table: t, dialect: d}
}

// Where replaces the restriction. A nil predicate removes it.
func (q *CriteriaQuery) Where(p Predicate) *CriteriaQuery {
	q.where = p
	return q
}

// Restriction returns the current restriction, or nil.
func (q *CriteriaQuery) Restriction() Predicate { return q.where }

// Multiselect sets the select list.
func (q *CriteriaQuery) Multiselect(sel ...Selection) *CriteriaQuery {
	q.selection = append([]Selection(nil), sel...)
	return q
}

// Selection returns the select list, or nil when none was set.
func (q *CriteriaQuery) Selection() []Selection { return q.selection }

// HasSelection reports whether a select list was set.
func (q *CriteriaQuery) HasSelection() bool { return len(q.selection) > 0 }

// Distinct sets the distinct flag. Count queries honour it.
func (q *CriteriaQuery) Distinct(distinct bool) *CriteriaQuery {
	q.distinct = distinct
	return q
}

// IsDistinct reports the distinct flag.
func (q *CriteriaQuery) IsDistinct() bool { return q.distinct }

// Dialect returns the dialect expressions are quoted for.
func (q *CriteriaQuery) Dialect() Dialect { return q.dialect }

// From returns the root table name.
func (q *CriteriaQuery) From() string { return q.table.name }

func (q *CriteriaQuery) orderBy(expr string, desc bool) {
	q.orders = append(q.orders, queryOrder{expr: expr, desc: desc})
}

func (q *CriteriaQuery) clearOrders() { q.orders = nil }

// idExpr is the qualified id column of the root table.
func (q *CriteriaQuery) idExpr() string {
	col := q.table.id
	if a, ok := q.table.attribute(col); ok {
		col = a.column
	}
	return q.dialect.Quote(q.table.name) + "." + q.dialect.Quote(col)
}

// Path is a column reachable from a root: a direct attribute or the value
// column of a joined collection.
type Path struct {
	expr  string
	alias string
	typ   reflect.Type
}

func (p *Path) Alias() string      { return p.alias }
func (p *Path) Type() reflect.Type { return p.typ }
func (p *Path) Expr() string       { return p.expr }

func (p *Path) withType(t reflect.Type) *Path {
	cp := *p
	cp.typ = t
	return &cp
}

// Eq matches rows whose column equals v. A slice value produces IN (...), a
// nil value produces IS NULL.
func (p *Path) Eq(v any) Predicate { return sq.Eq{p.expr: v} }

func (p *Path) NotEq(v any) Predicate  { return sq.NotEq{p.expr: v} }
func (p *Path) Gt(v any) Predicate     { return sq.Gt{p.expr: v} }
func (p *Path) GtOrEq(v any) Predicate { return sq.GtOrEq{p.expr: v} }
func (p *Path) Lt(v any) Predicate     { return sq.Lt{p.expr: v} }
func (p *Path) LtOrEq(v any) Predicate { return sq.LtOrEq{p.expr: v} }

// Like matches the column against a LIKE pattern.
func (p *Path) Like(pattern string) Predicate { return sq.Like{p.expr: pattern} }

// IsNull matches rows whose column is NULL.
func (p *Path) IsNull() Predicate { return sq.Eq{p.expr: nil} }

// countSelection is the row-count expression of count queries.
type countSelection struct {
	expr string
}

func (c countSelection) Alias() string      { return "count" }
func (c countSelection) Type() reflect.Type { return reflect.TypeFor[int64]() }
func (c countSelection) Expr() string       { return c.expr }
