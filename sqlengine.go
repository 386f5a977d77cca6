package xrepo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// SQLEngine runs criteria queries against a database/sql handle wrapped by
// sqlx. Statements are built with squirrel using "?" placeholders and then
// rewritten for the dialect.
//
// Hints: HintReadOnly runs the query in a read-only transaction when the
// engine was built WithReadOnlyStreams and the handle can begin one.
// HintFetchSize and HintCacheable have no database/sql equivalent; they are
// recorded and logged.
type SQLEngine struct {
	db              Querier
	dialect         Dialect
	mapper          *Mapper
	logger          *slog.Logger
	readOnlyStreams bool
}

// NewSQLEngine returns an engine over db (usually a *sqlx.DB or *sqlx.Tx).
func NewSQLEngine(db Querier, opts ...Option) *SQLEngine {
	cfg := newConfig(opts)
	d := cfg.Dialect
	if d.Name == "" {
		d = dialectOf(db)
	}
	return &SQLEngine{
		db:              db,
		dialect:         d,
		mapper:          &Mapper{Strict: !cfg.LenientShapes},
		logger:          cfg.Logger,
		readOnlyStreams: cfg.ReadOnlyStreams,
	}
}

func (e *SQLEngine) Dialect() Dialect { return e.dialect }

func (e *SQLEngine) CreateQuery(q *CriteriaQuery, shape RowShape) (TypedQuery, error) {
	if !q.HasSelection() {
		return nil, fmt.Errorf("%w: query on %s selects nothing", ErrShapeMismatch, q.From())
	}
	if shape.Type() == nil {
		return nil, fmt.Errorf("%w: nil row shape", ErrShapeMismatch)
	}
	return &sqlQuery{e: e, q: q, shape: shape, hints: make(map[string]any), max: -1}, nil
}

func (e *SQLEngine) CreateCountQuery(q *CriteriaQuery) (CountQuery, error) {
	return &sqlCountQuery{e: e, q: q}, nil
}

func (e *SQLEngine) selectSQL(q *CriteriaQuery, offset, limit int) (string, []any, error) {
	d := q.dialect
	cols := make([]string, len(q.selection))
	for i, s := range q.selection {
		cols[i] = s.Expr() + " AS " + d.Quote(s.Alias())
	}
	b := e.from(sq.Select(cols...), q)
	if q.distinct {
		b = b.Distinct()
	}
	for _, o := range q.orders {
		dir := "ASC"
		if o.desc {
			dir = "DESC"
		}
		b = b.OrderBy(o.expr + " " + dir)
	}
	switch {
	case d.usesOffsetFetch():
		if offset > 0 || limit >= 0 {
			if len(q.orders) == 0 {
				b = b.OrderBy("(SELECT NULL)")
			}
			b = b.Suffix("OFFSET ? ROWS", offset)
			if limit >= 0 {
				b = b.Suffix("FETCH NEXT ? ROWS ONLY", limit)
			}
		}
	default:
		if limit >= 0 {
			b = b.Limit(uint64(limit))
		} else if n, ok := d.unboundedLimit(); ok && offset > 0 {
			b = b.Limit(n)
		}
		if offset > 0 {
			b = b.Offset(uint64(offset))
		}
	}
	return e.toSQL(b)
}

func (e *SQLEngine) countSQL(q *CriteriaQuery) (string, []any, error) {
	c := countSelection{expr: "COUNT(" + q.idExpr() + ")"}
	if q.distinct {
		c.expr = "COUNT(DISTINCT " + q.idExpr() + ")"
	}
	return e.toSQL(e.from(sq.Select(c.Expr()), q))
}

func (e *SQLEngine) from(b sq.SelectBuilder, q *CriteriaQuery) sq.SelectBuilder {
	b = b.From(q.dialect.Quote(q.table.name))
	for _, j := range q.joins {
		b = b.LeftJoin(j.sql)
	}
	if q.where != nil {
		b = b.Where(q.where)
	}
	return b
}

func (e *SQLEngine) toSQL(b sq.SelectBuilder) (string, []any, error) {
	s, args, err := b.ToSql()
	if err != nil {
		return "", nil, err
	}
	return rewritePlaceholders(s, e.dialect.Placeholder), args, nil
}

// conn returns the handle to run a query on. With the read-only hint it may
// be a read-only transaction; release ends it.
func (e *SQLEngine) conn(ctx context.Context, hints map[string]any) (Querier, func() error, error) {
	noop := func() error { return nil }
	if !e.readOnlyStreams || !hintBool(hints, HintReadOnly) {
		return e.db, noop, nil
	}
	b, ok := e.db.(txBeginner)
	if !ok {
		return e.db, noop, nil
	}
	tx, err := b.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return tx, tx.Rollback, nil
}

type sqlQuery struct {
	e     *SQLEngine
	q     *CriteriaQuery
	shape RowShape
	hints map[string]any
	first int
	max   int
}

func (s *sqlQuery) SetHint(name string, value any) { s.hints[name] = value }
func (s *sqlQuery) SetFirstResult(offset int)      { s.first = offset }
func (s *sqlQuery) SetMaxResults(limit int)        { s.max = limit }

func (s *sqlQuery) scanner() scanFunc {
	m := s.e.mapper
	if s.shape.IsTuple() {
		sels := s.q.selection
		return func(rows *sql.Rows) (any, error) { return m.scanTuple(rows, sels) }
	}
	rt := s.shape.Type()
	return func(rows *sql.Rows) (any, error) {
		v, err := m.scanValue(rows, rt)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
}

func (s *sqlQuery) prepare(ctx context.Context, op string) (string, []any, error) {
	query, args, err := s.e.selectSQL(s.q, s.first, s.max)
	if err != nil {
		return "", nil, err
	}
	l := loggerFor(ctx, s.e.logger)
	l.DebugContext(ctx, "xrepo: "+op, "sql", query, "args", args, "shape", s.shape.String())
	if len(s.hints) > 0 {
		l.DebugContext(ctx, "xrepo: hints", "hints", s.hints)
	}
	return query, args, nil
}

func (s *sqlQuery) SingleResult(ctx context.Context) (out any, err error) {
	query, args, err := s.prepare(ctx, "single")
	if err != nil {
		return nil, err
	}
	db, release, err := s.e.conn(ctx, s.hints)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return querySingle(ctx, db, s.scanner(), query, args...)
}

func (s *sqlQuery) ResultList(ctx context.Context) (out []any, err error) {
	query, args, err := s.prepare(ctx, "list")
	if err != nil {
		return nil, err
	}
	db, release, err := s.e.conn(ctx, s.hints)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return queryList(ctx, db, s.scanner(), query, args...)
}

func (s *sqlQuery) ResultStream(ctx context.Context) (Cursor, error) {
	query, args, err := s.prepare(ctx, "stream")
	if err != nil {
		return nil, err
	}
	db, release, err := s.e.conn(ctx, s.hints)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		_ = release()
		return nil, err
	}
	return &sqlCursor{rows: rows, scan: s.scanner(), release: release}, nil
}

type sqlCursor struct {
	rows    *sqlx.Rows
	scan    scanFunc
	val     any
	err     error
	release func() error
}

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	v, err := c.scan(c.rows.Rows)
	if err != nil {
		c.err = err
		c.val = nil
		return false
	}
	c.val = v
	return true
}

func (c *sqlCursor) Value() any { return c.val }

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *sqlCursor) Close() error {
	err := c.rows.Close()
	if c.release != nil {
		if rerr := c.release(); err == nil {
			err = rerr
		}
		c.release = nil
	}
	return err
}

type sqlCountQuery struct {
	e *SQLEngine
	q *CriteriaQuery
}

func (c *sqlCountQuery) Count(ctx context.Context) (int64, error) {
	query, args, err := c.e.countSQL(c.q)
	if err != nil {
		return 0, err
	}
	loggerFor(ctx, c.e.logger).DebugContext(ctx, "xrepo: count", "sql", query, "args", args)
	var n int64
	if err := sqlx.GetContext(ctx, c.e.db, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
