package xrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
)

type DBHandler func(query string, args []driver.NamedValue) (cols []string, rows [][]driver.Value, err error)

type testConnector struct {
	h DBHandler
}

func (c *testConnector) Connect(context.Context) (driver.Conn, error) { return &testConn{h: c.h}, nil }
func (c *testConnector) Driver() driver.Driver                        { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("testDriver.Open should not be called; use sql.OpenDB with connector")
}

type testConn struct {
	h DBHandler
}

func (c *testConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *testConn) Close() error                        { return nil }
func (c *testConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *testConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cols, data, err := c.h(query, args)
	if err != nil {
		return nil, err
	}
	return &testRows{cols: cols, data: data}, nil
}

type testRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *testRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *testRows) Close() error      { return nil }
func (r *testRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

// newTestDB creates a *sqlx.DB backed by the in-memory test driver. The
// driver name only drives dialect inference.
func newTestDB(t *testing.T, driverName string, h DBHandler) *sqlx.DB {
	t.Helper()
	db := sqlx.NewDb(sql.OpenDB(&testConnector{h: h}), driverName)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recorder keeps every statement the test driver receives.
type recorder struct {
	mu      sync.Mutex
	queries []string
	args    [][]any
}

func (r *recorder) record(query string, args []driver.NamedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	r.queries = append(r.queries, query)
	r.args = append(r.args, vals)
}

func (r *recorder) last() (string, []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		return "", nil
	}
	n := len(r.queries) - 1
	return r.queries[n], r.args[n]
}

/* -------------------------------------------------------
   Connector whose rows fail on the first Next
--------------------------------------------------------*/

type errNextConnector struct{}

func (c *errNextConnector) Connect(context.Context) (driver.Conn, error) { return &errNextConn{}, nil }
func (c *errNextConnector) Driver() driver.Driver                        { return testDriver{} }

type errNextConn struct{}

func (c *errNextConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *errNextConn) Close() error                        { return nil }
func (c *errNextConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }
func (c *errNextConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &errRows{}, nil
}

// errRows fails on first Next(); database/sql exposes it via rows.Err() after Next() returns false.
type errRows struct{}

func (e *errRows) Columns() []string { return []string{"a"} }
func (e *errRows) Close() error      { return nil }
func (e *errRows) Next(dest []driver.Value) error {
	return errors.New("driver next error")
}

func newErrNextDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := sqlx.NewDb(sql.OpenDB(&errNextConnector{}), "sqlite")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDialectOf(t *testing.T) {
	cases := map[string]string{
		"postgres":  "postgres",
		"pgx":       "postgres",
		"sqlserver": "sqlserver",
		"godror":    "oracle",
		"mysql":     "mysql",
		"sqlite":    "sqlite",
		"unknown":   "sqlite",
	}
	for driverName, want := range cases {
		db := newTestDB(t, driverName, func(string, []driver.NamedValue) ([]string, [][]driver.Value, error) {
			return nil, nil, nil
		})
		if got := dialectOf(db).Name; got != want {
			t.Fatalf("dialectOf(%q) = %q, want %q", driverName, got, want)
		}
	}
}

func TestDialectQuote(t *testing.T) {
	cases := []struct {
		d    Dialect
		in   string
		want string
	}{
		{Postgres, `we"ird`, `"we""ird"`},
		{SQLite, "people", `"people"`},
		{MySQL, "a`b", "`a``b`"},
		{SQLServer, "a]b", "[a]]b]"},
		{Dialect{}, "x", `"x"`},
	}
	for _, tc := range cases {
		if got := tc.d.Quote(tc.in); got != tc.want {
			t.Fatalf("%s.Quote(%q) = %q, want %q", tc.d.Name, tc.in, got, tc.want)
		}
	}
}
