package xrepo

import (
	"context"
	"database/sql"
)

// scanFunc scans the current row of rows into one result value.
type scanFunc func(rows *sql.Rows) (any, error)

// queryList runs query and scans every row with scan.
//
// The rows are closed before returning; a Close error is returned when
// nothing else failed.
func queryList(ctx context.Context, q Querier, scan scanFunc, query string, args ...any) (out []any, err error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Propagate rows.Close() error if nothing else failed.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out = []any{}
	for rows.Next() {
		v, scanErr := scan(rows.Rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, v)
	}
	if ne := rows.Err(); ne != nil {
		return nil, ne
	}
	return out, nil
}
