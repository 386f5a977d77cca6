package xrepo

import (
	"context"
)

// querySingle runs query and scans its only row.
//
// It returns ErrNoResult when the query yields no rows and ErrTooManyResults
// as soon as a second row is seen; further rows are not read.
func querySingle(ctx context.Context, q Querier, scan scanFunc, query string, args ...any) (out any, err error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Ensure Close error is propagated if no earlier error occurred.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !rows.Next() {
		if ne := rows.Err(); ne != nil {
			return nil, ne
		}
		return nil, ErrNoResult
	}

	v, scanErr := scan(rows.Rows)
	if scanErr != nil {
		return nil, scanErr
	}
	if rows.Next() {
		return nil, ErrTooManyResults
	}
	if ne := rows.Err(); ne != nil {
		return nil, ne
	}
	return v, nil
}
