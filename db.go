package xrepo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Querier is implemented by *sqlx.DB and *sqlx.Tx, and by any wrapper that
// can run a query returning rows.
type Querier = sqlx.QueryerContext

// driverNamer is implemented by *sqlx.DB and *sqlx.Tx.
type driverNamer interface {
	DriverName() string
}

// txBeginner is implemented by *sqlx.DB. It starts the transactions that back
// read-only streams.
type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

func dialectOf(q Querier) Dialect {
	if dn, ok := q.(driverNamer); ok {
		return DialectFor(dn.DriverName())
	}
	return SQLite
}
