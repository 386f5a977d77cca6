package xrepo

import (
	"math"
	"strings"

	"github.com/lib/pq"
)

// Dialect carries the per-database details of generated SQL: placeholder
// style and identifier quoting.
type Dialect struct {
	Name        string
	Placeholder Placeholder
	quote       func(string) string
}

var (
	Postgres  = Dialect{Name: "postgres", Placeholder: PlaceholderDollar, quote: pq.QuoteIdentifier}
	SQLite    = Dialect{Name: "sqlite", Placeholder: PlaceholderQuestion, quote: quoteDouble}
	MySQL     = Dialect{Name: "mysql", Placeholder: PlaceholderQuestion, quote: quoteBacktick}
	SQLServer = Dialect{Name: "sqlserver", Placeholder: PlaceholderAtP, quote: quoteBracket}
	Oracle    = Dialect{Name: "oracle", Placeholder: PlaceholderColonNum, quote: quoteDouble}
)

// DialectFor picks a Dialect based on a database/sql driver name. Unknown
// drivers get ANSI double-quoted identifiers and "?" placeholders.
//
//	d := xrepo.DialectFor("pgx")       // => Postgres
//	d := xrepo.DialectFor("sqlserver") // => SQLServer
//	d := xrepo.DialectFor("sqlite")    // => SQLite
func DialectFor(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "lib/pq", "pg":
		return Postgres
	case "sqlserver", "mssql":
		return SQLServer
	case "godror", "oracle", "goracle":
		return Oracle
	case "mysql":
		return MySQL
	default:
		return SQLite
	}
}

// Quote quotes an identifier for the dialect.
func (d Dialect) Quote(ident string) string {
	if d.quote == nil {
		return quoteDouble(ident)
	}
	return d.quote(ident)
}

func quoteDouble(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteBacktick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func quoteBracket(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// usesOffsetFetch reports whether paging is written OFFSET n ROWS FETCH NEXT m
// ROWS ONLY instead of LIMIT/OFFSET.
func (d Dialect) usesOffsetFetch() bool {
	return d.Name == SQLServer.Name || d.Name == Oracle.Name
}

// unboundedLimit is the LIMIT written when only an offset is set, for
// dialects that reject OFFSET without LIMIT.
func (d Dialect) unboundedLimit() (uint64, bool) {
	switch d.Name {
	case Postgres.Name:
		return 0, false
	case MySQL.Name:
		return math.MaxUint64, true
	}
	return math.MaxInt64, true
}
