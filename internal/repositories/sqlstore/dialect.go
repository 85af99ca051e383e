package sqlstore

import (
	"context"
	"database/sql"
	"strings"
)

// Dialect captures the SQL differences between database engines
type Dialect interface {
	// Name returns the database/sql driver name
	Name() string

	// Placeholder returns the bind parameter for the n-th argument, starting at 1
	Placeholder(n int) string

	// QuoteIdentifier quotes a table or column name
	QuoteIdentifier(name string) string

	// In renders "column IN values", binding the values through bind
	In(column string, values []interface{}, bind func(interface{}) string) string

	// OrderTerm renders one ORDER BY term with NULLs sorting first in ascending order
	OrderTerm(column string, desc bool) string

	// InsertReturningID runs an INSERT and returns the generated primary key
	InsertReturningID(ctx context.Context, db *sql.DB, query string, idColumn string, args []interface{}) (int64, error)
}

// QuoteDouble quotes an identifier with double quotes, as both PostgreSQL and SQLite accept
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
