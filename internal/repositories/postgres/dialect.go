package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
	"github.com/asakaida/kankei/internal/repositories/sqlstore"
)

// Dialect renders PostgreSQL statements
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// NewStore creates a record and revision store on a PostgreSQL connection
func NewStore(db *sql.DB, classes repositories.ClassLookup) *sqlstore.Store {
	return sqlstore.New(db, Dialect{}, classes)
}

func (Dialect) Name() string {
	return "postgres"
}

func (Dialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (Dialect) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// In binds a list of integers or strings as one array parameter and falls back
// to one placeholder per value for mixed lists
func (Dialect) In(column string, values []interface{}, bind func(interface{}) string) string {
	if ints, ok := int64Values(values); ok {
		return fmt.Sprintf("%s = ANY(%s)", column, bind(pq.Int64Array(ints)))
	}
	if strs, ok := stringValues(values); ok {
		return fmt.Sprintf("%s = ANY(%s)", column, bind(pq.StringArray(strs)))
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = bind(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// OrderTerm puts NULLs first ascending and last descending, which PostgreSQL
// does the other way round by default
func (Dialect) OrderTerm(column string, desc bool) string {
	if desc {
		return column + " DESC NULLS LAST"
	}
	return column + " ASC NULLS FIRST"
}

func (Dialect) InsertReturningID(ctx context.Context, db *sql.DB, query string, idColumn string, args []interface{}) (int64, error) {
	var id int64
	if err := db.QueryRowContext(ctx, query+" RETURNING "+idColumn, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func int64Values(values []interface{}) ([]int64, bool) {
	out := make([]int64, len(values))
	for i, v := range values {
		n, ok := entities.AsInt64(v)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func stringValues(values []interface{}) ([]string, bool) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
