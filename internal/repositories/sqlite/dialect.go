package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asakaida/kankei/internal/repositories"
	"github.com/asakaida/kankei/internal/repositories/sqlstore"
)

// Dialect renders SQLite statements
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// NewStore creates a record and revision store on a SQLite connection
func NewStore(db *sql.DB, classes repositories.ClassLookup) *sqlstore.Store {
	return sqlstore.New(db, Dialect{}, classes)
}

func (Dialect) Name() string {
	return "sqlite"
}

func (Dialect) Placeholder(int) string {
	return "?"
}

func (Dialect) QuoteIdentifier(name string) string {
	return sqlstore.QuoteDouble(name)
}

func (Dialect) In(column string, values []interface{}, bind func(interface{}) string) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = bind(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// OrderTerm relies on SQLite sorting NULLs first ascending and last descending
func (Dialect) OrderTerm(column string, desc bool) string {
	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

func (Dialect) InsertReturningID(ctx context.Context, db *sql.DB, query string, idColumn string, args []interface{}) (int64, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}
