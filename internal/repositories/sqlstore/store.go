package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// RevisionsTable stores the revision snapshots of every versioned class
const RevisionsTable = "revisions"

// Store implements RecordRepository and RevisionRepository on database/sql.
// Tables and columns come from the class definitions: one table per class
// (TableName), one column per field, named exactly like the field.
type Store struct {
	db      *sql.DB
	dialect Dialect
	classes repositories.ClassLookup
	nowFn   func() time.Time
}

// New creates a store
func New(db *sql.DB, dialect Dialect, classes repositories.ClassLookup) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		classes: classes,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to date revisions
func (s *Store) SetClock(now func() time.Time) {
	s.nowFn = now
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// query accumulates bind arguments while a statement is built
type query struct {
	dialect Dialect
	args    []interface{}
}

func (q *query) bind(v interface{}) string {
	q.args = append(q.args, v)
	return q.dialect.Placeholder(len(q.args))
}

func (s *Store) quote(name string) string {
	return s.dialect.QuoteIdentifier(name)
}

// GetByID retrieves a record by primary key
func (s *Store) GetByID(ctx context.Context, class string, id interface{}) (*entities.Record, error) {
	return s.GetByWhere(ctx, class, []entities.Condition{entities.Eq(entities.PrimaryKey, id)}, nil)
}

// GetByField retrieves the first record whose field equals value
func (s *Store) GetByField(ctx context.Context, class string, field string, value interface{}) (*entities.Record, error) {
	return s.GetByWhere(ctx, class, []entities.Condition{entities.Eq(field, value)}, nil)
}

// GetByHandle retrieves a record by its Handle field
func (s *Store) GetByHandle(ctx context.Context, class string, handle string) (*entities.Record, error) {
	return s.GetByWhere(ctx, class, []entities.Condition{entities.Eq(entities.HandleField, handle)}, nil)
}

// GetByWhere retrieves the first record matching all conditions
func (s *Store) GetByWhere(ctx context.Context, class string, where []entities.Condition, opts *repositories.QueryOptions) (*entities.Record, error) {
	o := repositories.QueryOptions{Limit: 1}
	if opts != nil {
		o.Order = opts.Order
	}
	recs, err := s.GetAllByWhere(ctx, class, where, &o)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// GetAllByWhere retrieves every record matching all conditions
func (s *Store) GetAllByWhere(ctx context.Context, className string, where []entities.Condition, opts *repositories.QueryOptions) ([]*entities.Record, error) {
	class, err := s.classes.Class(className)
	if err != nil {
		return nil, err
	}

	q := &query{dialect: s.dialect}
	clauses, err := s.conditions(q, class, where)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &repositories.QueryOptions{}
	}
	return s.selectRecords(ctx, class, q, clauses, opts)
}

// GetAllByQuery retrieves targets whose query.Foreign field appears in the link rows of the owner
func (s *Store) GetAllByQuery(ctx context.Context, className string, lq *repositories.LinkQuery) ([]*entities.Record, error) {
	if lq == nil {
		return nil, fmt.Errorf("link query is required")
	}
	class, err := s.classes.Class(className)
	if err != nil {
		return nil, err
	}
	link, err := s.classes.Class(lq.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve link class: %w", err)
	}
	for _, field := range []string{lq.LinkLocal, lq.LinkForeign} {
		if !link.HasField(field) {
			return nil, fmt.Errorf("link class %s has no field %s", link.Name, field)
		}
	}
	if !class.HasField(lq.Foreign) {
		return nil, fmt.Errorf("%s has no field %s", class.Name, lq.Foreign)
	}

	q := &query{dialect: s.dialect}
	join := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = %s)",
		s.quote(lq.Foreign),
		s.quote(lq.LinkForeign),
		s.quote(link.TableName()),
		s.quote(lq.LinkLocal),
		q.bind(lq.LocalValue),
	)
	clauses, err := s.conditions(q, class, lq.Conditions)
	if err != nil {
		return nil, err
	}
	return s.selectRecords(ctx, class, q, append([]string{join}, clauses...), &repositories.QueryOptions{Order: lq.Order})
}

// Save inserts a phantom record, assigning its generated ID, or updates the
// dirty fields of a persisted one
func (s *Store) Save(ctx context.Context, rec *entities.Record) error {
	if rec.IsNew() {
		return s.insert(ctx, rec)
	}
	return s.update(ctx, rec)
}

func (s *Store) insert(ctx context.Context, rec *entities.Record) error {
	class := rec.Class()
	id := rec.ID()
	generated := entities.IsZeroKey(id)

	q := &query{dialect: s.dialect}
	var columns, values []string
	for _, column := range class.ColumnNames() {
		if column == entities.PrimaryKey && generated {
			continue
		}
		v, ok := rec.Lookup(column)
		if !ok {
			continue
		}
		columns = append(columns, s.quote(column))
		values = append(values, q.bind(v))
	}

	stmt := fmt.Sprintf("INSERT INTO %s", s.quote(class.TableName()))
	if len(columns) == 0 {
		stmt += " DEFAULT VALUES"
	} else {
		stmt += fmt.Sprintf(" (%s) VALUES (%s)", strings.Join(columns, ", "), strings.Join(values, ", "))
	}

	if generated {
		newID, err := s.dialect.InsertReturningID(ctx, s.db, stmt, s.quote(entities.PrimaryKey), q.args)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", class.Name, err)
		}
		rec.AssignID(newID)
	} else if _, err := s.db.ExecContext(ctx, stmt, q.args...); err != nil {
		return fmt.Errorf("failed to insert %s: %w", class.Name, err)
	}

	rec.MarkSaved()
	return nil
}

func (s *Store) update(ctx context.Context, rec *entities.Record) error {
	class := rec.Class()

	q := &query{dialect: s.dialect}
	var sets []string
	for _, field := range rec.DirtyFields() {
		if field == entities.PrimaryKey || !class.HasField(field) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", s.quote(field), q.bind(rec.Get(field))))
	}
	if len(sets) == 0 {
		rec.MarkSaved()
		return nil
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.quote(class.TableName()),
		strings.Join(sets, ", "),
		s.quote(entities.PrimaryKey),
		q.bind(rec.ID()),
	)
	result, err := s.db.ExecContext(ctx, stmt, q.args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", class.Name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update %s: no row with ID %v", class.Name, rec.ID())
	}

	rec.MarkSaved()
	return nil
}

// conditions renders field conditions as SQL predicates
func (s *Store) conditions(q *query, class *entities.Class, where []entities.Condition) ([]string, error) {
	clauses := make([]string, 0, len(where))
	for _, cond := range where {
		if cond.IsExpression() {
			return nil, fmt.Errorf("expression condition %q cannot be evaluated by the repository", cond.Expr)
		}
		if err := cond.Validate(); err != nil {
			return nil, err
		}
		if !class.HasField(cond.Field) {
			return nil, fmt.Errorf("%s has no field %s", class.Name, cond.Field)
		}

		column := s.quote(cond.Field)
		switch cond.Op {
		case entities.OpIsNull, entities.OpNotNull:
			clauses = append(clauses, fmt.Sprintf("%s %s", column, cond.Op))
		case entities.OpIn:
			values := cond.Value.([]interface{})
			if len(values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			clauses = append(clauses, s.dialect.In(column, values, q.bind))
		case entities.OpNe:
			clauses = append(clauses, fmt.Sprintf("%s <> %s", column, q.bind(cond.Value)))
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", column, cond.Op, q.bind(cond.Value)))
		}
	}
	return clauses, nil
}

func (s *Store) selectRecords(ctx context.Context, class *entities.Class, q *query, clauses []string, opts *repositories.QueryOptions) ([]*entities.Record, error) {
	columns := class.ColumnNames()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.quote(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(quoted, ", "), s.quote(class.TableName()))
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	// ID breaks ties so results follow insertion order like the memory store
	var terms []string
	byID := false
	for _, term := range opts.Order {
		if !class.HasField(term.Field) {
			return nil, fmt.Errorf("%s has no field %s to order by", class.Name, term.Field)
		}
		byID = byID || term.Field == entities.PrimaryKey
		terms = append(terms, s.dialect.OrderTerm(s.quote(term.Field), term.Desc))
	}
	if !byID {
		terms = append(terms, s.dialect.OrderTerm(s.quote(entities.PrimaryKey), false))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(terms, ", "))
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(opts.Limit))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", class.Name, err)
	}
	defer rows.Close()

	var recs []*entities.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", class.Name, err)
		}

		fields := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			fields[column] = normalize(values[i])
		}
		recs = append(recs, entities.LoadRecord(class, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", class.Name, err)
	}
	return recs, nil
}

// normalize converts driver values to the field value types records use
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
