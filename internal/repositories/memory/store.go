package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

type table struct {
	rows   map[string]repositories.Row // key(ID) -> fields
	order  []string                    // insertion order of keys
	nextID int64
}

type revision struct {
	id        string
	class     string
	recordKey string
	data      repositories.Row
	createdAt time.Time
}

// Store is an in-memory RecordRepository and RevisionRepository.
// Rows are copied on the way in and out, so records never share state with the store.
type Store struct {
	mu        sync.RWMutex
	classes   repositories.ClassLookup
	tables    map[string]*table
	revisions []revision
	calls     map[string]int
	nowFn     func() time.Time
}

// NewStore creates an empty store resolving classes through the given lookup
func NewStore(classes repositories.ClassLookup) *Store {
	return &Store{
		classes: classes,
		tables:  make(map[string]*table),
		calls:   make(map[string]int),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to date revisions
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// Calls returns how many times a repository method has been invoked
func (s *Store) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

// TotalLookups returns the number of read calls of every kind
func (s *Store) TotalLookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for method, n := range s.calls {
		if method != "Save" && method != "WriteRevision" {
			total += n
		}
	}
	return total
}

// ResetCalls clears the call counters
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *Store) count(method string) {
	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()
}

// GetByID retrieves a record by primary key
func (s *Store) GetByID(ctx context.Context, class string, id interface{}) (*entities.Record, error) {
	s.count("GetByID")
	return s.first(class, []entities.Condition{entities.Eq(entities.PrimaryKey, id)}, nil)
}

// GetByField retrieves the first record whose field equals value
func (s *Store) GetByField(ctx context.Context, class string, field string, value interface{}) (*entities.Record, error) {
	s.count("GetByField")
	return s.first(class, []entities.Condition{entities.Eq(field, value)}, nil)
}

// GetByHandle retrieves a record by its Handle field
func (s *Store) GetByHandle(ctx context.Context, class string, handle string) (*entities.Record, error) {
	s.count("GetByHandle")
	return s.first(class, []entities.Condition{entities.Eq(entities.HandleField, handle)}, nil)
}

// GetByWhere retrieves the first record matching all conditions
func (s *Store) GetByWhere(ctx context.Context, class string, where []entities.Condition, opts *repositories.QueryOptions) (*entities.Record, error) {
	s.count("GetByWhere")
	return s.first(class, where, opts)
}

// GetAllByWhere retrieves every record matching all conditions
func (s *Store) GetAllByWhere(ctx context.Context, class string, where []entities.Condition, opts *repositories.QueryOptions) ([]*entities.Record, error) {
	s.count("GetAllByWhere")
	return s.selectRecords(class, where, opts)
}

// GetAllByQuery retrieves targets joined through the link class
func (s *Store) GetAllByQuery(ctx context.Context, class string, query *repositories.LinkQuery) ([]*entities.Record, error) {
	s.count("GetAllByQuery")
	if query == nil {
		return nil, fmt.Errorf("link query is required")
	}

	links, err := s.selectRows(query.Link, []entities.Condition{entities.Eq(query.LinkLocal, query.LocalValue)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read link rows: %w", err)
	}
	values := make([]interface{}, 0, len(links))
	for _, link := range links {
		values = append(values, link[query.LinkForeign])
	}
	if len(values) == 0 {
		return nil, nil
	}

	where := append([]entities.Condition{entities.Where(query.Foreign, entities.OpIn, values)}, query.Conditions...)
	return s.selectRecords(class, where, &repositories.QueryOptions{Order: query.Order})
}

// Save inserts or updates a record
func (s *Store) Save(ctx context.Context, rec *entities.Record) error {
	s.count("Save")
	class := rec.Class()

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(class)
	if rec.IsNew() {
		id := rec.ID()
		if entities.IsZeroKey(id) {
			t.nextID++
			id = t.nextID
		} else if n, ok := entities.AsInt64(id); ok && n > t.nextID {
			t.nextID = n
		}
		key := entities.KeyString(id)
		if _, exists := t.rows[key]; exists {
			return fmt.Errorf("failed to insert %s: duplicate ID %v", class.Name, id)
		}
		row := rec.Fields()
		row[entities.PrimaryKey] = id
		t.rows[key] = row
		t.order = append(t.order, key)
		rec.AssignID(id)
		rec.MarkSaved()
		return nil
	}

	key := entities.KeyString(rec.ID())
	row, exists := t.rows[key]
	if !exists {
		return fmt.Errorf("failed to update %s: no row with ID %v", class.Name, rec.ID())
	}
	for _, field := range rec.DirtyFields() {
		row[field] = rec.Get(field)
	}
	rec.MarkSaved()
	return nil
}

// WriteRevision stores a snapshot of the record
func (s *Store) WriteRevision(ctx context.Context, rec *entities.Record) error {
	s.count("WriteRevision")
	if rec.IsNew() {
		return fmt.Errorf("cannot write a revision of an unsaved %s", rec.ClassName())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions = append(s.revisions, revision{
		id:        uuid.NewString(),
		class:     rec.ClassName(),
		recordKey: entities.KeyString(rec.ID()),
		data:      rec.Fields(),
		createdAt: s.nowFn(),
	})
	return nil
}

// GetRevisionsByID returns the snapshots of one record
func (s *Store) GetRevisionsByID(ctx context.Context, class string, id interface{}, rel *entities.HistoryRelationship) ([]*entities.Record, error) {
	s.count("GetRevisionsByID")
	target, err := s.classes.Class(rel.Target)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	key := entities.KeyString(id)
	var rows []repositories.Row
	for _, rev := range s.revisions {
		if rev.class != class || rev.recordKey != key {
			continue
		}
		row := rev.data.Copy()
		row[repositories.RevisionIDField] = rev.id
		row[repositories.RevisionDateField] = rev.createdAt
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	rows, err = repositories.FilterRows(rows, rel.Conditions)
	if err != nil {
		return nil, err
	}
	repositories.SortRows(rows, rel.Order)

	out := make([]*entities.Record, len(rows))
	for i, row := range rows {
		out[i] = entities.LoadRecord(target, row)
	}
	return out, nil
}

func (s *Store) first(class string, where []entities.Condition, opts *repositories.QueryOptions) (*entities.Record, error) {
	o := repositories.QueryOptions{Limit: 1}
	if opts != nil {
		o.Order = opts.Order
	}
	recs, err := s.selectRecords(class, where, &o)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) selectRecords(className string, where []entities.Condition, opts *repositories.QueryOptions) ([]*entities.Record, error) {
	class, err := s.classes.Class(className)
	if err != nil {
		return nil, err
	}
	rows, err := s.selectRows(className, where, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Record, len(rows))
	for i, row := range rows {
		out[i] = entities.LoadRecord(class, row)
	}
	return out, nil
}

func (s *Store) selectRows(className string, where []entities.Condition, opts *repositories.QueryOptions) ([]repositories.Row, error) {
	class, err := s.classes.Class(className)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var rows []repositories.Row
	if t, ok := s.tables[class.TableName()]; ok {
		for _, key := range t.order {
			rows = append(rows, t.rows[key].Copy())
		}
	}
	s.mu.RUnlock()

	rows, err = repositories.FilterRows(rows, where)
	if err != nil {
		return nil, err
	}
	if opts != nil {
		repositories.SortRows(rows, opts.Order)
		if opts.Limit > 0 && len(rows) > opts.Limit {
			rows = rows[:opts.Limit]
		}
	}
	return rows, nil
}

// table must be called with the write lock held
func (s *Store) table(class *entities.Class) *table {
	name := class.TableName()
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]repositories.Row)}
		s.tables[name] = t
	}
	return t
}
