package repositories

import (
	"context"

	"github.com/asakaida/kankei/internal/entities"
)

// ClassLookup resolves class definitions by name
type ClassLookup interface {
	Class(name string) (*entities.Class, error)
}

// QueryOptions controls ordering and size of multi-record lookups
type QueryOptions struct {
	Order entities.Order // Ordering, natural order when empty
	Limit int            // Maximum number of records, unlimited when zero
}

// LinkQuery selects target records through rows of a link class:
// targets T such that a link row L exists with L.LinkLocal == LocalValue
// and L.LinkForeign == T.Foreign, additionally filtered by Conditions on T.
type LinkQuery struct {
	Link        string
	LinkLocal   string
	LinkForeign string
	Foreign     string
	LocalValue  interface{}
	Conditions  []entities.Condition
	Order       entities.Order
}

// RecordRepository defines the query execution contract the relationship engine relies on.
// Lookups that find nothing return a nil record (or an empty slice) and no error.
type RecordRepository interface {
	// GetByID retrieves a record by primary key
	GetByID(ctx context.Context, class string, id interface{}) (*entities.Record, error)

	// GetByField retrieves the first record whose field equals value
	GetByField(ctx context.Context, class string, field string, value interface{}) (*entities.Record, error)

	// GetByHandle retrieves a record by its unique handle
	GetByHandle(ctx context.Context, class string, handle string) (*entities.Record, error)

	// GetByWhere retrieves the first record matching all conditions
	GetByWhere(ctx context.Context, class string, where []entities.Condition, opts *QueryOptions) (*entities.Record, error)

	// GetAllByWhere retrieves every record matching all conditions
	GetAllByWhere(ctx context.Context, class string, where []entities.Condition, opts *QueryOptions) ([]*entities.Record, error)

	// GetAllByQuery retrieves target records joined through a link class
	GetAllByQuery(ctx context.Context, class string, query *LinkQuery) ([]*entities.Record, error)

	// Save inserts a phantom record (assigning its ID) or updates the dirty fields of a persisted one
	Save(ctx context.Context, rec *entities.Record) error
}
