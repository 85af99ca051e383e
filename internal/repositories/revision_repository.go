package repositories

import (
	"context"

	"github.com/asakaida/kankei/internal/entities"
)

const (
	// RevisionIDField and RevisionDateField are added to every revision snapshot
	RevisionIDField   = "RevisionID"
	RevisionDateField = "RevisionDate"
)

// RevisionRepository defines the versioning contract behind History relationships
type RevisionRepository interface {
	// GetRevisionsByID returns stored snapshots of the record (class, id) as records
	// of rel.Target, honouring the relationship's conditions and order
	GetRevisionsByID(ctx context.Context, class string, id interface{}, rel *entities.HistoryRelationship) ([]*entities.Record, error)

	// WriteRevision stores a snapshot of the record's current field values
	WriteRevision(ctx context.Context, rec *entities.Record) error
}
