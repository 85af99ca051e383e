package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// WriteRevision stores a JSON snapshot of the record in the revisions table
func (s *Store) WriteRevision(ctx context.Context, rec *entities.Record) error {
	if rec.IsNew() {
		return fmt.Errorf("cannot write a revision of an unsaved %s", rec.ClassName())
	}

	data, err := json.Marshal(rec.Fields())
	if err != nil {
		return fmt.Errorf("failed to marshal revision of %s: %w", rec.ClassName(), err)
	}

	q := &query{dialect: s.dialect}
	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (%s, %s, %s, %s, %s)",
		s.quote(RevisionsTable),
		s.quote("id"), s.quote("class"), s.quote("record_id"), s.quote("data"), s.quote("created_at"),
		q.bind(uuid.NewString()),
		q.bind(rec.ClassName()),
		q.bind(entities.KeyString(rec.ID())),
		q.bind(string(data)),
		q.bind(s.nowFn()),
	)
	if _, err := s.db.ExecContext(ctx, stmt, q.args...); err != nil {
		return fmt.Errorf("failed to write revision of %s: %w", rec.ClassName(), err)
	}
	return nil
}

// GetRevisionsByID returns the snapshots of one record as records of rel.Target.
// Field conditions and ordering are applied to the decoded snapshots.
func (s *Store) GetRevisionsByID(ctx context.Context, class string, id interface{}, rel *entities.HistoryRelationship) ([]*entities.Record, error) {
	target, err := s.classes.Class(rel.Target)
	if err != nil {
		return nil, err
	}

	q := &query{dialect: s.dialect}
	stmt := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = %s AND %s = %s ORDER BY %s, %s",
		s.quote("id"), s.quote("data"), s.quote("created_at"),
		s.quote(RevisionsTable),
		s.quote("class"), q.bind(class),
		s.quote("record_id"), q.bind(entities.KeyString(id)),
		s.quote("created_at"), s.quote("id"),
	)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions of %s: %w", class, err)
	}
	defer rows.Close()

	var snapshots []repositories.Row
	for rows.Next() {
		var (
			revisionID string
			data       interface{}
			createdAt  interface{}
		)
		if err := rows.Scan(&revisionID, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}

		row, err := decodeSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode revision %s: %w", revisionID, err)
		}
		date, err := asTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to decode revision %s: %w", revisionID, err)
		}
		row[repositories.RevisionIDField] = revisionID
		row[repositories.RevisionDateField] = date
		snapshots = append(snapshots, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revisions: %w", err)
	}

	snapshots, err = repositories.FilterRows(snapshots, rel.Conditions)
	if err != nil {
		return nil, err
	}
	repositories.SortRows(snapshots, rel.Order)

	out := make([]*entities.Record, len(snapshots))
	for i, row := range snapshots {
		out[i] = entities.LoadRecord(target, row)
	}
	return out, nil
}

// decodeSnapshot decodes JSON field values, keeping integers as int64
func decodeSnapshot(data interface{}) (repositories.Row, error) {
	var raw []byte
	switch v := data.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil, fmt.Errorf("unexpected snapshot type %T", data)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}

	row := make(repositories.Row, len(fields))
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				row[k] = i
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			row[k] = f
			continue
		}
		row[k] = v
	}
	return row, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func asTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case int64:
		return time.Unix(0, t).UTC(), nil
	case []byte:
		return asTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp %v", v)
}
