package relations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/asakaida/kankei/internal/entities"
)

const (
	phasePre  = "pre"
	phasePost = "post"
)

// Persister cascades saves from a record to the related records loaded on it.
// Only relationships with a cached value take part; nothing is fetched to be saved.
type Persister struct {
	*base
}

// visited holds the records already handled by one cascade
type visited map[*entities.Record]bool

// Save runs the pre-save cascade, saves rec when it is new or dirty, then runs
// the post-save cascade. Records reachable more than once are saved once.
func (p *Persister) Save(ctx context.Context, rec *entities.Record) error {
	ctx, span := p.tracer.Start(ctx, "relations.Save", trace.WithAttributes(
		attribute.String("kankei.class", rec.ClassName()),
	))
	defer span.End()

	if err := p.save(ctx, rec, visited{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SaveRelationships saves the related records the owner's own row depends on.
// Call it before saving rec itself.
func (p *Persister) SaveRelationships(ctx context.Context, rec *entities.Record) error {
	return p.pre(ctx, rec, visited{rec: true})
}

// PostSaveRelationships saves the related records that depend on the owner's
// primary key. Call it after saving rec itself.
func (p *Persister) PostSaveRelationships(ctx context.Context, rec *entities.Record) error {
	return p.post(ctx, rec, visited{rec: true})
}

func (p *Persister) save(ctx context.Context, rec *entities.Record, seen visited) error {
	if seen[rec] {
		return nil
	}
	seen[rec] = true

	if err := p.pre(ctx, rec, seen); err != nil {
		return err
	}

	if rec.IsNew() || rec.IsDirty() {
		isNew := rec.IsNew()
		if err := p.records.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save %s: %w", rec.ClassName(), err)
		}
		p.logger.Debug("saved record",
			zap.String("class", rec.ClassName()),
			zap.Any("id", rec.ID()),
			zap.Bool("inserted", isNew),
		)
		if err := p.writeRevision(ctx, rec); err != nil {
			return err
		}
	}

	return p.post(ctx, rec, seen)
}

// writeRevision snapshots rec when its class keeps a history
func (p *Persister) writeRevision(ctx context.Context, rec *entities.Record) error {
	if p.revisions == nil {
		return nil
	}
	set, err := p.schema.Relationships(rec.ClassName())
	if err != nil {
		return err
	}
	for _, rel := range set.All() {
		if rel.Kind() != entities.History {
			continue
		}
		if err := p.revisions.WriteRevision(ctx, rec); err != nil {
			return fmt.Errorf("failed to write revision of %s: %w", rec.ClassName(), err)
		}
		return nil
	}
	return nil
}

func (p *Persister) pre(ctx context.Context, rec *entities.Record, seen visited) error {
	set, err := p.schema.Relationships(rec.ClassName())
	if err != nil {
		return err
	}

	for _, rel := range set.All() {
		cached, ok := rec.Cached(rel.RelationName())
		if !ok {
			continue
		}

		switch rel := rel.(type) {
		case *entities.OneToOneRelationship:
			if rel.Local == entities.PrimaryKey || cached.Record == nil {
				continue
			}
			if err := p.cascade(ctx, rec, rel.Name, cached.Record, phasePre, seen); err != nil {
				return err
			}
			p.copyKeys(rec, rel.Name, cached, map[string]interface{}{
				rel.Local: cached.Record.Get(rel.Foreign),
			})

		case *entities.OneToManyRelationship:
			if rel.Local == entities.PrimaryKey {
				continue
			}
			local := rec.Get(rel.Local)
			for _, member := range cached.All() {
				member.Set(rel.Foreign, local)
				if err := p.cascade(ctx, rec, rel.Name, member, phasePre, seen); err != nil {
					return err
				}
			}

		case *entities.ContextParentRelationship:
			if cached.Record == nil {
				continue
			}
			if err := p.cascade(ctx, rec, rel.Name, cached.Record, phasePre, seen); err != nil {
				return err
			}
			p.copyKeys(rec, rel.Name, cached, map[string]interface{}{
				rel.ClassField: p.rootClass(cached.Record.ClassName()),
				rel.Local:      cached.Record.Get(rel.Foreign),
			})
		}
	}
	return nil
}

func (p *Persister) post(ctx context.Context, rec *entities.Record, seen visited) error {
	set, err := p.schema.Relationships(rec.ClassName())
	if err != nil {
		return err
	}

	for _, rel := range set.All() {
		cached, ok := rec.Cached(rel.RelationName())
		if !ok {
			continue
		}

		switch rel := rel.(type) {
		case *entities.OneToOneRelationship:
			if rel.Local != entities.PrimaryKey || cached.Record == nil {
				continue
			}
			cached.Record.Set(rel.Foreign, rec.ID())
			if err := p.cascade(ctx, rec, rel.Name, cached.Record, phasePost, seen); err != nil {
				return err
			}

		case *entities.OneToManyRelationship:
			if rel.Local != entities.PrimaryKey {
				continue
			}
			for _, member := range cached.All() {
				member.Set(rel.Foreign, rec.ID())
				if err := p.cascade(ctx, rec, rel.Name, member, phasePost, seen); err != nil {
					return err
				}
			}

		case *entities.ContextChildrenRelationship:
			local := rec.Get(rel.Local)
			for _, child := range cached.All() {
				child.Set(entities.ContextClassField, rel.ContextClass)
				child.Set(entities.ContextIDField, local)
				if err := p.cascade(ctx, rec, rel.Name, child, phasePost, seen); err != nil {
					return err
				}
			}

		case *entities.HandleRelationship:
			if cached.Record == nil {
				continue
			}
			cached.Record.Set(entities.ContextClassField, p.rootClass(rec.ClassName()))
			cached.Record.Set(entities.ContextIDField, rec.ID())
			if err := p.cascade(ctx, rec, rel.Name, cached.Record, phasePost, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascade saves a related record through its own cascade. Clean records are
// not written but their loaded relationships are still visited.
func (p *Persister) cascade(ctx context.Context, owner *entities.Record, name string, related *entities.Record, phase string, seen visited) error {
	if seen[related] {
		return nil
	}
	written := related.IsNew() || related.IsDirty()

	if err := p.save(ctx, related, seen); err != nil {
		return fmt.Errorf("failed to save %s.%s: %w", owner.ClassName(), name, err)
	}
	if !written {
		return nil
	}

	p.metrics.RecordCascadeSave(phase)
	p.logger.Debug("cascaded save",
		zap.String("class", owner.ClassName()),
		zap.String("relationship", name),
		zap.String("phase", phase),
		zap.String("related_class", related.ClassName()),
	)
	return nil
}

// copyKeys writes key values onto the owner and restores the cached value the
// invalidation hooks drop
func (p *Persister) copyKeys(rec *entities.Record, name string, cached entities.Related, keys map[string]interface{}) {
	for field, value := range keys {
		rec.Set(field, value)
	}
	rec.CacheRelated(name, cached)
}
