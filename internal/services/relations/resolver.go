package relations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// Resolver computes relationship values and caches them on the owning record
type Resolver struct {
	*base
}

// Get returns the cached value of relationship name, resolving it on a miss.
// A resolved absent value is cached like any other.
func (r *Resolver) Get(ctx context.Context, rec *entities.Record, name string) (entities.Related, error) {
	rel, err := r.relationship(rec, name)
	if err != nil {
		return entities.Related{}, err
	}
	kind := rel.Kind().String()

	if related, ok := rec.Cached(name); ok {
		r.metrics.RecordCacheHit(kind)
		return related, nil
	}
	r.metrics.RecordCacheMiss(kind)

	ctx, span := r.tracer.Start(ctx, "relations.Resolve", trace.WithAttributes(
		attribute.String("kankei.class", rec.ClassName()),
		attribute.String("kankei.relationship", name),
		attribute.String("kankei.kind", kind),
	))
	defer span.End()

	start := time.Now()
	related, err := r.resolve(ctx, rec, rel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entities.Related{}, fmt.Errorf("failed to resolve %s.%s: %w", rec.ClassName(), name, err)
	}
	r.metrics.RecordResolution(kind, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("kankei.related_count", len(related.All())))

	rec.CacheRelated(name, related)
	r.watch(rec, rel)

	r.logger.Debug("resolved relationship",
		zap.String("class", rec.ClassName()),
		zap.String("relationship", name),
		zap.String("kind", kind),
		zap.Int("count", len(related.All())),
	)
	return related, nil
}

func (r *Resolver) resolve(ctx context.Context, rec *entities.Record, rel entities.Relationship) (entities.Related, error) {
	switch rel := rel.(type) {
	case *entities.OneToOneRelationship:
		return r.resolveOneToOne(ctx, rec, rel)
	case *entities.OneToManyRelationship:
		return r.resolveOneToMany(ctx, rec, rel)
	case *entities.ManyToManyRelationship:
		return r.resolveManyToMany(ctx, rec, rel)
	case *entities.ContextChildrenRelationship:
		return r.resolveContextChildren(ctx, rec, rel)
	case *entities.ContextParentRelationship:
		return r.resolveContextParent(ctx, rec, rel)
	case *entities.HandleRelationship:
		return r.resolveHandle(ctx, rec, rel)
	case *entities.HistoryRelationship:
		return r.resolveHistory(ctx, rec, rel)
	}
	return entities.Related{}, fmt.Errorf("%w: unknown relationship type %T", entities.ErrConfiguration, rel)
}

func (r *Resolver) resolveOneToOne(ctx context.Context, rec *entities.Record, rel *entities.OneToOneRelationship) (entities.Related, error) {
	local := rec.Get(rel.Local)
	if entities.IsZeroKey(local) {
		return entities.One(nil), nil
	}
	target, err := r.lookup(ctx, rel.Target, rel.Foreign, local)
	if err != nil {
		return entities.Related{}, err
	}
	return entities.One(target), nil
}

func (r *Resolver) resolveOneToMany(ctx context.Context, rec *entities.Record, rel *entities.OneToManyRelationship) (entities.Related, error) {
	local := rec.Get(rel.Local)
	if entities.IsZeroKey(local) {
		return entities.Many(nil), nil
	}

	where := append([]entities.Condition{entities.Eq(rel.Foreign, local)}, FieldConditions(rel.Conditions)...)
	recs, err := r.records.GetAllByWhere(ctx, rel.Target, where, &repositories.QueryOptions{Order: rel.Order})
	if err != nil {
		return entities.Related{}, err
	}
	if recs, err = r.conditions.Filter(recs, rel.Conditions); err != nil {
		return entities.Related{}, err
	}
	return r.collection(recs, rel.Target, rel.IndexField), nil
}

func (r *Resolver) resolveManyToMany(ctx context.Context, rec *entities.Record, rel *entities.ManyToManyRelationship) (entities.Related, error) {
	local := rec.Get(rel.Local)
	if entities.IsZeroKey(local) {
		return entities.Many(nil), nil
	}

	recs, err := r.records.GetAllByQuery(ctx, rel.Target, &repositories.LinkQuery{
		Link:        rel.Link,
		LinkLocal:   rel.LinkLocal,
		LinkForeign: rel.LinkForeign,
		Foreign:     rel.Foreign,
		LocalValue:  local,
		Conditions:  FieldConditions(rel.Conditions),
		Order:       rel.Order,
	})
	if err != nil {
		return entities.Related{}, err
	}
	if recs, err = r.conditions.Filter(recs, rel.Conditions); err != nil {
		return entities.Related{}, err
	}
	return r.collection(recs, rel.Target, rel.IndexField), nil
}

func (r *Resolver) resolveContextChildren(ctx context.Context, rec *entities.Record, rel *entities.ContextChildrenRelationship) (entities.Related, error) {
	local := rec.Get(rel.Local)
	if entities.IsZeroKey(local) {
		if rel.Single {
			return entities.One(nil), nil
		}
		return entities.Many(nil), nil
	}

	where := append([]entities.Condition{
		entities.Eq(entities.ContextClassField, rel.ContextClass),
		entities.Eq(entities.ContextIDField, local),
	}, FieldConditions(rel.Conditions)...)
	opts := &repositories.QueryOptions{Order: rel.Order}

	// Without expression conditions the first match can be fetched directly
	if rel.Single && len(Expressions(rel.Conditions)) == 0 {
		target, err := r.records.GetByWhere(ctx, rel.Target, where, opts)
		if err != nil {
			return entities.Related{}, err
		}
		return entities.One(target), nil
	}

	recs, err := r.records.GetAllByWhere(ctx, rel.Target, where, opts)
	if err != nil {
		return entities.Related{}, err
	}
	if recs, err = r.conditions.Filter(recs, rel.Conditions); err != nil {
		return entities.Related{}, err
	}
	if rel.Single {
		if len(recs) == 0 {
			return entities.One(nil), nil
		}
		return entities.One(recs[0]), nil
	}
	return entities.Many(recs), nil
}

func (r *Resolver) resolveContextParent(ctx context.Context, rec *entities.Record, rel *entities.ContextParentRelationship) (entities.Related, error) {
	class, _ := rec.Get(rel.ClassField).(string)
	local := rec.Get(rel.Local)
	if class == "" || entities.IsZeroKey(local) {
		return entities.One(nil), nil
	}
	target, err := r.lookup(ctx, class, rel.Foreign, local)
	if err != nil {
		return entities.Related{}, err
	}
	return entities.One(target), nil
}

func (r *Resolver) resolveHandle(ctx context.Context, rec *entities.Record, rel *entities.HandleRelationship) (entities.Related, error) {
	handle := rec.Get(rel.Local)
	if entities.IsZeroKey(handle) {
		return entities.One(nil), nil
	}
	target, err := r.records.GetByHandle(ctx, rel.Target, entities.KeyString(handle))
	if err != nil {
		return entities.Related{}, err
	}
	return entities.One(target), nil
}

func (r *Resolver) resolveHistory(ctx context.Context, rec *entities.Record, rel *entities.HistoryRelationship) (entities.Related, error) {
	if r.revisions == nil {
		return entities.Related{}, fmt.Errorf("%w: no revision repository configured", entities.ErrUnsupportedOperation)
	}
	id := rec.Get(rel.Local)
	if entities.IsZeroKey(id) {
		return entities.Many(nil), nil
	}

	// The repository only sees field conditions; expressions are applied here
	pushed := *rel
	pushed.Conditions = FieldConditions(rel.Conditions)
	recs, err := r.revisions.GetRevisionsByID(ctx, rec.ClassName(), id, &pushed)
	if err != nil {
		return entities.Related{}, err
	}
	if recs, err = r.conditions.Filter(recs, rel.Conditions); err != nil {
		return entities.Related{}, err
	}
	return entities.Many(recs), nil
}

// lookup fetches a single record by field, using the primary key path when possible
func (r *Resolver) lookup(ctx context.Context, class, field string, value interface{}) (*entities.Record, error) {
	if field == entities.PrimaryKey {
		return r.records.GetByID(ctx, class, value)
	}
	return r.records.GetByField(ctx, class, field, value)
}

// collection keys recs by indexField when the target declares it
func (r *Resolver) collection(recs []*entities.Record, target, indexField string) entities.Related {
	if indexField == "" {
		return entities.Many(recs)
	}
	if !r.schema.FieldExists(target, indexField) {
		r.logger.Warn("index field not declared on target, returning an ordered collection",
			zap.String("target", target),
			zap.String("index_field", indexField),
		)
		return entities.Many(recs)
	}
	return entities.Indexed(recs, indexField)
}
