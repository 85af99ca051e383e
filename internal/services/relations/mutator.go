package relations

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asakaida/kankei/internal/entities"
)

// Mutator assigns relationship values and keeps the key fields on both sides in step
type Mutator struct {
	*base
	resolver *Resolver
}

// Set assigns value to relationship name of rec.
//
// Single-valued kinds accept nil or a Persistable of the target class. OneToMany
// accepts a Persistable or a slice of them; members of the wrong class are dropped.
// Every other kind is resolve-only and fails with ErrUnsupportedOperation.
func (m *Mutator) Set(rec *entities.Record, name string, value interface{}) error {
	rel, err := m.relationship(rec, name)
	if err != nil {
		return err
	}

	switch rel := rel.(type) {
	case *entities.OneToOneRelationship:
		return m.setSingle(rec, rel, rel.Target, rel.Local, rel.Foreign, value)
	case *entities.HandleRelationship:
		return m.setSingle(rec, rel, rel.Target, rel.Local, entities.HandleField, value)
	case *entities.ContextParentRelationship:
		return m.setParent(rec, rel, value)
	case *entities.OneToManyRelationship:
		targets, ok := candidates(value)
		if !ok {
			return entities.NewRelationError(rec.ClassName(), name, entities.ErrTypeMismatch,
				"cannot assign %T to a %s relationship", value, rel.Kind())
		}
		kept := m.accept(rec, rel, targets)
		m.stamp(rec, rel, kept)
		rec.CacheRelated(name, m.resolver.collection(kept, rel.Target, rel.IndexField))
		m.watch(rec, rel)
		rec.MarkDirty()
		return nil
	}

	return entities.NewRelationError(rec.ClassName(), name, entities.ErrUnsupportedOperation,
		"%s relationships cannot be assigned", rel.Kind())
}

// Append adds values to a OneToMany relationship. The current value is resolved
// first when it is not cached yet.
func (m *Mutator) Append(ctx context.Context, rec *entities.Record, name string, values ...interface{}) error {
	rel, err := m.relationship(rec, name)
	if err != nil {
		return err
	}
	many, ok := rel.(*entities.OneToManyRelationship)
	if !ok {
		return entities.NewRelationError(rec.ClassName(), name, entities.ErrUnsupportedOperation,
			"append is only supported by OneToMany relationships, not %s", rel.Kind())
	}

	var targets []interface{}
	for _, v := range values {
		members, ok := candidates(v)
		if !ok {
			return entities.NewRelationError(rec.ClassName(), name, entities.ErrTypeMismatch,
				"cannot append %T to a %s relationship", v, rel.Kind())
		}
		targets = append(targets, members...)
	}

	current, err := m.resolver.Get(ctx, rec, name)
	if err != nil {
		return err
	}

	kept := m.accept(rec, many, targets)
	m.stamp(rec, many, kept)

	indexField := ""
	if current.Index != nil {
		indexField = many.IndexField
	} else if len(current.Records) == 0 {
		// An empty collection has no layout yet, take the declared one
		rec.CacheRelated(name, m.resolver.collection(kept, many.Target, many.IndexField))
		m.watch(rec, many)
		rec.MarkDirty()
		return nil
	}
	rec.CacheRelated(name, current.Append(kept, indexField))
	m.watch(rec, many)
	rec.MarkDirty()
	return nil
}

func (m *Mutator) setSingle(rec *entities.Record, rel entities.Relationship, target, local, foreign string, value interface{}) error {
	name := rel.RelationName()
	if value == nil {
		if local != entities.PrimaryKey {
			rec.Set(local, nil)
		}
		rec.CacheRelated(name, entities.One(nil))
		m.watch(rec, rel)
		rec.MarkDirty()
		return nil
	}

	related, ok := asRecord(value)
	if !ok {
		return entities.NewRelationError(rec.ClassName(), name, entities.ErrTypeMismatch,
			"%T is not a persistable record", value)
	}
	if related == nil {
		return m.setSingle(rec, rel, target, local, foreign, nil)
	}
	if !m.schema.IsA(related.ClassName(), target) {
		return entities.NewRelationError(rec.ClassName(), name, entities.ErrTypeMismatch,
			"expected %s, got %s", target, related.ClassName())
	}

	// Setting the key fires the invalidation hook, so cache afterwards
	if local != entities.PrimaryKey {
		rec.Set(local, related.Get(foreign))
	}
	rec.CacheRelated(name, entities.One(related))
	m.watch(rec, rel)
	rec.MarkDirty()
	return nil
}

func (m *Mutator) setParent(rec *entities.Record, rel *entities.ContextParentRelationship, value interface{}) error {
	if value == nil {
		rec.Set(rel.ClassField, nil)
		rec.Set(rel.Local, nil)
		rec.CacheRelated(rel.Name, entities.One(nil))
		m.watch(rec, rel)
		rec.MarkDirty()
		return nil
	}

	parent, ok := asRecord(value)
	if !ok {
		return entities.NewRelationError(rec.ClassName(), rel.Name, entities.ErrTypeMismatch,
			"%T is not a persistable record", value)
	}
	if parent == nil {
		return m.setParent(rec, rel, nil)
	}
	if !m.allowsParent(rel, parent.ClassName()) {
		return entities.NewRelationError(rec.ClassName(), rel.Name, entities.ErrTypeMismatch,
			"%s is not an allowed context, expected one of %v", parent.ClassName(), rel.AllowedClasses)
	}

	rec.Set(rel.ClassField, m.rootClass(parent.ClassName()))
	rec.Set(rel.Local, parent.Get(rel.Foreign))
	rec.CacheRelated(rel.Name, entities.One(parent))
	m.watch(rec, rel)
	rec.MarkDirty()
	return nil
}

func (m *Mutator) allowsParent(rel *entities.ContextParentRelationship, class string) bool {
	if rel.Allows(m.rootClass(class)) {
		return true
	}
	for _, allowed := range rel.AllowedClasses {
		if m.schema.IsA(class, allowed) {
			return true
		}
	}
	return false
}

// accept keeps the members that are records of the target class
func (m *Mutator) accept(rec *entities.Record, rel *entities.OneToManyRelationship, values []interface{}) []*entities.Record {
	kept := make([]*entities.Record, 0, len(values))
	for _, v := range values {
		target, ok := asRecord(v)
		if !ok || target == nil || !m.schema.IsA(target.ClassName(), rel.Target) {
			m.logger.Warn("dropping value not matching relationship target",
				zap.String("class", rec.ClassName()),
				zap.String("relationship", rel.Name),
				zap.String("target", rel.Target),
				zap.String("value_type", describe(v)),
			)
			continue
		}
		kept = append(kept, target)
	}
	return kept
}

// stamp copies the owner's local key into each member's foreign key
func (m *Mutator) stamp(rec *entities.Record, rel *entities.OneToManyRelationship, members []*entities.Record) {
	local := rec.Get(rel.Local)
	for _, member := range members {
		member.Set(rel.Foreign, local)
	}
}

// candidates flattens a OneToMany value into its members
func candidates(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case entities.Persistable:
		return []interface{}{v}, true
	case []*entities.Record:
		out := make([]interface{}, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out, true
	case []entities.Persistable:
		out := make([]interface{}, len(v))
		for i, p := range v {
			out[i] = p
		}
		return out, true
	case []interface{}:
		return v, true
	}
	return nil, false
}

func asRecord(value interface{}) (*entities.Record, bool) {
	p, ok := value.(entities.Persistable)
	if !ok {
		return nil, false
	}
	return p.Entity(), true
}

func describe(v interface{}) string {
	if rec, ok := asRecord(v); ok && rec != nil {
		return rec.ClassName()
	}
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
