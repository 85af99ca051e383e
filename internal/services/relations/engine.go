package relations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// TracerName is the instrumentation name of the engine's spans
const TracerName = "github.com/asakaida/kankei/internal/services/relations"

// Schema is the class catalog together with its relationship registry
type Schema interface {
	Catalog

	// Relationships returns the merged, normalized relationships of class
	Relationships(class string) (*entities.RelationshipSet, error)

	// Relationship returns one normalized relationship of class
	Relationship(class, name string) (entities.Relationship, error)
}

// Recorder receives engine metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordResolution(kind string, durationSeconds float64)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordCascadeSave(phase string)
	RecordError(operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(string, float64) {}
func (nopRecorder) RecordCacheHit(string)            {}
func (nopRecorder) RecordCacheMiss(string)           {}
func (nopRecorder) RecordCascadeSave(string)         {}
func (nopRecorder) RecordError(string)               {}

// Option configures an Engine
type Option func(*base)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder Recorder) Option {
	return func(b *base) {
		if recorder != nil {
			b.metrics = recorder
		}
	}
}

// WithTracer sets the tracer. The default uses the global tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *base) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithConditionEngine shares a condition engine, and with it its program cache
func WithConditionEngine(conditions *ConditionEngine) Option {
	return func(b *base) {
		if conditions != nil {
			b.conditions = conditions
		}
	}
}

// base holds the collaborators shared by resolver, mutator and persister
type base struct {
	schema     Schema
	records    repositories.RecordRepository
	revisions  repositories.RevisionRepository
	conditions *ConditionEngine
	logger     *zap.Logger
	metrics    Recorder
	tracer     trace.Tracer
}

func (b *base) relationship(rec *entities.Record, name string) (entities.Relationship, error) {
	rel, err := b.schema.Relationship(rec.ClassName(), name)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// rootClass returns the root of class, or class itself when it is unknown
func (b *base) rootClass(class string) string {
	root, err := b.schema.RootClass(class)
	if err != nil || root == "" {
		return class
	}
	return root
}

// watch invalidates the cached value of rel when a field it depends on changes.
// Both resolution and assignment register it after caching.
func (b *base) watch(rec *entities.Record, rel entities.Relationship) {
	name := rel.RelationName()
	for _, field := range entities.DependentFields(rel) {
		if field == "" {
			continue
		}
		rec.OnFieldChange(field, hookKey(name), func() {
			rec.Invalidate(name)
		})
	}
}

func hookKey(name string) string {
	return "relation:" + name
}

// Engine resolves, mutates and persists relationships of records.
// An Engine is safe for concurrent use; the records passed to it are not.
type Engine struct {
	*base
	resolver  *Resolver
	mutator   *Mutator
	persister *Persister
}

// NewEngine creates an engine. revisions may be nil when no class declares a
// History relationship.
func NewEngine(schema Schema, records repositories.RecordRepository, revisions repositories.RevisionRepository, opts ...Option) (*Engine, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}

	b := &base{
		schema:    schema,
		records:   records,
		revisions: revisions,
		logger:    zap.NewNop(),
		metrics:   nopRecorder{},
		tracer:    otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.conditions == nil {
		conditions, err := NewConditionEngine(nil)
		if err != nil {
			return nil, err
		}
		b.conditions = conditions
	}

	resolver := &Resolver{base: b}
	return &Engine{
		base:      b,
		resolver:  resolver,
		mutator:   &Mutator{base: b, resolver: resolver},
		persister: &Persister{base: b},
	}, nil
}

// Conditions returns the condition engine used for expression conditions
func (e *Engine) Conditions() *ConditionEngine {
	return e.conditions
}

// Get returns the value of relationship name of owner, resolving it on first access
func (e *Engine) Get(ctx context.Context, owner entities.Persistable, name string) (entities.Related, error) {
	rec, err := entity(owner)
	if err != nil {
		return entities.Related{}, err
	}
	related, err := e.resolver.Get(ctx, rec, name)
	if err != nil {
		e.metrics.RecordError("get")
	}
	return related, err
}

// GetOne returns the single related record, nil when absent
func (e *Engine) GetOne(ctx context.Context, owner entities.Persistable, name string) (*entities.Record, error) {
	related, err := e.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if related.Record != nil {
		return related.Record, nil
	}
	if len(related.Records) > 0 {
		return related.Records[0], nil
	}
	return nil, nil
}

// GetMany returns every related record in resolution order
func (e *Engine) GetMany(ctx context.Context, owner entities.Persistable, name string) ([]*entities.Record, error) {
	related, err := e.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	return related.All(), nil
}

// Set assigns relationship name of owner
func (e *Engine) Set(owner entities.Persistable, name string, value interface{}) error {
	rec, err := entity(owner)
	if err != nil {
		return err
	}
	if err := e.mutator.Set(rec, name, value); err != nil {
		e.metrics.RecordError("set")
		return err
	}
	return nil
}

// Append adds values to a one-to-many relationship of owner
func (e *Engine) Append(ctx context.Context, owner entities.Persistable, name string, values ...interface{}) error {
	rec, err := entity(owner)
	if err != nil {
		return err
	}
	if err := e.mutator.Append(ctx, rec, name, values...); err != nil {
		e.metrics.RecordError("append")
		return err
	}
	return nil
}

// SaveRelationships runs the pre-save cascade of owner
func (e *Engine) SaveRelationships(ctx context.Context, owner entities.Persistable) error {
	rec, err := entity(owner)
	if err != nil {
		return err
	}
	if err := e.persister.SaveRelationships(ctx, rec); err != nil {
		e.metrics.RecordError("save")
		return err
	}
	return nil
}

// PostSaveRelationships runs the post-save cascade of owner
func (e *Engine) PostSaveRelationships(ctx context.Context, owner entities.Persistable) error {
	rec, err := entity(owner)
	if err != nil {
		return err
	}
	if err := e.persister.PostSaveRelationships(ctx, rec); err != nil {
		e.metrics.RecordError("save")
		return err
	}
	return nil
}

// Save persists owner together with its loaded relationships
func (e *Engine) Save(ctx context.Context, owner entities.Persistable) error {
	rec, err := entity(owner)
	if err != nil {
		return err
	}
	if err := e.persister.Save(ctx, rec); err != nil {
		e.metrics.RecordError("save")
		return err
	}
	return nil
}

func entity(p entities.Persistable) (*entities.Record, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: record is nil", entities.ErrTypeMismatch)
	}
	rec := p.Entity()
	if rec == nil {
		return nil, fmt.Errorf("%w: record is nil", entities.ErrTypeMismatch)
	}
	return rec, nil
}
