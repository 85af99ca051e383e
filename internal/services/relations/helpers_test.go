package relations_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
	"github.com/asakaida/kankei/internal/repositories/memory"
	"github.com/asakaida/kankei/internal/services"
	"github.com/asakaida/kankei/internal/services/relations"
)

// call is one repository invocation seen by recordingRepository
type call struct {
	Method string
	Class  string
	Field  string
	Value  interface{}
	Where  []entities.Condition
	Query  *repositories.LinkQuery
}

// recordingRepository records every lookup before delegating to the memory store
type recordingRepository struct {
	*memory.Store

	mu    sync.Mutex
	calls []call
}

func (r *recordingRepository) record(c call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingRepository) Lookups() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.Method != "Save" {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingRepository) Saves() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.Method == "Save" {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recordingRepository) GetByID(ctx context.Context, class string, id interface{}) (*entities.Record, error) {
	r.record(call{Method: "GetByID", Class: class, Field: entities.PrimaryKey, Value: id})
	return r.Store.GetByID(ctx, class, id)
}

func (r *recordingRepository) GetByField(ctx context.Context, class string, field string, value interface{}) (*entities.Record, error) {
	r.record(call{Method: "GetByField", Class: class, Field: field, Value: value})
	return r.Store.GetByField(ctx, class, field, value)
}

func (r *recordingRepository) GetByHandle(ctx context.Context, class string, handle string) (*entities.Record, error) {
	r.record(call{Method: "GetByHandle", Class: class, Field: entities.HandleField, Value: handle})
	return r.Store.GetByHandle(ctx, class, handle)
}

func (r *recordingRepository) GetByWhere(ctx context.Context, class string, where []entities.Condition, opts *repositories.QueryOptions) (*entities.Record, error) {
	r.record(call{Method: "GetByWhere", Class: class, Where: where})
	return r.Store.GetByWhere(ctx, class, where, opts)
}

func (r *recordingRepository) GetAllByWhere(ctx context.Context, class string, where []entities.Condition, opts *repositories.QueryOptions) ([]*entities.Record, error) {
	r.record(call{Method: "GetAllByWhere", Class: class, Where: where})
	return r.Store.GetAllByWhere(ctx, class, where, opts)
}

func (r *recordingRepository) GetAllByQuery(ctx context.Context, class string, query *repositories.LinkQuery) ([]*entities.Record, error) {
	r.record(call{Method: "GetAllByQuery", Class: class, Query: query})
	return r.Store.GetAllByQuery(ctx, class, query)
}

func (r *recordingRepository) Save(ctx context.Context, rec *entities.Record) error {
	r.record(call{Method: "Save", Class: rec.ClassName(), Value: rec.ID()})
	return r.Store.Save(ctx, rec)
}

// forumClasses is the sample schema shared by the engine tests
func forumClasses() []*entities.Class {
	return []*entities.Class{
		{
			Name:   "Thread",
			Table:  "threads",
			Fields: []string{"Title", "Handle"},
			Relationships: []entities.NamedDeclaration{
				entities.Declare("Posts", &entities.Declaration{Kind: entities.OneToMany, Target: "Post"}),
				entities.Declare("PostsByTitle", &entities.Declaration{Kind: entities.OneToMany, Target: "Post", IndexField: "Title"}),
				entities.Declare("TopPosts", &entities.Declaration{
					Kind:   entities.OneToMany,
					Target: "Post",
					Conditions: []entities.Condition{
						entities.Where("Score", entities.OpGe, 5),
						entities.Expr(`record.Title != "spam"`),
					},
					Order: entities.Order{{Field: "Score", Desc: true}},
				}),
				entities.Declare("Comments", &entities.Declaration{Kind: entities.ContextChildren, Target: "Comment", Order: entities.Order{{Field: entities.PrimaryKey}}}),
				entities.Declare("LatestComment", &entities.Declaration{Kind: entities.ContextChild, Target: "Comment"}),
				entities.Declare("HandleRecord", &entities.Declaration{Kind: entities.Handle}),
				entities.Declare("Revisions", &entities.Declaration{Kind: entities.History}),
			},
		},
		{
			Name:   "Post",
			Table:  "posts",
			Fields: []string{"ThreadID", "Title", "Score"},
			Relationships: []entities.NamedDeclaration{
				entities.Declare("Thread", entities.Target("Thread")),
				entities.Declare("ThreadExplicit", &entities.Declaration{Kind: entities.OneToOne, Target: "Thread", Local: "ThreadID", Foreign: entities.PrimaryKey}),
				entities.Declare("Comments", &entities.Declaration{Kind: entities.ContextChildren, Target: "Comment"}),
			},
		},
		{
			Name:            "Comment",
			Table:           "comments",
			Fields:          []string{entities.ContextClassField, entities.ContextIDField, "Body"},
			AllowedContexts: []string{"Thread", "Post"},
			Relationships: []entities.NamedDeclaration{
				entities.Declare("Context", &entities.Declaration{Kind: entities.ContextParent}),
			},
		},
		{
			Name:   "User",
			Table:  "users",
			Fields: []string{"Name"},
			Relationships: []entities.NamedDeclaration{
				entities.Declare("Groups", &entities.Declaration{Kind: entities.ManyToMany, Target: "Group", Link: "UserGroup"}),
				entities.Declare("GroupsByName", &entities.Declaration{
					Kind:       entities.ManyToMany,
					Target:     "Group",
					Link:       "UserGroup",
					Order:      entities.Order{{Field: "Name"}},
					IndexField: "Name",
				}),
				entities.Declare("Profile", &entities.Declaration{Kind: entities.OneToOne, Target: "Profile", Local: entities.PrimaryKey, Foreign: "UserID"}),
			},
		},
		{Name: "Profile", Table: "profiles", Fields: []string{"UserID", "Bio"}},
		{Name: "Group", Table: "groups", Fields: []string{"Name"}},
		{Name: "UserGroup", Table: "user_groups", Fields: []string{"UserID", "GroupID"}},
	}
}

type fixture struct {
	schema *services.SchemaService
	store  *memory.Store
	repo   *recordingRepository
	engine *relations.Engine
}

func newFixture(t *testing.T, opts ...relations.Option) *fixture {
	t.Helper()

	conditions, err := relations.NewConditionEngine(nil)
	require.NoError(t, err)

	schema := services.NewSchemaService(conditions)
	require.NoError(t, schema.LoadDocument(forumClasses()))

	store := memory.NewStore(schema)
	repo := &recordingRepository{Store: store}

	opts = append([]relations.Option{relations.WithConditionEngine(conditions)}, opts...)
	engine, err := relations.NewEngine(schema, repo, store, opts...)
	require.NoError(t, err)

	return &fixture{
		schema: schema,
		store:  store,
		repo:   repo,
		engine: engine,
	}
}

func (f *fixture) class(t *testing.T, name string) *entities.Class {
	t.Helper()
	class, err := f.schema.Class(name)
	require.NoError(t, err)
	return class
}

// newRecord builds a phantom record with the given field values
func (f *fixture) newRecord(t *testing.T, class string, fields map[string]interface{}) *entities.Record {
	t.Helper()
	rec := entities.NewRecord(f.class(t, class))
	for k, v := range fields {
		rec.Set(k, v)
	}
	return rec
}

// insert stores a record directly, bypassing the engine and the call log
func (f *fixture) insert(t *testing.T, class string, fields map[string]interface{}) *entities.Record {
	t.Helper()
	rec := f.newRecord(t, class, fields)
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec
}

// load reads a fresh copy of a stored record
func (f *fixture) load(t *testing.T, class string, id interface{}) *entities.Record {
	t.Helper()
	rec, err := f.store.GetByID(context.Background(), class, id)
	require.NoError(t, err)
	require.NotNil(t, rec, "%s %v not found", class, id)
	return rec
}

func titles(recs []*entities.Record) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.Get("Title").(string)
	}
	return out
}
