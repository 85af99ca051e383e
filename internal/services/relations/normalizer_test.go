package relations_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
	"github.com/asakaida/kankei/internal/services"
	"github.com/asakaida/kankei/internal/services/relations"
)

func newNormalizer(t *testing.T) (*relations.Normalizer, *services.SchemaService) {
	t.Helper()
	conditions, err := relations.NewConditionEngine(nil)
	require.NoError(t, err)

	schema := services.NewSchemaService(conditions)
	require.NoError(t, schema.LoadDocument([]*entities.Class{
		{Name: "Thread", AllowedContexts: []string{"Forum"}},
		{Name: "StickyThread", Parent: "Thread"},
		{Name: "Post", Fields: []string{"ThreadID"}},
		{Name: "Group"},
		{Name: "AdminGroup", Parent: "Group"},
	}))
	return relations.NewNormalizer(schema, conditions), schema
}

func TestNormalizer_Defaults(t *testing.T) {
	n, schema := newNormalizer(t)
	thread, err := schema.Class("Thread")
	require.NoError(t, err)
	sticky, err := schema.Class("StickyThread")
	require.NoError(t, err)

	tests := []struct {
		name  string
		owner *entities.Class
		rel   string
		decl  *entities.Declaration
		want  entities.Relationship
	}{
		{
			name:  "bare target is a one to one",
			owner: thread,
			rel:   "Author",
			decl:  entities.Target("User"),
			want:  &entities.OneToOneRelationship{Name: "Author", Target: "User", Local: "AuthorID", Foreign: "ID"},
		},
		{
			name:  "zero kind defaults to one to one",
			owner: thread,
			rel:   "Forum",
			decl:  &entities.Declaration{Target: "Forum"},
			want:  &entities.OneToOneRelationship{Name: "Forum", Target: "Forum", Local: "ForumID", Foreign: "ID"},
		},
		{
			name:  "one to many keys off the owner root",
			owner: sticky,
			rel:   "Posts",
			decl:  &entities.Declaration{Kind: entities.OneToMany, Target: "Post"},
			want:  &entities.OneToManyRelationship{Name: "Posts", Target: "Post", Local: "ID", Foreign: "ThreadID"},
		},
		{
			name:  "one to many keeps explicit options",
			owner: thread,
			rel:   "Posts",
			decl: &entities.Declaration{
				Kind:       entities.OneToMany,
				Target:     "Post",
				Foreign:    "TopicID",
				Conditions: []entities.Condition{entities.Eq("Visible", true)},
				Order:      entities.Order{{Field: "ID", Desc: true}},
				IndexField: "Slug",
			},
			want: &entities.OneToManyRelationship{
				Name:       "Posts",
				Target:     "Post",
				Local:      "ID",
				Foreign:    "TopicID",
				Conditions: []entities.Condition{entities.Eq("Visible", true)},
				Order:      entities.Order{{Field: "ID", Desc: true}},
				IndexField: "Slug",
			},
		},
		{
			name:  "many to many link keys use both roots",
			owner: sticky,
			rel:   "Groups",
			decl:  &entities.Declaration{Kind: entities.ManyToMany, Target: "AdminGroup", Link: "ThreadGroup"},
			want: &entities.ManyToManyRelationship{
				Name:        "Groups",
				Target:      "AdminGroup",
				Link:        "ThreadGroup",
				Local:       "ID",
				Foreign:     "ID",
				LinkLocal:   "ThreadID",
				LinkForeign: "GroupID",
			},
		},
		{
			name:  "many to many with unregistered target falls back to its name",
			owner: thread,
			rel:   "Tags",
			decl:  &entities.Declaration{Kind: entities.ManyToMany, Target: "Tag", Link: "ThreadTag"},
			want: &entities.ManyToManyRelationship{
				Name:        "Tags",
				Target:      "Tag",
				Link:        "ThreadTag",
				Local:       "ID",
				Foreign:     "ID",
				LinkLocal:   "ThreadID",
				LinkForeign: "TagID",
			},
		},
		{
			name:  "context children tag with the root class",
			owner: sticky,
			rel:   "Comments",
			decl:  &entities.Declaration{Kind: entities.ContextChildren, Target: "Comment"},
			want:  &entities.ContextChildrenRelationship{Name: "Comments", Target: "Comment", Local: "ID", ContextClass: "Thread"},
		},
		{
			name:  "context child orders by descending ID",
			owner: thread,
			rel:   "LatestComment",
			decl:  &entities.Declaration{Kind: entities.ContextChild, Target: "Comment"},
			want: &entities.ContextChildrenRelationship{
				Name:         "LatestComment",
				Target:       "Comment",
				Local:        "ID",
				ContextClass: "Thread",
				Order:        entities.Order{{Field: "ID", Desc: true}},
				Single:       true,
			},
		},
		{
			name:  "context parent inherits allowed contexts",
			owner: sticky,
			rel:   "Context",
			decl:  &entities.Declaration{Kind: entities.ContextParent},
			want: &entities.ContextParentRelationship{
				Name:           "Context",
				Local:          "ContextID",
				Foreign:        "ID",
				ClassField:     "ContextClass",
				AllowedClasses: []string{"Forum"},
			},
		},
		{
			name:  "handle targets the built-in class",
			owner: thread,
			rel:   "HandleRecord",
			decl:  &entities.Declaration{Kind: entities.Handle},
			want:  &entities.HandleRelationship{Name: "HandleRecord", Target: entities.HandleClass, Local: "Handle"},
		},
		{
			name:  "history targets the owner",
			owner: sticky,
			rel:   "Revisions",
			decl:  &entities.Declaration{Kind: entities.History},
			want: &entities.HistoryRelationship{
				Name:   "Revisions",
				Target: "StickyThread",
				Local:  "ID",
				Order:  entities.Order{{Field: repositories.RevisionDateField, Desc: true}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.owner, tt.rel, tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// Normalizing again yields an identical definition
			again, err := n.Normalize(tt.owner, tt.rel, tt.decl)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestNormalizer_DoesNotAliasDeclaration(t *testing.T) {
	n, schema := newNormalizer(t)
	thread, err := schema.Class("Thread")
	require.NoError(t, err)

	decl := &entities.Declaration{
		Kind:       entities.OneToMany,
		Target:     "Post",
		Conditions: []entities.Condition{entities.Eq("Visible", true)},
	}
	got, err := n.Normalize(thread, "Posts", decl)
	require.NoError(t, err)

	decl.Conditions[0].Value = false
	decl.Target = "Other"
	rel := got.(*entities.OneToManyRelationship)
	assert.Equal(t, "Post", rel.Target)
	assert.Equal(t, true, rel.Conditions[0].Value)
}

func TestNormalizer_ConfigurationErrors(t *testing.T) {
	n, schema := newNormalizer(t)
	thread, err := schema.Class("Thread")
	require.NoError(t, err)

	tests := []struct {
		name string
		rel  string
		decl *entities.Declaration
	}{
		{name: "empty name", rel: "", decl: entities.Target("User")},
		{name: "nil declaration", rel: "Author", decl: nil},
		{name: "one to one without target", rel: "Author", decl: &entities.Declaration{Kind: entities.OneToOne}},
		{name: "one to many without target", rel: "Posts", decl: &entities.Declaration{Kind: entities.OneToMany}},
		{name: "many to many without target", rel: "Groups", decl: &entities.Declaration{Kind: entities.ManyToMany, Link: "UserGroup"}},
		{name: "many to many without link", rel: "Groups", decl: &entities.Declaration{Kind: entities.ManyToMany, Target: "Group"}},
		{name: "context children without target", rel: "Comments", decl: &entities.Declaration{Kind: entities.ContextChildren}},
		{name: "unknown kind", rel: "Odd", decl: &entities.Declaration{Kind: entities.Kind(99), Target: "Post"}},
		{name: "link on a one to many", rel: "Posts", decl: &entities.Declaration{Kind: entities.OneToMany, Target: "Post", Link: "X"}},
		{name: "conditions on a one to one", rel: "Author", decl: &entities.Declaration{Target: "User", Conditions: []entities.Condition{entities.Eq("A", 1)}}},
		{name: "index field on context children", rel: "Comments", decl: &entities.Declaration{Kind: entities.ContextChildren, Target: "Comment", IndexField: "ID"}},
		{name: "malformed condition", rel: "Posts", decl: &entities.Declaration{Kind: entities.OneToMany, Target: "Post", Conditions: []entities.Condition{{Op: entities.OpEq}}}},
		{name: "non boolean expression", rel: "Posts", decl: &entities.Declaration{Kind: entities.OneToMany, Target: "Post", Conditions: []entities.Condition{entities.Expr(`"text"`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(thread, tt.rel, tt.decl)
			require.Error(t, err)
			assert.True(t, errors.Is(err, entities.ErrConfiguration), "expected configuration error, got %v", err)

			var relErr *entities.RelationError
			require.True(t, errors.As(err, &relErr))
			assert.Equal(t, "Thread", relErr.Class)
			assert.Equal(t, tt.rel, relErr.Relation)
		})
	}
}
