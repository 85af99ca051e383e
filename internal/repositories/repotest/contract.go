// Package repotest holds the behaviour every RecordRepository and
// RevisionRepository implementation must share, run against a fresh store.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/repositories"
)

// Store is a repository under test
type Store interface {
	repositories.RecordRepository
	repositories.RevisionRepository
	SetClock(now func() time.Time)
}

// ClassMap is a fixed ClassLookup
type ClassMap map[string]*entities.Class

// Class implements repositories.ClassLookup
func (m ClassMap) Class(name string) (*entities.Class, error) {
	if c, ok := m[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", entities.ErrUnknownClass, name)
}

// Classes returns the sample classes backed by Tables
func Classes() ClassMap {
	return ClassMap{
		"Post":              {Name: "Post", Table: "posts", Fields: []string{"ThreadID", "Title", "Score"}},
		"User":              {Name: "User", Table: "users", Fields: []string{"Name"}},
		"Group":             {Name: "Group", Table: "groups", Fields: []string{"Name"}},
		"UserGroup":         {Name: "UserGroup", Table: "user_groups", Fields: []string{"UserID", "GroupID"}},
		entities.HandleClass: entities.NewHandleClass(),
	}
}

// TableNames lists the tables the contract writes to, handles included
var TableNames = []string{"posts", "users", "groups", "user_groups", "handles", "revisions"}

// PostgresTables creates the sample tables on PostgreSQL
const PostgresTables = `
CREATE TABLE IF NOT EXISTS "posts" ("ID" BIGSERIAL PRIMARY KEY, "ThreadID" BIGINT, "Title" TEXT, "Score" BIGINT);
CREATE TABLE IF NOT EXISTS "users" ("ID" BIGSERIAL PRIMARY KEY, "Name" TEXT);
CREATE TABLE IF NOT EXISTS "groups" ("ID" BIGSERIAL PRIMARY KEY, "Name" TEXT);
CREATE TABLE IF NOT EXISTS "user_groups" ("ID" BIGSERIAL PRIMARY KEY, "UserID" BIGINT, "GroupID" BIGINT);
`

// SQLiteTables creates the sample tables on SQLite
const SQLiteTables = `
CREATE TABLE IF NOT EXISTS "posts" ("ID" INTEGER PRIMARY KEY AUTOINCREMENT, "ThreadID" INTEGER, "Title" TEXT, "Score" INTEGER);
CREATE TABLE IF NOT EXISTS "users" ("ID" INTEGER PRIMARY KEY AUTOINCREMENT, "Name" TEXT);
CREATE TABLE IF NOT EXISTS "groups" ("ID" INTEGER PRIMARY KEY AUTOINCREMENT, "Name" TEXT);
CREATE TABLE IF NOT EXISTS "user_groups" ("ID" INTEGER PRIMARY KEY AUTOINCREMENT, "UserID" INTEGER, "GroupID" INTEGER);
`

// Run exercises a store created by newStore. Each subtest gets its own store
// and may assume the tables are empty.
func Run(t *testing.T, newStore func(t *testing.T, classes repositories.ClassLookup) Store) {
	classes := Classes()
	ctx := context.Background()

	insert := func(t *testing.T, s Store, class string, fields map[string]interface{}) *entities.Record {
		t.Helper()
		rec := entities.NewRecord(classes[class])
		for k, v := range fields {
			rec.Set(k, v)
		}
		require.NoError(t, s.Save(ctx, rec))
		return rec
	}

	titles := func(recs []*entities.Record) []string {
		out := make([]string, len(recs))
		for i, rec := range recs {
			out[i], _ = rec.Get("Title").(string)
		}
		return out
	}

	t.Run("正常系: 保存でIDが採番される", func(t *testing.T) {
		s := newStore(t, classes)

		first := insert(t, s, "Post", map[string]interface{}{"Title": "a"})
		second := insert(t, s, "Post", map[string]interface{}{"Title": "b"})

		firstID, ok := entities.AsInt64(first.ID())
		require.True(t, ok, "ID should be an integer, got %T", first.ID())
		secondID, _ := entities.AsInt64(second.ID())
		assert.Greater(t, secondID, firstID)
		assert.False(t, first.IsNew())
		assert.False(t, first.IsDirty())
	})

	t.Run("正常系: 変更フィールドのみ更新", func(t *testing.T) {
		s := newStore(t, classes)

		rec := insert(t, s, "Post", map[string]interface{}{"Title": "draft", "Score": int64(1)})
		rec.Set("Title", "final")
		require.NoError(t, s.Save(ctx, rec))
		assert.False(t, rec.IsDirty())

		got, err := s.GetByID(ctx, "Post", rec.ID())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "final", got.Get("Title"))
		assert.True(t, entities.ValuesEqual(int64(1), got.Get("Score")))
	})

	t.Run("異常系: 存在しないレコードの更新", func(t *testing.T) {
		s := newStore(t, classes)

		missing := entities.LoadRecord(classes["Post"], map[string]interface{}{entities.PrimaryKey: int64(9999)})
		missing.Set("Title", "x")
		assert.Error(t, s.Save(ctx, missing))
	})

	t.Run("正常系: 見つからない場合はnil", func(t *testing.T) {
		s := newStore(t, classes)

		rec, err := s.GetByID(ctx, "Post", int64(424242))
		require.NoError(t, err)
		assert.Nil(t, rec)

		recs, err := s.GetAllByWhere(ctx, "Post", []entities.Condition{entities.Eq("ThreadID", int64(1))}, nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("正常系: 条件検索", func(t *testing.T) {
		s := newStore(t, classes)

		insert(t, s, "Post", map[string]interface{}{"ThreadID": int64(1), "Title": "b", "Score": int64(3)})
		insert(t, s, "Post", map[string]interface{}{"ThreadID": int64(1), "Title": "a", "Score": int64(5)})
		insert(t, s, "Post", map[string]interface{}{"ThreadID": int64(2), "Title": "c", "Score": int64(9)})
		insert(t, s, "Post", map[string]interface{}{"ThreadID": int64(1), "Title": "d"})

		tests := []struct {
			name   string
			where  []entities.Condition
			opts   *repositories.QueryOptions
			titles []string
		}{
			{
				name:   "equality keeps insertion order",
				where:  []entities.Condition{entities.Eq("ThreadID", 1)},
				titles: []string{"b", "a", "d"},
			},
			{
				name:   "ordered by title",
				where:  []entities.Condition{entities.Eq("ThreadID", 1)},
				opts:   &repositories.QueryOptions{Order: entities.Order{{Field: "Title"}}},
				titles: []string{"a", "b", "d"},
			},
			{
				name:   "comparison skips nulls",
				where:  []entities.Condition{entities.Where("Score", entities.OpGe, 5)},
				titles: []string{"a", "c"},
			},
			{
				name:   "not equal skips nulls",
				where:  []entities.Condition{entities.Where("Score", entities.OpNe, 5)},
				titles: []string{"b", "c"},
			},
			{
				name:   "is null",
				where:  []entities.Condition{entities.Where("Score", entities.OpIsNull, nil)},
				titles: []string{"d"},
			},
			{
				name:   "in string list",
				where:  []entities.Condition{entities.Where("Title", entities.OpIn, []interface{}{"c", "d"})},
				titles: []string{"c", "d"},
			},
			{
				name:   "in integer list",
				where:  []entities.Condition{entities.Where("ThreadID", entities.OpIn, []interface{}{2, int64(3)})},
				titles: []string{"c"},
			},
			{
				name:   "empty in list",
				where:  []entities.Condition{entities.Where("Title", entities.OpIn, []interface{}{})},
				titles: []string{},
			},
			{
				name:   "nulls first ascending",
				opts:   &repositories.QueryOptions{Order: entities.Order{{Field: "Score"}}},
				titles: []string{"d", "b", "a", "c"},
			},
			{
				name:   "descending with limit",
				opts:   &repositories.QueryOptions{Order: entities.Order{{Field: "Score", Desc: true}}, Limit: 2},
				titles: []string{"c", "a"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				recs, err := s.GetAllByWhere(ctx, "Post", tt.where, tt.opts)
				require.NoError(t, err)
				assert.Equal(t, tt.titles, titles(recs))
			})
		}

		first, err := s.GetByWhere(ctx, "Post",
			[]entities.Condition{entities.Eq("ThreadID", 1)},
			&repositories.QueryOptions{Order: entities.Order{{Field: "Score", Desc: true}}})
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "a", first.Get("Title"))

		byField, err := s.GetByField(ctx, "Post", "Title", "c")
		require.NoError(t, err)
		require.NotNil(t, byField)
		assert.True(t, entities.ValuesEqual(int64(2), byField.Get("ThreadID")))
	})

	t.Run("異常系: 式条件と未知のフィールド", func(t *testing.T) {
		s := newStore(t, classes)

		_, err := s.GetAllByWhere(ctx, "Post", []entities.Condition{entities.Expr("record.Score > 1")}, nil)
		assert.Error(t, err)

		_, err = s.GetByID(ctx, "Nope", 1)
		assert.ErrorIs(t, err, entities.ErrUnknownClass)
	})

	t.Run("正常系: リンク経由の検索", func(t *testing.T) {
		s := newStore(t, classes)

		alice := insert(t, s, "User", map[string]interface{}{"Name": "alice"})
		admins := insert(t, s, "Group", map[string]interface{}{"Name": "admins"})
		dev := insert(t, s, "Group", map[string]interface{}{"Name": "dev"})
		insert(t, s, "Group", map[string]interface{}{"Name": "ops"})
		insert(t, s, "UserGroup", map[string]interface{}{"UserID": alice.ID(), "GroupID": dev.ID()})
		insert(t, s, "UserGroup", map[string]interface{}{"UserID": alice.ID(), "GroupID": admins.ID()})

		query := &repositories.LinkQuery{
			Link:        "UserGroup",
			LinkLocal:   "UserID",
			LinkForeign: "GroupID",
			Foreign:     entities.PrimaryKey,
			LocalValue:  alice.ID(),
			Order:       entities.Order{{Field: "Name"}},
		}
		groups, err := s.GetAllByQuery(ctx, "Group", query)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "admins", groups[0].Get("Name"))
		assert.Equal(t, "dev", groups[1].Get("Name"))

		query.Conditions = []entities.Condition{entities.Where("Name", entities.OpNe, "admins")}
		filtered, err := s.GetAllByQuery(ctx, "Group", query)
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "dev", filtered[0].Get("Name"))

		query.LocalValue = int64(4242)
		none, err := s.GetAllByQuery(ctx, "Group", query)
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = s.GetAllByQuery(ctx, "Group", nil)
		assert.Error(t, err)
	})

	t.Run("正常系: ハンドル検索", func(t *testing.T) {
		s := newStore(t, classes)

		insert(t, s, entities.HandleClass, map[string]interface{}{
			entities.HandleField:       "general",
			entities.ContextClassField: "Thread",
			entities.ContextIDField:    int64(7),
		})

		rec, err := s.GetByHandle(ctx, entities.HandleClass, "general")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "Thread", rec.Get(entities.ContextClassField))
		assert.True(t, entities.ValuesEqual(int64(7), rec.Get(entities.ContextIDField)))

		missing, err := s.GetByHandle(ctx, entities.HandleClass, "random")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("正常系: リビジョンの保存と取得", func(t *testing.T) {
		s := newStore(t, classes)

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		tick := 0
		s.SetClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		})

		rec := insert(t, s, "Post", map[string]interface{}{"Title": "v1", "Score": int64(1)})
		require.NoError(t, s.WriteRevision(ctx, rec))
		rec.Set("Title", "v2")
		rec.Set("Score", int64(2))
		require.NoError(t, s.Save(ctx, rec))
		require.NoError(t, s.WriteRevision(ctx, rec))

		rel := &entities.HistoryRelationship{
			Name:   "Revisions",
			Target: "Post",
			Local:  entities.PrimaryKey,
			Order:  entities.Order{{Field: repositories.RevisionDateField, Desc: true}},
		}
		revs, err := s.GetRevisionsByID(ctx, "Post", rec.ID(), rel)
		require.NoError(t, err)
		require.Len(t, revs, 2)
		assert.Equal(t, []string{"v2", "v1"}, titles(revs))
		assert.True(t, entities.ValuesEqual(int64(2), revs[0].Get("Score")))
		assert.NotEmpty(t, revs[0].Get(repositories.RevisionIDField))

		date, ok := revs[0].Get(repositories.RevisionDateField).(time.Time)
		require.True(t, ok)
		assert.True(t, date.Equal(base.Add(2*time.Minute)), "RevisionDate = %v", date)

		rel.Conditions = []entities.Condition{entities.Eq("Title", "v1")}
		old, err := s.GetRevisionsByID(ctx, "Post", rec.ID(), rel)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1"}, titles(old))
	})

	t.Run("異常系: 未保存レコードのリビジョン", func(t *testing.T) {
		s := newStore(t, classes)
		assert.Error(t, s.WriteRevision(ctx, entities.NewRecord(classes["Post"])))
	})
}
