package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
)

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, testSchema())
	require.NoError(t, err)
	id := insertTestDoc(t, s1, "users", 1, docstore.Document{"name": "Ada"})
	require.NoError(t, s1.Close())

	s2, err := Open(path, testSchema())
	require.NoError(t, err)
	defer s2.Close()

	docs, err := s2.Find(context.Background(), "users", docstore.FindQuery{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0]["_id"])

	var tables int
	require.NoError(t, s2.DB().QueryRow(`SELECT COUNT(*) FROM livedoc_tables`).Scan(&tables))
	assert.Equal(t, 2, tables)
}

func TestUnknownTable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Find(ctx, "ghosts", docstore.FindQuery{})
	assert.ErrorIs(t, err, docstore.ErrUnknownTable)
	_, err = s.Count(ctx, "ghosts", nil)
	assert.ErrorIs(t, err, docstore.ErrUnknownTable)
	assert.ErrorIs(t, s.Insert(ctx, "ghosts", docstore.Document{}), docstore.ErrUnknownTable)
}

func TestInsertAndFind_Rehydrates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	user := insertTestDoc(t, s, "users", 1, docstore.Document{"name": "Ada"})
	watcher := insertTestDoc(t, s, "users", 2, docstore.Document{"name": "Bob"})
	ticket := insertTestDoc(t, s, "tickets", 3, docstore.Document{
		"title":    "broken",
		"user":     user,
		"watchers": []any{user, watcher},
		"tags":     []any{"bug"},
	})

	docs, err := s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Eq("_id", ticket)})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, ticket, doc["_id"])
	assert.Equal(t, int64(3), doc["_creationTime"])
	assert.Equal(t, user, doc["user"], "reference fields come back native")
	assert.Equal(t, []any{user, watcher}, doc["watchers"])
	assert.Equal(t, []any{"bug"}, doc["tags"], "plain arrays are untouched")
}

func TestInsert_RequiresNativeID(t *testing.T) {
	s := createTestStore(t)
	err := s.Insert(context.Background(), "users", docstore.Document{"_id": "x", "_creationTime": int64(1)})
	assert.ErrorContains(t, err, "_id must be a native id")
}

func TestFind_FilterSortPaginate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, stock := range []float64{30, 10, 20, 40} {
		status := "open"
		if stock == 40 {
			status = "closed"
		}
		insertTestDoc(t, s, "tickets", int64(i+1), docstore.Document{"stock": stock, "status": status, "title": "t"})
	}

	docs, err := s.Find(ctx, "tickets", docstore.FindQuery{
		Filter: filter.Eq("status", "open"),
		Sort:   []docstore.SortKey{{Field: "stock"}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []any{10.0, 20.0, 30.0}, []any{docs[0]["stock"], docs[1]["stock"], docs[2]["stock"]})

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{
		Sort:  []docstore.SortKey{{Field: "stock", Desc: true}},
		Skip:  1,
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 30.0, docs[0]["stock"])
	assert.Equal(t, 20.0, docs[1]["stock"])

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{
		Filter: filter.Conjoin(filter.Gt("stock", 10), filter.Lte("stock", 30)),
		Sort:   []docstore.SortKey{{Field: "_creationTime"}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 30.0, docs[0]["stock"])
	assert.Equal(t, 20.0, docs[1]["stock"])

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Eq("status", "nope")})
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestFind_ArrayAndNullSemantics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	u1 := insertTestDoc(t, s, "users", 1, docstore.Document{"name": "Ada"})
	u2 := insertTestDoc(t, s, "users", 2, docstore.Document{"name": "Bob"})
	t1 := insertTestDoc(t, s, "tickets", 3, docstore.Document{"title": "a", "watchers": []any{u1, u2}, "tags": []any{"x"}})
	t2 := insertTestDoc(t, s, "tickets", 4, docstore.Document{"title": "b", "watchers": []any{u2}, "status": nil})

	ids := func(docs []docstore.Document) []any {
		out := []any{}
		for _, d := range docs {
			out = append(out, d["_id"])
		}
		return out
	}

	docs, err := s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Eq("watchers", u1)})
	require.NoError(t, err)
	assert.Equal(t, []any{t1}, ids(docs))

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.OneOf("watchers", u1, u2)})
	require.NoError(t, err)
	assert.Equal(t, []any{t1, t2}, ids(docs))

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Eq("status", nil)})
	require.NoError(t, err)
	assert.Equal(t, []any{t1, t2}, ids(docs), "missing and null both equal nil")

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Ne("tags", nil)})
	require.NoError(t, err)
	assert.Equal(t, []any{t1}, ids(docs))

	docs, err = s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.In{Field: "_id", Values: []any{t1}, Not: true}})
	require.NoError(t, err)
	assert.Equal(t, []any{t2}, ids(docs))
}

func TestFind_Projection(t *testing.T) {
	s := createTestStore(t)
	insertTestDoc(t, s, "tickets", 1, docstore.Document{"title": "a", "stock": 5.0, "status": "open"})

	docs, err := s.Find(context.Background(), "tickets", docstore.FindQuery{Fields: []string{"title"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0], 2)
	assert.Contains(t, docs[0], "_id")
	assert.Equal(t, "a", docs[0]["title"])
}

func TestUpdateDeleteCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := insertTestDoc(t, s, "tickets", 1, docstore.Document{"title": "a", "status": "open", "stock": 1.0})
	insertTestDoc(t, s, "tickets", 2, docstore.Document{"title": "b", "status": "open", "stock": 2.0})
	insertTestDoc(t, s, "tickets", 3, docstore.Document{"title": "c", "status": "closed", "stock": 3.0})

	n, err := s.Count(ctx, "tickets", filter.Eq("status", "open"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	user := docstore.NewID()
	n, err = s.Update(ctx, "tickets", filter.Eq("_id", a), docstore.Document{
		"status": "closed",
		"user":   user,
		"meta":   map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	docs, err := s.Find(ctx, "tickets", docstore.FindQuery{Filter: filter.Eq("_id", a)})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "closed", docs[0]["status"])
	assert.Equal(t, user, docs[0]["user"])
	assert.Equal(t, map[string]any{"k": "v"}, docs[0]["meta"])
	assert.Equal(t, int64(1), docs[0]["_creationTime"], "system fields untouched")

	_, err = s.Update(ctx, "tickets", nil, docstore.Document{"_id": docstore.NewID()})
	assert.ErrorContains(t, err, "immutable")

	n, err = s.Update(ctx, "tickets", filter.Eq("status", "closed"), docstore.Document{"stock": 0.0})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Delete(ctx, "tickets", filter.Eq("stock", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, "tickets", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAggregate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	u1 := docstore.NewID()
	u2 := docstore.NewID()
	for i, row := range []struct {
		user   docstore.ID
		status string
		stock  float64
	}{
		{u1, "open", 10},
		{u1, "open", 20},
		{u1, "closed", 30},
		{u2, "open", 5},
	} {
		insertTestDoc(t, s, "tickets", int64(i+1), docstore.Document{"user": row.user, "status": row.status, "stock": row.stock})
	}

	t.Run("ungrouped", func(t *testing.T) {
		rows, err := s.Aggregate(ctx, "tickets", docstore.AggregateQuery{Sum: []string{"stock"}, Avg: []string{"stock"}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0]["_id"])
		assert.EqualValues(t, 65, rows[0]["sum_stock"])
		assert.InDelta(t, 16.25, rows[0]["avg_stock"], 0.0001)
	})

	t.Run("single key rehydrated", func(t *testing.T) {
		rows, err := s.Aggregate(ctx, "tickets", docstore.AggregateQuery{
			Filter:  filter.Eq("user", u1),
			GroupBy: []string{"user"},
			Sum:     []string{"stock"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, u1, rows[0]["_id"])
		assert.EqualValues(t, 60, rows[0]["sum_stock"])
	})

	t.Run("composite key", func(t *testing.T) {
		rows, err := s.Aggregate(ctx, "tickets", docstore.AggregateQuery{
			Filter:  filter.Eq("user", u1),
			GroupBy: []string{"user", "status"},
			Sum:     []string{"stock"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, map[string]any{"user": u1, "status": "closed"}, rows[0]["_id"])
		assert.EqualValues(t, 30, rows[0]["sum_stock"])
		assert.Equal(t, map[string]any{"user": u1, "status": "open"}, rows[1]["_id"])
	})

	t.Run("empty input", func(t *testing.T) {
		rows, err := s.Aggregate(ctx, "tickets", docstore.AggregateQuery{
			Filter: filter.Eq("status", "nope"),
			Sum:    []string{"stock"},
		})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
