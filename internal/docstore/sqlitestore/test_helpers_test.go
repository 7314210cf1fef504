package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.MustNew([]schema.Table{
		schema.NewTable("users",
			schema.Field{Name: "name", Kind: schema.KindString},
		),
		schema.NewTable("tickets",
			schema.Field{Name: "title", Kind: schema.KindString},
			schema.Field{Name: "status", Kind: schema.KindString},
			schema.Field{Name: "stock", Kind: schema.KindNumber},
			schema.Field{Name: "user", Kind: schema.KindReference, Target: "users"},
			schema.Field{Name: "watchers", Kind: schema.KindArray, Elem: &schema.Field{Kind: schema.KindReference, Target: "users"}},
			schema.Field{Name: "tags", Kind: schema.KindArray, Elem: &schema.Field{Kind: schema.KindString}},
		),
	}, nil)
}

// createTestStore opens a store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testSchema())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestDoc inserts a document with a fresh id and the given creation time.
func insertTestDoc(t *testing.T, s *Store, table string, created int64, fields docstore.Document) docstore.ID {
	t.Helper()
	id := docstore.NewID()
	doc := docstore.Document{"_id": id, "_creationTime": created}
	for k, v := range fields {
		doc[k] = v
	}
	require.NoError(t, s.Insert(context.Background(), table, doc))
	return id
}
