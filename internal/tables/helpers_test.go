package tables

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/docstore/sqlitestore"
	"github.com/roach88/livedoc/internal/schema"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testSchema() *schema.Schema {
	users := schema.NewTable("users",
		schema.Field{Name: "name", Kind: schema.KindString},
		schema.Field{Name: "email", Kind: schema.KindString, Optional: true},
	)
	tickets := schema.NewTable("tickets",
		schema.Field{Name: "title", Kind: schema.KindString},
		schema.Field{Name: "status", Kind: schema.KindString, Nullable: true},
		schema.Field{Name: "stock", Kind: schema.KindNumber},
		schema.Field{Name: "user", Kind: schema.KindReference, Target: "users"},
		schema.Field{Name: "watchers", Kind: schema.KindArray,
			Elem: &schema.Field{Kind: schema.KindReference, Target: "users"}},
	)
	return schema.MustNew([]schema.Table{users, tickets}, nil)
}

// countingStore records Find calls per table.
type countingStore struct {
	docstore.Store

	mu    sync.Mutex
	finds map[string]int
}

func (s *countingStore) Find(ctx context.Context, table string, q docstore.FindQuery) ([]docstore.Document, error) {
	s.mu.Lock()
	s.finds[table]++
	s.mu.Unlock()
	return s.Store.Find(ctx, table, q)
}

func (s *countingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.finds {
		n += c
	}
	return n
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = map[string]int{}
}

// createTestDB opens a SQLite-backed DB in a temp dir.
func createTestDB(t *testing.T, opts ...Option) (*DB, *countingStore) {
	t.Helper()
	s := testSchema()
	raw, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"), s)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	counting := &countingStore{Store: raw, finds: map[string]int{}}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(counting, s, opts...), counting
}

func mustCreate(t *testing.T, db *DB, table string, data docstore.Document) docstore.Document {
	t.Helper()
	doc, err := db.MustTable(table).Create(context.Background(), data, Args{})
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func idOf(t *testing.T, doc docstore.Document) string {
	t.Helper()
	id, ok := doc[schema.FieldID].(string)
	require.True(t, ok, "expected string _id, got %T", doc[schema.FieldID])
	return id
}
