package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

func testSchema() *schema.Schema {
	users := schema.NewTable("users",
		schema.Field{Name: "name", Kind: schema.KindString},
	)
	tickets := schema.NewTable("tickets",
		schema.Field{Name: "title", Kind: schema.KindString},
		schema.Field{Name: "stock", Kind: schema.KindNumber},
		schema.Field{Name: "status", Kind: schema.KindString},
	)
	channels := []schema.Channel{{
		Table:  "tickets",
		Range:  &schema.RangeFilter{Field: "stock", Min: 0, Max: 1000},
		Status: &schema.StatusFilter{Field: "status", Values: []string{"open", "closed"}},
	}}
	return schema.MustNew([]schema.Table{users, tickets}, channels)
}

// fakeQuerier answers re-queries from an in-memory document set.
type fakeQuerier struct {
	mu     sync.Mutex
	docs   map[string][]docstore.Document
	calls  int
	failOn string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{docs: map[string][]docstore.Document{}}
}

func (q *fakeQuerier) add(table string, doc docstore.Document) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.docs[table] = append(q.docs[table], doc)
}

func (q *fakeQuerier) Find(_ context.Context, table string, where filter.Predicate) ([]docstore.Document, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.failOn != "" && strings.Contains(filter.String(where), q.failOn) {
		return nil, errors.New("store unavailable")
	}
	out := []docstore.Document{}
	for _, d := range q.docs[table] {
		if filter.Match(where, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (q *fakeQuerier) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type frame struct {
	Type  string           `json:"type"`
	Query map[string]any   `json:"query"`
	Data  []map[string]any `json:"data"`
}

func decodeFrame(t *testing.T, raw []byte) frame {
	t.Helper()
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func ptr(f float64) *float64 { return &f }
