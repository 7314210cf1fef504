package tables

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// QueryBuilder accumulates one query against one table. It is not safe
// for concurrent use and is meant to be discarded after Find/FindOne.
type QueryBuilder struct {
	client   *Client
	where    filter.Predicate
	sort     []docstore.SortKey
	limit    int64
	offset   int64
	fields   []string
	populate []string
	err      error
}

// Query starts a new builder on the client's table.
func (c *Client) Query() *QueryBuilder {
	return &QueryBuilder{client: c}
}

// Where ANDs p onto the current predicate.
func (q *QueryBuilder) Where(p filter.Predicate) *QueryBuilder {
	q.where = filter.Conjoin(q.where, p)
	return q
}

// Sort appends ordered sort keys.
func (q *QueryBuilder) Sort(keys ...docstore.SortKey) *QueryBuilder {
	q.sort = append(q.sort, keys...)
	return q
}

// SortMap appends a field→direction map, ordered by field name.
func (q *QueryBuilder) SortMap(dirs map[string]Direction) *QueryBuilder {
	fields := make([]string, 0, len(dirs))
	for f := range dirs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		switch dirs[f] {
		case Asc, "":
			q.sort = append(q.sort, docstore.SortKey{Field: f})
		case Desc:
			q.sort = append(q.sort, docstore.SortKey{Field: f, Desc: true})
		default:
			q.fail(fmt.Errorf("%w: sort direction %q for %s", ErrValidation, dirs[f], f))
		}
	}
	return q
}

// Limit caps the number of results. 0 means no limit.
func (q *QueryBuilder) Limit(n int64) *QueryBuilder {
	if n < 0 {
		q.fail(fmt.Errorf("%w: negative limit %d", ErrValidation, n))
	}
	q.limit = n
	return q
}

// Offset skips the first n results.
func (q *QueryBuilder) Offset(n int64) *QueryBuilder {
	if n < 0 {
		q.fail(fmt.Errorf("%w: negative offset %d", ErrValidation, n))
	}
	q.offset = n
	return q
}

// Select restricts the returned fields. _id is always returned and
// populate keys are added back at execution time.
func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.fields = appendUnique(q.fields, fields...)
	return q
}

// Populate requests reference resolution for keys, keeping first-seen order.
func (q *QueryBuilder) Populate(keys ...string) *QueryBuilder {
	q.populate = appendUnique(q.populate, keys...)
	return q
}

// PopulateKeys returns the accumulated populate keys.
func (q *QueryBuilder) PopulateKeys() []string {
	return append([]string(nil), q.populate...)
}

func (q *QueryBuilder) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// projection is the effective field set: the selection plus populate keys.
func (q *QueryBuilder) projection() []string {
	if len(q.fields) == 0 {
		return nil
	}
	return appendUnique(append([]string(nil), q.fields...), q.populate...)
}

// Find runs the query and resolves populate keys for the whole batch.
func (q *QueryBuilder) Find(ctx context.Context) ([]docstore.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	c := q.client
	for _, k := range q.sort {
		if !c.knownField(rootOf(k.Field)) {
			return nil, fmt.Errorf("%w: unknown sort field %s.%s", ErrValidation, c.table.Name, k.Field)
		}
	}

	where, err := c.nativeFilter(q.where)
	if err != nil {
		return nil, err
	}
	plans, err := c.planPopulate(q.populate)
	if err != nil {
		return nil, err
	}
	raw, err := c.db.store.Find(ctx, c.table.Name, docstore.FindQuery{
		Filter: where,
		Sort:   q.sort,
		Skip:   q.offset,
		Limit:  q.limit,
		Fields: q.projection(),
	})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table.Name, err)
	}

	docs := external(raw)
	if len(plans) > 0 && len(docs) > 0 {
		if err := c.populate(ctx, docs, plans); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// FindOne runs the query with an effective limit of 1 and returns the
// first match or nil. Offset is honored; any explicit limit is ignored.
func (q *QueryBuilder) FindOne(ctx context.Context) (docstore.Document, error) {
	one := *q
	one.limit = 1
	docs, err := one.Find(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func appendUnique(dst []string, keys ...string) []string {
	for _, k := range keys {
		seen := false
		for _, d := range dst {
			if d == k {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, k)
		}
	}
	return dst
}

func rootOf(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
