package tables

import (
	"context"
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// AggregateBuilder accumulates one grouped aggregation.
type AggregateBuilder struct {
	client   *Client
	where    filter.Predicate
	groupBy  []string
	sum      []string
	avg      []string
	populate []string
}

// Aggregation starts a new aggregate builder on the client's table.
func (c *Client) Aggregation() *AggregateBuilder {
	return &AggregateBuilder{client: c}
}

// Where ANDs p onto the match stage.
func (a *AggregateBuilder) Where(p filter.Predicate) *AggregateBuilder {
	a.where = filter.Conjoin(a.where, p)
	return a
}

// GroupBy adds group key fields.
func (a *AggregateBuilder) GroupBy(fields ...string) *AggregateBuilder {
	a.groupBy = appendUnique(a.groupBy, fields...)
	return a
}

// Sum adds sum_<field> accumulators.
func (a *AggregateBuilder) Sum(fields ...string) *AggregateBuilder {
	a.sum = appendUnique(a.sum, fields...)
	return a
}

// Avg adds avg_<field> accumulators.
func (a *AggregateBuilder) Avg(fields ...string) *AggregateBuilder {
	a.avg = appendUnique(a.avg, fields...)
	return a
}

// Populate expands reference group keys into documents.
func (a *AggregateBuilder) Populate(keys ...string) *AggregateBuilder {
	a.populate = appendUnique(a.populate, keys...)
	return a
}

// Run executes the aggregation. Rows are {_id: key, sum_f: ..., avg_f: ...}
// with every id stringified.
func (a *AggregateBuilder) Run(ctx context.Context) ([]docstore.Document, error) {
	c := a.client
	if len(a.sum) == 0 && len(a.avg) == 0 {
		return nil, fmt.Errorf("%w: aggregate on %s needs sum or avg fields", ErrValidation, c.table.Name)
	}
	for _, group := range [][]string{a.groupBy, a.sum, a.avg} {
		for _, f := range group {
			if !c.knownField(rootOf(f)) {
				return nil, fmt.Errorf("%w: unknown field %s.%s", ErrValidation, c.table.Name, f)
			}
		}
	}

	refs, err := a.populateRefs()
	if err != nil {
		return nil, err
	}
	where, err := c.nativeFilter(a.where)
	if err != nil {
		return nil, err
	}

	raw, err := c.db.store.Aggregate(ctx, c.table.Name, docstore.AggregateQuery{
		Filter:  where,
		GroupBy: a.groupBy,
		Sum:     a.sum,
		Avg:     a.avg,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", c.table.Name, err)
	}
	rows := external(raw)

	for _, ref := range refs {
		if err := a.populateKey(ctx, rows, ref); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// populateRefs resolves populate keys to reference group-by fields.
func (a *AggregateBuilder) populateRefs() ([]schema.Ref, error) {
	c := a.client
	var out []schema.Ref
	for _, key := range a.populate {
		ref, isRef := c.db.schema.Refs().Forward(c.table.Name, key)
		grouped := false
		for _, g := range a.groupBy {
			if g == key {
				grouped = true
			}
		}
		if isRef && grouped {
			out = append(out, ref)
			continue
		}
		if c.db.strict {
			return nil, fmt.Errorf("%w: %s.%s is not a grouped reference field", ErrValidation, c.table.Name, key)
		}
		c.db.logger.Warnw("ignoring aggregate populate key", "table", c.table.Name, "key", key)
	}
	return out, nil
}

// populateKey swaps the group key id for its document with one lookup.
// With a single group-by field the key is _id itself, otherwise _id.<field>.
func (a *AggregateBuilder) populateKey(ctx context.Context, rows []docstore.Document, ref schema.Ref) error {
	single := len(a.groupBy) == 1
	get := func(row docstore.Document) any {
		if single {
			return row[schema.FieldID]
		}
		key, _ := row[schema.FieldID].(map[string]any)
		return key[ref.Field]
	}
	set := func(row docstore.Document, v any) {
		if single {
			row[schema.FieldID] = v
			return
		}
		if key, ok := row[schema.FieldID].(map[string]any); ok {
			key[ref.Field] = v
		}
	}

	var ids []any
	seen := map[string]bool{}
	for _, row := range rows {
		for _, id := range refIDs(get(row)) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := a.client.db.lookup(ctx, ref.Target, schema.FieldID, ids)
	if err != nil {
		return fmt.Errorf("populate aggregate key %s.%s: %w", a.client.table.Name, ref.Field, err)
	}

	for _, row := range rows {
		switch v := get(row).(type) {
		case string:
			if doc, ok := found[v]; ok {
				set(row, doc)
			} else {
				set(row, nil)
			}
		case []any:
			matched := []docstore.Document{}
			for _, id := range refIDs(v) {
				if doc, ok := found[id]; ok {
					matched = append(matched, doc)
				}
			}
			set(row, matched)
		}
	}
	return nil
}
