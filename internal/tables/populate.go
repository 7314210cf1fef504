package tables

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

type strategy int

const (
	strategyUnknown strategy = iota
	strategyForward
	strategyBackward
)

func (s strategy) String() string {
	switch s {
	case strategyForward:
		return "forward"
	case strategyBackward:
		return "backward"
	default:
		return "unknown"
	}
}

// populatePlan is the resolution chosen for one populate key.
type populatePlan struct {
	key      string
	strategy strategy
	forward  schema.Ref
	backward schema.Backref
}

// planPopulate picks a strategy per key from the reference map alone.
// Forward wins when the table has a reference field named key; backward
// applies when key names a table that references this one.
func (c *Client) planPopulate(keys []string) ([]populatePlan, error) {
	refs := c.db.schema.Refs()
	plans := make([]populatePlan, 0, len(keys))
	for _, key := range keys {
		p := populatePlan{key: key}
		if ref, ok := refs.Forward(c.table.Name, key); ok {
			p.strategy = strategyForward
			p.forward = ref
		}
		if back, ok := refs.BackwardFrom(c.table.Name, key); ok {
			p.backward = back
			if p.strategy == strategyUnknown {
				p.strategy = strategyBackward
			}
		}
		if p.strategy == strategyUnknown {
			if c.db.strict {
				return nil, fmt.Errorf("%w: unknown populate key %s.%s", ErrValidation, c.table.Name, key)
			}
			c.db.logger.Warnw("ignoring unknown populate key", "table", c.table.Name, "key", key)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// populate resolves planned keys on docs in place. docs are in external
// form.
func (c *Client) populate(ctx context.Context, docs []docstore.Document, plans []populatePlan) error {
	var err error
	for _, p := range plans {
		switch p.strategy {
		case strategyForward:
			if !anyValue(docs, p.key) && p.backward.Table != "" {
				err = c.populateBackward(ctx, docs, p.key, p.backward)
			} else {
				err = c.populateForward(ctx, docs, p.key, p.forward)
			}
		case strategyBackward:
			err = c.populateBackward(ctx, docs, p.key, p.backward)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// populateForward replaces the ids held by key with target documents.
// A scalar becomes the document or nil; an array keeps found documents in
// id order.
func (c *Client) populateForward(ctx context.Context, docs []docstore.Document, key string, ref schema.Ref) error {
	var ids []any
	seen := map[string]bool{}
	for _, d := range docs {
		for _, id := range refIDs(d[key]) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	found := map[string]docstore.Document{}
	if len(ids) > 0 {
		var err error
		found, err = c.db.lookup(ctx, ref.Target, schema.FieldID, ids)
		if err != nil {
			return fmt.Errorf("populate %s.%s: %w", c.table.Name, key, err)
		}
	}

	// Each result gets its own copy of a target; results never share maps.
	for _, d := range docs {
		if ref.Many {
			matched := []docstore.Document{}
			for _, id := range refIDs(d[key]) {
				if target, ok := found[id]; ok {
					matched = append(matched, maps.Clone(target))
				}
			}
			d[key] = matched
			continue
		}
		id, _ := d[key].(string)
		if target, ok := found[id]; ok {
			d[key] = maps.Clone(target)
		} else {
			d[key] = nil
		}
	}
	return nil
}

// populateBackward attaches to each document the source rows whose
// reference field points at it. Every document gets a list.
func (c *Client) populateBackward(ctx context.Context, docs []docstore.Document, key string, back schema.Backref) error {
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		if id, ok := d[schema.FieldID].(string); ok {
			ids = append(ids, id)
		}
	}

	source, err := c.db.Table(back.Table)
	if err != nil {
		return err
	}
	rows, err := source.findRaw(ctx, filter.In{Field: back.Field, Values: ids})
	if err != nil {
		return fmt.Errorf("populate %s.%s: %w", c.table.Name, key, err)
	}

	grouped := map[string][]docstore.Document{}
	for _, row := range rows {
		for _, id := range refIDs(row[back.Field]) {
			grouped[id] = append(grouped[id], maps.Clone(row))
		}
	}
	for _, d := range docs {
		id, _ := d[schema.FieldID].(string)
		matched := grouped[id]
		if matched == nil {
			matched = []docstore.Document{}
		}
		d[key] = matched
	}
	return nil
}

// lookup fetches table rows whose field is one of ids, keyed by external id.
func (db *DB) lookup(ctx context.Context, table, field string, ids []any) (map[string]docstore.Document, error) {
	c, err := db.Table(table)
	if err != nil {
		return nil, err
	}
	rows, err := c.findRaw(ctx, filter.In{Field: field, Values: ids})
	if err != nil {
		return nil, err
	}
	out := make(map[string]docstore.Document, len(rows))
	for _, row := range rows {
		if id, ok := row[schema.FieldID].(string); ok {
			out[id] = row
		}
	}
	return out, nil
}

// findRaw is one unpopulated scan returning external documents.
func (c *Client) findRaw(ctx context.Context, where filter.Predicate) ([]docstore.Document, error) {
	native, err := c.nativeFilter(where)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.store.Find(ctx, c.table.Name, docstore.FindQuery{Filter: native})
	if err != nil {
		return nil, err
	}
	return external(rows), nil
}

// refIDs lists the external ids held by a scalar or array reference value.
func refIDs(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	default:
		return nil
	}
}

func anyValue(docs []docstore.Document, key string) bool {
	for _, d := range docs {
		if len(refIDs(d[key])) > 0 {
			return true
		}
	}
	return false
}
