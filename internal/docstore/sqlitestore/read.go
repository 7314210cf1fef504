package sqlitestore

import (
	"context"
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
)

// Find runs one SELECT and decodes every row.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Find(ctx context.Context, table string, q docstore.FindQuery) ([]docstore.Document, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}

	query, params, err := newCompiler(table).compileFind(q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		var id, body string
		var created int64
		if err := rows.Scan(&id, &created, &body); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		doc, err := s.decodeRow(table, id, created, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, project(doc, q.Fields))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return docs, nil
}

// Count returns the number of matching rows.
func (s *Store) Count(ctx context.Context, table string, where filter.Predicate) (int64, error) {
	if _, err := s.table(table); err != nil {
		return 0, err
	}
	query, params, err := newCompiler(table).compileCount(where)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Aggregate runs a GROUP BY query and shapes rows like a MongoDB $group
// stage: {_id: key, sum_<f>: ..., avg_<f>: ...}. Empty groups are dropped so
// an ungrouped aggregate over no rows returns no rows.
func (s *Store) Aggregate(ctx context.Context, table string, q docstore.AggregateQuery) ([]docstore.Document, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	query, params, err := newCompiler(table).compileAggregate(q)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", table, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", table, err)
	}
	defer rows.Close()

	width := len(q.GroupBy) + len(q.Sum) + len(q.Avg) + 1
	out := []docstore.Document{}
	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s aggregate row: %w", table, err)
		}
		if n, _ := vals[width-1].(int64); n == 0 {
			continue
		}

		row := docstore.Document{}
		switch len(q.GroupBy) {
		case 0:
			row["_id"] = nil
		case 1:
			row["_id"] = s.nativeKey(table, q.GroupBy[0], sqlValue(vals[0]))
		default:
			key := map[string]any{}
			for i, g := range q.GroupBy {
				key[g] = s.nativeKey(table, g, sqlValue(vals[i]))
			}
			row["_id"] = key
		}
		i := len(q.GroupBy)
		for _, f := range q.Sum {
			row[docstore.SumName(f)] = sqlValue(vals[i])
			i++
		}
		for _, f := range q.Avg {
			row[docstore.AvgName(f)] = sqlValue(vals[i])
			i++
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s aggregate rows: %w", table, err)
	}
	return out, nil
}

// sqlValue normalizes driver values; TEXT may come back as []byte.
func sqlValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
