package sqlitestore

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// Insert writes a new row. doc must carry a native _id and _creationTime.
func (s *Store) Insert(ctx context.Context, table string, doc docstore.Document) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	id, ok := doc[schema.FieldID].(docstore.ID)
	if !ok {
		return fmt.Errorf("insert %s: _id must be a native id, got %T", table, doc[schema.FieldID])
	}
	created, ok := doc[schema.FieldCreationTime].(int64)
	if !ok {
		return fmt.Errorf("insert %s: _creationTime must be int64, got %T", table, doc[schema.FieldCreationTime])
	}
	body, err := encodeBody(doc)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, creation_time, body) VALUES (?, ?, ?)", quoteIdent(table))
	if _, err := s.db.ExecContext(ctx, query, id.Hex(), created, body); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update json_set()s the given fields on every matching row.
// Fields are applied in name order so the statement text is stable.
func (s *Store) Update(ctx context.Context, table string, where filter.Predicate, set docstore.Document) (int64, error) {
	if _, err := s.table(table); err != nil {
		return 0, err
	}
	fields := make([]string, 0, len(set))
	for k := range set {
		if k == schema.FieldID || k == schema.FieldCreationTime {
			return 0, fmt.Errorf("update %s: %s is immutable", table, k)
		}
		fields = append(fields, k)
	}
	if len(fields) == 0 {
		return s.Count(ctx, table, where)
	}
	sort.Strings(fields)

	encoded := make([]string, len(fields))
	for i, f := range fields {
		v, err := encodeValue(set[f])
		if err != nil {
			return 0, fmt.Errorf("update %s.%s: %w", table, f, err)
		}
		encoded[i] = v
	}

	query, params, err := newCompiler(table).compileUpdate(where, fields, encoded)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: rows affected: %w", table, err)
	}
	return n, nil
}

// Delete removes every matching row.
func (s *Store) Delete(ctx context.Context, table string, where filter.Predicate) (int64, error) {
	if _, err := s.table(table); err != nil {
		return 0, err
	}
	query, params, err := newCompiler(table).compileDelete(where)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: rows affected: %w", table, err)
	}
	return n, nil
}
