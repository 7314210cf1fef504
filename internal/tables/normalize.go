package tables

import (
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// knownField reports whether the first segment of path is a field of the
// client's table (system fields included).
func (c *Client) knownField(path string) bool {
	_, ok := c.table.Field(path)
	return ok
}

// nativeFilter validates p against the table and converts id literals on
// _id and reference fields to native ids.
func (c *Client) nativeFilter(p filter.Predicate) (filter.Predicate, error) {
	if p == nil {
		return nil, nil
	}
	if err := filter.Validate(p, c.knownField); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, c.table.Name, err)
	}
	refs := c.db.schema.Refs()
	return filter.MapValues(p, func(field string, v any) any {
		if refs.IsIDField(c.table.Name, field) {
			return docstore.ToNative(v)
		}
		return v
	}), nil
}

// nativeWrite validates a write payload and converts reference values to
// native ids. System fields are immutable.
func (c *Client) nativeWrite(data docstore.Document) (docstore.Document, error) {
	refs := c.db.schema.Refs()
	out := make(docstore.Document, len(data))
	for k, v := range data {
		if k == schema.FieldID || k == schema.FieldCreationTime {
			return nil, fmt.Errorf("%w: %s.%s is immutable", ErrValidation, c.table.Name, k)
		}
		if !c.knownField(k) {
			return nil, fmt.Errorf("%w: unknown field %s.%s", ErrValidation, c.table.Name, k)
		}
		if _, ok := refs.Forward(c.table.Name, k); ok && v != nil {
			v = docstore.ToNative(v)
		}
		out[k] = v
	}
	return out, nil
}

// external converts a batch of store documents to their external form.
func external(docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, d := range docs {
		out[i] = docstore.ExternalDocument(d)
	}
	return out
}

// byID builds the predicate selecting one document by external id.
func byID(id any) filter.Predicate {
	return filter.Eq(schema.FieldID, id)
}
