package sqlitestore

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/schema"
)

// encodeBody serializes every non-system field. Native ids are written in
// their hex form; decodeRow turns them back into ids.
func encodeBody(doc docstore.Document) (string, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == schema.FieldID || k == schema.FieldCreationTime {
			continue
		}
		body[k] = docstore.ToExternal(v)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}

func encodeValue(v any) (string, error) {
	data, err := json.Marshal(docstore.ToExternal(v))
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// decodeRow rebuilds a native document from its columns.
func (s *Store) decodeRow(table string, id string, created int64, body string) (docstore.Document, error) {
	doc := docstore.Document{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal body of %s/%s: %w", table, id, err)
	}
	if oid, ok := docstore.ParseID(id); ok {
		doc[schema.FieldID] = oid
	} else {
		doc[schema.FieldID] = id
	}
	doc[schema.FieldCreationTime] = created
	s.rehydrate(table, doc)
	return doc, nil
}

// rehydrate turns hex strings held by reference fields back into native ids.
func (s *Store) rehydrate(table string, doc docstore.Document) {
	for _, ref := range s.schema.Refs().ForwardFields(table) {
		v, ok := doc[ref.Field]
		if !ok || v == nil {
			continue
		}
		doc[ref.Field] = docstore.ToNative(v)
	}
}

// nativeKey converts a group key value of a reference (or _id) field.
func (s *Store) nativeKey(table, field string, v any) any {
	if v == nil || !s.schema.Refs().IsIDField(table, field) {
		return v
	}
	return docstore.ToNative(v)
}

// project keeps only the requested top-level fields; _id always survives.
func project(doc docstore.Document, fields []string) docstore.Document {
	if len(fields) == 0 {
		return doc
	}
	out := docstore.Document{schema.FieldID: doc[schema.FieldID]}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
