package mongostore

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/livedoc/internal/docstore"
)

// toDocument converts a decoded BSON document into plain Go values.
// ObjectIDs and Decimal128 stay native; the table layer stringifies them.
func toDocument(m bson.M) docstore.Document {
	doc := make(docstore.Document, len(m))
	for k, v := range m {
		doc[k] = fromBSON(v)
	}
	return doc
}

func fromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		return map[string]any(toDocument(val))
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = fromBSON(elem)
		}
		return out
	case int32:
		return int64(val)
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

// toBSON prepares a document for writing. Nested documents keep their
// values; the driver encodes map[string]any and []any directly.
func toBSON(doc docstore.Document) bson.M {
	m := make(bson.M, len(doc))
	for k, v := range doc {
		m[k] = v
	}
	return m
}
