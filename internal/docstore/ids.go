package docstore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID is the store-native document id.
type ID = primitive.ObjectID

// NewID returns a fresh id.
func NewID() ID {
	return primitive.NewObjectID()
}

// ParseID parses the external (hex) form of an id.
func ParseID(s string) (ID, bool) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// ToNative converts external id strings to native ids. Lists are converted
// element-wise; values that are not valid ids pass through unchanged so they
// simply fail to match.
func ToNative(v any) any {
	switch val := v.(type) {
	case string:
		if id, ok := ParseID(val); ok {
			return id
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	default:
		return v
	}
}

// ToExternal deep-copies v, replacing native ids and other opaque store
// values with plain strings.
func ToExternal(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		return val.String()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case Document:
		return map[string]any(ExternalDocument(val))
	case map[string]any:
		return map[string]any(ExternalDocument(val))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToExternal(elem)
		}
		return out
	case []Document:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToExternal(elem)
		}
		return out
	default:
		return v
	}
}

// ExternalDocument is ToExternal for a whole document.
func ExternalDocument(doc map[string]any) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = ToExternal(v)
	}
	return out
}
