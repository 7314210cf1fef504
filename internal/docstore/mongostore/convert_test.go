package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/livedoc/internal/docstore"
)

func TestToDocument(t *testing.T) {
	id := primitive.NewObjectID()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := toDocument(bson.M{
		"_id":   id,
		"count": int32(7),
		"when":  primitive.NewDateTimeFromTime(at),
		"meta":  bson.M{"depth": int32(2)},
		"pairs": bson.D{{Key: "a", Value: "x"}},
		"tags":  bson.A{"a", int32(1)},
	})

	assert.Equal(t, docstore.Document{
		"_id":   id,
		"count": int64(7),
		"when":  at,
		"meta":  map[string]any{"depth": int64(2)},
		"pairs": map[string]any{"a": "x"},
		"tags":  []any{"a", int64(1)},
	}, doc)
}
