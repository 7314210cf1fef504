package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseID(t *testing.T) {
	id := NewID()

	parsed, ok := ParseID(id.Hex())
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = ParseID("not-an-id")
	assert.False(t, ok)
}

func TestToNative(t *testing.T) {
	id := NewID()

	assert.Equal(t, id, ToNative(id.Hex()))
	assert.Equal(t, "plain", ToNative("plain"))
	assert.Equal(t, 3.0, ToNative(3.0))
	assert.Equal(t, []any{id, "x"}, ToNative([]any{id.Hex(), "x"}))
	assert.Equal(t, []any{id}, ToNative([]string{id.Hex()}))
}

func TestToExternal(t *testing.T) {
	id := NewID()
	other := NewID()
	dec, err := primitive.ParseDecimal128("12.50")
	require.NoError(t, err)

	doc := Document{
		"_id":   id,
		"user":  map[string]any{"_id": other, "name": "Ada"},
		"refs":  []any{other},
		"price": dec,
		"n":     3,
	}

	got := ExternalDocument(doc)
	assert.Equal(t, id.Hex(), got["_id"])
	assert.Equal(t, map[string]any{"_id": other.Hex(), "name": "Ada"}, got["user"])
	assert.Equal(t, []any{other.Hex()}, got["refs"])
	assert.Equal(t, "12.50", got["price"])
	assert.Equal(t, 3, got["n"])

	assert.Equal(t, id, doc["_id"], "input is not modified")
	assert.Nil(t, ExternalDocument(nil))
}
