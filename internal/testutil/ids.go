package testutil

import (
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FixedIDGenerator returns predetermined connection ids in order.
//
// Panics once the ids are exhausted: a test that opens more connections
// than it declared is misconfigured.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator returning ids in order.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialObjectIDs returns a document id generator yielding
// 000000000000000000000001, 000000000000000000000002, ...
func SequentialObjectIDs() func() primitive.ObjectID {
	var mu sync.Mutex
	n := 0
	return func() primitive.ObjectID {
		mu.Lock()
		defer mu.Unlock()
		n++
		id, err := primitive.ObjectIDFromHex(fmt.Sprintf("%024x", n))
		if err != nil {
			panic(err)
		}
		return id
	}
}
