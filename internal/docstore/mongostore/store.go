package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// Store is the MongoDB docstore adapter.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	schema *schema.Schema
}

var _ docstore.Store = (*Store)(nil)

// Open connects to uri, pings the primary and binds to database.
func Open(ctx context.Context, uri, database string, s *schema.Schema) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(database), schema: s}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping verifies the connection. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) collection(table string) (*mongo.Collection, error) {
	if _, ok := s.schema.Table(table); !ok {
		return nil, fmt.Errorf("%w: %q", docstore.ErrUnknownTable, table)
	}
	return s.db.Collection(table), nil
}

// Find runs one query with sort, skip, limit and projection.
func (s *Store) Find(ctx context.Context, table string, q docstore.FindQuery) ([]docstore.Document, error) {
	coll, err := s.collection(table)
	if err != nil {
		return nil, err
	}
	f, err := compileFilter(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}

	cursor, err := coll.Find(ctx, f, findOptions(q))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}

	docs := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

// Insert writes doc as-is.
func (s *Store) Insert(ctx context.Context, table string, doc docstore.Document) error {
	coll, err := s.collection(table)
	if err != nil {
		return err
	}
	if _, ok := doc[schema.FieldID].(docstore.ID); !ok {
		return fmt.Errorf("insert %s: _id must be a native id, got %T", table, doc[schema.FieldID])
	}
	if _, err := coll.InsertOne(ctx, toBSON(doc)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update applies $set to every matching document.
func (s *Store) Update(ctx context.Context, table string, where filter.Predicate, set docstore.Document) (int64, error) {
	coll, err := s.collection(table)
	if err != nil {
		return 0, err
	}
	for k := range set {
		if k == schema.FieldID || k == schema.FieldCreationTime {
			return 0, fmt.Errorf("update %s: %s is immutable", table, k)
		}
	}
	f, err := compileFilter(where)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	if len(set) == 0 {
		return coll.CountDocuments(ctx, f)
	}
	res, err := coll.UpdateMany(ctx, f, bson.D{{Key: "$set", Value: toBSON(set)}})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.MatchedCount, nil
}

// Delete removes every matching document.
func (s *Store) Delete(ctx context.Context, table string, where filter.Predicate) (int64, error) {
	coll, err := s.collection(table)
	if err != nil {
		return 0, err
	}
	f, err := compileFilter(where)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	res, err := coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.DeletedCount, nil
}

// Count counts matching documents.
func (s *Store) Count(ctx context.Context, table string, where filter.Predicate) (int64, error) {
	coll, err := s.collection(table)
	if err != nil {
		return 0, err
	}
	f, err := compileFilter(where)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	n, err := coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Aggregate runs the compiled $match/$group/$sort pipeline.
func (s *Store) Aggregate(ctx context.Context, table string, q docstore.AggregateQuery) ([]docstore.Document, error) {
	coll, err := s.collection(table)
	if err != nil {
		return nil, err
	}
	pipeline, err := compilePipeline(q)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", table, err)
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", table, err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s aggregate: %w", table, err)
	}
	rows := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, toDocument(m))
	}
	return rows, nil
}
