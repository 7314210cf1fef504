package docstore

import (
	"context"
	"errors"

	"github.com/roach88/livedoc/internal/filter"
)

// ErrUnknownTable is returned by adapters for tables they were not opened with.
var ErrUnknownTable = errors.New("unknown table")

// Document is a stored document: {_id, _creationTime, ...fields}.
type Document map[string]any

// SortKey is one ORDER BY term.
type SortKey struct {
	Field string
	Desc  bool
}

// FindQuery is a single scan against one table.
//
// Limit 0 means unlimited. Fields empty means all fields; _id is always
// returned.
type FindQuery struct {
	Filter filter.Predicate
	Sort   []SortKey
	Skip   int64
	Limit  int64
	Fields []string
}

// AggregateQuery groups the filtered rows and computes accumulators.
//
// Result rows carry the group key under _id (nil, the single key value, or a
// map keyed by field when grouping by several fields) and one column per
// accumulator named by SumName/AvgName.
type AggregateQuery struct {
	Filter  filter.Predicate
	GroupBy []string
	Sum     []string
	Avg     []string
}

// SumName is the result column of a sum accumulator.
func SumName(field string) string { return "sum_" + field }

// AvgName is the result column of an avg accumulator.
func AvgName(field string) string { return "avg_" + field }

// Store is the raw document-store adapter.
//
// All methods take and return store-native values. Implementations must be
// safe for concurrent use.
type Store interface {
	// Find runs one scan with projection, sort and pagination applied.
	// Returns an empty (non-nil) slice when nothing matches.
	Find(ctx context.Context, table string, q FindQuery) ([]Document, error)

	// Insert stores doc as-is; doc must carry _id and _creationTime.
	Insert(ctx context.Context, table string, doc Document) error

	// Update sets the given top-level fields on every matching document and
	// returns the number of matched documents.
	Update(ctx context.Context, table string, where filter.Predicate, set Document) (int64, error)

	// Delete removes every matching document and returns the count.
	Delete(ctx context.Context, table string, where filter.Predicate) (int64, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, table string, where filter.Predicate) (int64, error)

	// Aggregate runs a grouped aggregation.
	Aggregate(ctx context.Context, table string, q AggregateQuery) ([]Document, error)

	// Close releases the underlying connection.
	Close() error
}
