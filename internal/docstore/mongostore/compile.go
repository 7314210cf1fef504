package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
)

var mongoOps = map[filter.Op]string{
	filter.OpNe:  "$ne",
	filter.OpGt:  "$gt",
	filter.OpGte: "$gte",
	filter.OpLt:  "$lt",
	filter.OpLte: "$lte",
}

// compileFilter converts a predicate into a query document.
// A nil predicate becomes the empty document (match all).
func compileFilter(p filter.Predicate) (bson.D, error) {
	switch pred := p.(type) {
	case nil:
		return bson.D{}, nil
	case filter.Compare:
		return compileCompare(pred)
	case *filter.Compare:
		return compileCompare(*pred)
	case filter.In:
		return compileIn(pred), nil
	case *filter.In:
		return compileIn(*pred), nil
	case filter.And:
		return compileAnd(pred)
	case *filter.And:
		return compileAnd(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileCompare(c filter.Compare) (bson.D, error) {
	if c.Op == filter.OpEq {
		return bson.D{{Key: c.Field, Value: c.Value}}, nil
	}
	op, ok := mongoOps[c.Op]
	if !ok {
		return nil, fmt.Errorf("unsupported operator %q", c.Op)
	}
	if c.Value == nil && c.Op != filter.OpNe {
		return nil, fmt.Errorf("%s %s needs a value", c.Field, c.Op)
	}
	return bson.D{{Key: c.Field, Value: bson.D{{Key: op, Value: c.Value}}}}, nil
}

func compileIn(in filter.In) bson.D {
	op := "$in"
	if in.Not {
		op = "$nin"
	}
	values := bson.A{}
	values = append(values, in.Values...)
	return bson.D{{Key: in.Field, Value: bson.D{{Key: op, Value: values}}}}
}

func compileAnd(and filter.And) (bson.D, error) {
	if len(and.Predicates) == 0 {
		return bson.D{}, nil
	}
	clauses := bson.A{}
	for _, sub := range and.Predicates {
		d, err := compileFilter(sub)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, d)
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// findOptions maps sort, pagination and projection onto driver options.
func findOptions(q docstore.FindQuery) *options.FindOptions {
	opts := options.Find()
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, k := range q.Sort {
			dir := 1
			if k.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: k.Field, Value: dir})
		}
		opts.SetSort(sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if len(q.Fields) > 0 {
		proj := bson.D{}
		for _, f := range q.Fields {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		opts.SetProjection(proj)
	}
	return opts
}

// compilePipeline builds $match → $group → $sort for an AggregateQuery.
func compilePipeline(q docstore.AggregateQuery) (mongo.Pipeline, error) {
	if len(q.Sum) == 0 && len(q.Avg) == 0 {
		return nil, fmt.Errorf("aggregate needs at least one sum or avg field")
	}

	var pipeline mongo.Pipeline
	if q.Filter != nil {
		match, err := compileFilter(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("compile match: %w", err)
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	var key any
	switch len(q.GroupBy) {
	case 0:
		key = nil
	case 1:
		key = "$" + q.GroupBy[0]
	default:
		composite := bson.D{}
		for _, g := range q.GroupBy {
			composite = append(composite, bson.E{Key: g, Value: "$" + g})
		}
		key = composite
	}

	group := bson.D{{Key: "_id", Value: key}}
	for _, f := range q.Sum {
		group = append(group, bson.E{Key: docstore.SumName(f), Value: bson.D{{Key: "$sum", Value: "$" + f}}})
	}
	for _, f := range q.Avg {
		group = append(group, bson.E{Key: docstore.AvgName(f), Value: bson.D{{Key: "$avg", Value: "$" + f}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)
	return pipeline, nil
}
