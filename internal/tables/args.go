package tables

import (
	"fmt"
	"sort"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
)

// ParseArgs decodes the JSON read contract:
//
//	{"where": {...}, "orderBy": {"f": "desc"} | [{"f": "asc"}, ...],
//	 "skip": 0, "take": 10, "select": {"f": true} | ["f"],
//	 "include": {"user": true} | ["user"]}
func ParseArgs(raw map[string]any) (Args, error) {
	var args Args
	for key, val := range raw {
		var err error
		switch key {
		case "where":
			args.Where, err = parseWhere(val)
		case "orderBy":
			args.OrderBy, err = parseOrderBy(val)
		case "skip":
			args.Skip, err = parseCount(key, val)
		case "take":
			args.Take, err = parseCount(key, val)
		case "select":
			args.Select, err = parseKeySet(key, val)
		case "include":
			args.Include, err = parseKeySet(key, val)
		case "data":
			// write payload, see ParseData
		default:
			err = fmt.Errorf("%w: unknown argument %q", ErrValidation, key)
		}
		if err != nil {
			return Args{}, err
		}
	}
	return args, nil
}

// ParseAggregateArgs decodes {"where", "groupBy", "sum", "avg", "populate"}.
func ParseAggregateArgs(raw map[string]any) (AggregateArgs, error) {
	var args AggregateArgs
	for key, val := range raw {
		var err error
		switch key {
		case "where":
			args.Where, err = parseWhere(val)
		case "groupBy":
			args.GroupBy, err = parseKeySet(key, val)
		case "sum":
			args.Sum, err = parseKeySet(key, val)
		case "avg":
			args.Avg, err = parseKeySet(key, val)
		case "populate", "include":
			args.Populate, err = parseKeySet(key, val)
		default:
			err = fmt.Errorf("%w: unknown aggregate argument %q", ErrValidation, key)
		}
		if err != nil {
			return AggregateArgs{}, err
		}
	}
	return args, nil
}

// ParseData extracts the "data" object of a write request.
func ParseData(raw map[string]any) (docstore.Document, error) {
	val, ok := raw["data"]
	if !ok {
		return nil, fmt.Errorf("%w: missing data", ErrValidation)
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: data must be an object, got %T", ErrValidation, val)
	}
	return docstore.Document(m), nil
}

func parseWhere(val any) (filter.Predicate, error) {
	if val == nil {
		return nil, nil
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: where must be an object, got %T", ErrValidation, val)
	}
	p, err := filter.FromWhere(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return p, nil
}

func parseOrderBy(val any) ([]docstore.SortKey, error) {
	switch v := val.(type) {
	case map[string]any:
		fields := make([]string, 0, len(v))
		for f := range v {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		keys := make([]docstore.SortKey, 0, len(fields))
		for _, f := range fields {
			k, err := sortKey(f, v[f])
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, nil
	case []any:
		var keys []docstore.SortKey
		for _, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: orderBy entries must be objects, got %T", ErrValidation, elem)
			}
			sub, err := parseOrderBy(m)
			if err != nil {
				return nil, err
			}
			keys = append(keys, sub...)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: orderBy must be an object or a list, got %T", ErrValidation, val)
	}
}

func sortKey(field string, dir any) (docstore.SortKey, error) {
	switch Direction(fmt.Sprint(dir)) {
	case Asc:
		return docstore.SortKey{Field: field}, nil
	case Desc:
		return docstore.SortKey{Field: field, Desc: true}, nil
	default:
		return docstore.SortKey{}, fmt.Errorf("%w: sort direction %v for %s", ErrValidation, dir, field)
	}
}

func parseCount(key string, val any) (int64, error) {
	var n int64
	switch v := val.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrValidation, key, v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrValidation, key, val)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrValidation, key)
	}
	return n, nil
}

// parseKeySet accepts ["a", "b"] (order kept) or {"a": true, "b": false}
// (true entries, ordered by name).
func parseKeySet(key string, val any) ([]string, error) {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s entries must be strings, got %T", ErrValidation, key, elem)
			}
			out = appendUnique(out, s)
		}
		return out, nil
	case []string:
		return appendUnique(nil, v...), nil
	case map[string]any:
		var out []string
		for name, on := range v {
			b, ok := on.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must be a boolean", ErrValidation, key, name)
			}
			if b {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list or an object, got %T", ErrValidation, key, val)
	}
}
