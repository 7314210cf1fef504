package filter

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidWhere is wrapped by every parse failure.
var ErrInvalidWhere = errors.New("invalid where clause")

// FromWhere parses a where map into a predicate.
//
//	{"status": "open"}                         status eq "open"
//	{"stock": {"gte": 10, "lt": 20}}           stock gte 10 and stock lt 20
//	{"_id": {"in": ["a", "b"]}}                _id in [a b]
//	{"owner": {"not": null}}                   owner ne nil
//	{"AND": [{"a": 1}, {"b": 2}]}              a eq 1 and b eq 2
//
// Keys are processed in sorted order so the result is deterministic.
// An empty or nil map yields a nil predicate.
func FromWhere(where map[string]any) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []Predicate
	for _, key := range keys {
		val := where[key]
		if key == "AND" {
			sub, err := parseAnd(val)
			if err != nil {
				return nil, err
			}
			preds = append(preds, sub...)
			continue
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidWhere)
		}
		p, err := parseField(key, val)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return Conjoin(preds...), nil
}

func parseAnd(val any) ([]Predicate, error) {
	var items []any
	switch v := val.(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%w: AND expects a list of where maps, got %T", ErrInvalidWhere, val)
	}
	var preds []Predicate
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: AND[%d] is %T, not a where map", ErrInvalidWhere, i, item)
		}
		p, err := FromWhere(m)
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	return preds, nil
}

var compareOps = map[string]Op{
	"equals": OpEq,
	"not":    OpNe,
	"gt":     OpGt,
	"gte":    OpGte,
	"lt":     OpLt,
	"lte":    OpLte,
}

func parseField(field string, val any) (Predicate, error) {
	ops, ok := val.(map[string]any)
	if !ok {
		if _, isList := val.([]any); isList {
			return nil, fmt.Errorf("%w: %s: list equality is not supported, use {in: [...]}", ErrInvalidWhere, field)
		}
		return Eq(field, val), nil
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: %s: empty operator map", ErrInvalidWhere, field)
	}

	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	var preds []Predicate
	for _, name := range names {
		arg := ops[name]
		if op, ok := compareOps[name]; ok {
			preds = append(preds, Compare{Field: field, Op: op, Value: arg})
			continue
		}
		switch name {
		case "in", "notIn":
			values, err := toList(arg)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidWhere, field, name, err)
			}
			preds = append(preds, In{Field: field, Values: values, Not: name == "notIn"})
		default:
			return nil, fmt.Errorf("%w: %s: unknown operator %q", ErrInvalidWhere, field, name)
		}
	}
	return Conjoin(preds...), nil
}

func toList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}
