package filter

import (
	"reflect"
	"strings"
	"time"
)

// Match reports whether doc satisfies p. A nil predicate matches everything.
//
// Match is a pure function; it never touches a store.
func Match(p Predicate, doc map[string]any) bool {
	switch v := unwrap(p).(type) {
	case nil:
		return true
	case And:
		for _, sub := range v.Predicates {
			if !Match(sub, doc) {
				return false
			}
		}
		return true
	case Compare:
		return matchCompare(v, doc)
	case In:
		return matchIn(v, doc)
	default:
		return false
	}
}

func matchCompare(c Compare, doc map[string]any) bool {
	candidates := Lookup(doc, c.Field)
	switch c.Op {
	case OpEq:
		return anyEqual(candidates, c.Value)
	case OpNe:
		return !anyEqual(candidates, c.Value)
	}
	for _, cand := range candidates {
		cmp, ok := Compare3(cand, c.Value)
		if !ok {
			continue
		}
		switch c.Op {
		case OpGt:
			if cmp > 0 {
				return true
			}
		case OpGte:
			if cmp >= 0 {
				return true
			}
		case OpLt:
			if cmp < 0 {
				return true
			}
		case OpLte:
			if cmp <= 0 {
				return true
			}
		}
	}
	return false
}

func matchIn(in In, doc map[string]any) bool {
	candidates := Lookup(doc, in.Field)
	hit := false
	for _, want := range in.Values {
		if anyEqual(candidates, want) {
			hit = true
			break
		}
	}
	if in.Not {
		return !hit
	}
	return hit
}

// anyEqual treats a missing field (nil candidates) as equal to nil only.
func anyEqual(candidates []any, want any) bool {
	if candidates == nil {
		return want == nil
	}
	for _, c := range candidates {
		if Equal(c, want) {
			return true
		}
	}
	return false
}

// Lookup resolves a dotted path and returns the candidate values a predicate
// is evaluated against. Arrays along the path fan out; an array at the end
// contributes its elements. A missing path yields nil (no candidates).
func Lookup(doc map[string]any, path string) []any {
	return lookup(doc, strings.Split(path, "."))
}

func lookup(v any, parts []string) []any {
	if len(parts) == 0 {
		if list, ok := asList(v); ok {
			if len(list) == 0 {
				return []any{}
			}
			return list
		}
		return []any{v}
	}
	switch node := v.(type) {
	case map[string]any:
		child, ok := node[parts[0]]
		if !ok {
			return nil
		}
		return lookup(child, parts[1:])
	default:
		list, ok := asList(v)
		if !ok {
			return nil
		}
		var out []any
		for _, elem := range list {
			out = append(out, lookup(elem, parts)...)
		}
		return out
	}
}

// asList accepts []any and typed slices (except []byte).
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// hexer is satisfied by store-native ids (primitive.ObjectID).
type hexer interface {
	Hex() string
}

// Equal compares two scalar values across numeric types. Native ids compare
// equal to their hex string form.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if sa, ok := toText(a); ok {
		sb, ok := toText(b)
		return ok && sa == sb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Compare3 orders two values of the same type class.
// ok is false when the values are not comparable.
func Compare3(a, b any) (cmp int, ok bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := toText(a); ok {
		sb, ok := toText(b)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	return 0, false
}

func toText(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case hexer:
		return s.Hex(), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
