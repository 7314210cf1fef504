package filter

import (
	"fmt"
	"strings"
)

// MapValues returns a copy of p with every literal passed through fn.
// fn receives the field path and the literal; In values are mapped one by one.
// Used to convert external string ids to store-native ids and back.
func MapValues(p Predicate, fn func(field string, v any) any) Predicate {
	switch v := unwrap(p).(type) {
	case nil:
		return nil
	case Compare:
		return Compare{Field: v.Field, Op: v.Op, Value: fn(v.Field, v.Value)}
	case In:
		values := make([]any, len(v.Values))
		for i, val := range v.Values {
			values[i] = fn(v.Field, val)
		}
		return In{Field: v.Field, Values: values, Not: v.Not}
	case And:
		preds := make([]Predicate, len(v.Predicates))
		for i, sub := range v.Predicates {
			preds[i] = MapValues(sub, fn)
		}
		return And{Predicates: preds}
	default:
		return p
	}
}

// Fields lists the field paths referenced by p, in traversal order.
func Fields(p Predicate) []string {
	var out []string
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch v := unwrap(p).(type) {
		case Compare:
			out = append(out, v.Field)
		case In:
			out = append(out, v.Field)
		case And:
			for _, sub := range v.Predicates {
				walk(sub)
			}
		}
	}
	walk(p)
	return out
}

// Validate checks that every referenced field is known (by its first path
// segment) and that range operators carry a non-nil literal.
func Validate(p Predicate, known func(field string) bool) error {
	var check func(Predicate) error
	check = func(p Predicate) error {
		switch v := unwrap(p).(type) {
		case nil:
			return nil
		case Compare:
			if !known(rootField(v.Field)) {
				return fmt.Errorf("%w: unknown field %q", ErrInvalidWhere, v.Field)
			}
			if v.Value == nil && v.Op != OpEq && v.Op != OpNe {
				return fmt.Errorf("%w: %s %s needs a value", ErrInvalidWhere, v.Field, v.Op)
			}
		case In:
			if !known(rootField(v.Field)) {
				return fmt.Errorf("%w: unknown field %q", ErrInvalidWhere, v.Field)
			}
		case And:
			for _, sub := range v.Predicates {
				if err := check(sub); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: unsupported predicate %T", ErrInvalidWhere, p)
		}
		return nil
	}
	return check(p)
}

func rootField(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
