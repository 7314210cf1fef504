package filter

import "fmt"

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it, so
// adapters can switch over it exhaustively.
type Predicate interface {
	predicateNode()
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Compare compares a field (dotted path allowed) to a literal value.
type Compare struct {
	Field string
	Op    Op
	Value any
}

func (Compare) predicateNode() {}

// In matches when the field equals any of Values. Not inverts it.
type In struct {
	Field  string
	Values []any
	Not    bool
}

func (In) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Eq builds field == value.
func Eq(field string, value any) Compare { return Compare{Field: field, Op: OpEq, Value: value} }

// Ne builds field != value.
func Ne(field string, value any) Compare { return Compare{Field: field, Op: OpNe, Value: value} }

// Gt builds field > value.
func Gt(field string, value any) Compare { return Compare{Field: field, Op: OpGt, Value: value} }

// Gte builds field >= value.
func Gte(field string, value any) Compare { return Compare{Field: field, Op: OpGte, Value: value} }

// Lt builds field < value.
func Lt(field string, value any) Compare { return Compare{Field: field, Op: OpLt, Value: value} }

// Lte builds field <= value.
func Lte(field string, value any) Compare { return Compare{Field: field, Op: OpLte, Value: value} }

// OneOf builds field IN values.
func OneOf(field string, values ...any) In { return In{Field: field, Values: values} }

// Conjoin ANDs predicates together, dropping nils and flattening nested Ands.
// Returns nil when nothing remains.
func Conjoin(ps ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range ps {
		switch v := unwrap(p).(type) {
		case nil:
		case And:
			if c := Conjoin(v.Predicates...); c != nil {
				flat = append(flat, flattenAnd(c)...)
			}
		default:
			flat = append(flat, v)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return And{Predicates: flat}
	}
}

func flattenAnd(p Predicate) []Predicate {
	if a, ok := p.(And); ok {
		return a.Predicates
	}
	return []Predicate{p}
}

// String renders a predicate for logs and error messages.
func String(p Predicate) string {
	switch v := unwrap(p).(type) {
	case nil:
		return "true"
	case Compare:
		return fmt.Sprintf("%s %s %v", v.Field, v.Op, v.Value)
	case In:
		if v.Not {
			return fmt.Sprintf("%s nin %v", v.Field, v.Values)
		}
		return fmt.Sprintf("%s in %v", v.Field, v.Values)
	case And:
		s := "("
		for i, sub := range v.Predicates {
			if i > 0 {
				s += " and "
			}
			s += String(sub)
		}
		return s + ")"
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

// unwrap dereferences pointer predicates so switches only handle values.
func unwrap(p Predicate) Predicate {
	switch v := p.(type) {
	case *Compare:
		if v == nil {
			return nil
		}
		return *v
	case *In:
		if v == nil {
			return nil
		}
		return *v
	case *And:
		if v == nil {
			return nil
		}
		return *v
	default:
		return p
	}
}
