package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWhere(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
		want  Predicate
	}{
		{
			name:  "nil",
			where: nil,
			want:  nil,
		},
		{
			name:  "scalar equality",
			where: map[string]any{"status": "open"},
			want:  Eq("status", "open"),
		},
		{
			name:  "null equality",
			where: map[string]any{"owner": nil},
			want:  Eq("owner", nil),
		},
		{
			name:  "operators sorted",
			where: map[string]any{"stock": map[string]any{"lte": 20.0, "gte": 10.0}},
			want:  And{Predicates: []Predicate{Gte("stock", 10.0), Lte("stock", 20.0)}},
		},
		{
			name:  "in list",
			where: map[string]any{"_id": map[string]any{"in": []any{"a", "b"}}},
			want:  OneOf("_id", "a", "b"),
		},
		{
			name:  "notIn list of strings",
			where: map[string]any{"status": map[string]any{"notIn": []string{"closed"}}},
			want:  In{Field: "status", Values: []any{"closed"}, Not: true},
		},
		{
			name:  "equals and not",
			where: map[string]any{"a": map[string]any{"equals": 1.0}, "b": map[string]any{"not": "x"}},
			want:  And{Predicates: []Predicate{Eq("a", 1.0), Ne("b", "x")}},
		},
		{
			name: "AND list flattens",
			where: map[string]any{
				"AND":    []any{map[string]any{"a": 1.0}, map[string]any{"b": 2.0}},
				"status": "open",
			},
			want: And{Predicates: []Predicate{Eq("a", 1.0), Eq("b", 2.0), Eq("status", "open")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromWhere(tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromWhere_Errors(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
		want  string
	}{
		{"unknown operator", map[string]any{"a": map[string]any{"like": "x"}}, `unknown operator "like"`},
		{"empty operator map", map[string]any{"a": map[string]any{}}, "empty operator map"},
		{"in without list", map[string]any{"a": map[string]any{"in": "x"}}, "expected a list"},
		{"list equality", map[string]any{"a": []any{1.0}}, "list equality is not supported"},
		{"AND not a list", map[string]any{"AND": "x"}, "AND expects a list"},
		{"AND item not a map", map[string]any{"AND": []any{1.0}}, "not a where map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromWhere(tt.where)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidWhere))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConjoin(t *testing.T) {
	assert.Nil(t, Conjoin())
	assert.Nil(t, Conjoin(nil, And{}))
	assert.Equal(t, Eq("a", 1), Conjoin(nil, Eq("a", 1)))

	got := Conjoin(And{Predicates: []Predicate{Eq("a", 1), Eq("b", 2)}}, &And{Predicates: []Predicate{Eq("c", 3)}})
	assert.Equal(t, And{Predicates: []Predicate{Eq("a", 1), Eq("b", 2), Eq("c", 3)}}, got)

	ptr := &Compare{Field: "d", Op: OpGt, Value: 4}
	assert.Equal(t, Gt("d", 4), Conjoin(ptr))
}

func TestString(t *testing.T) {
	p := Conjoin(Eq("status", "open"), Gte("stock", 10), In{Field: "tag", Values: []any{"x"}, Not: true})
	assert.Equal(t, "(status eq open and stock gte 10 and tag nin [x])", String(p))
	assert.Equal(t, "true", String(nil))
}
