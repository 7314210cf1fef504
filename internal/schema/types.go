package schema

import (
	"fmt"
	"regexp"
)

// Kind is the base kind of a field after optional/nullable unwrapping.
type Kind string

const (
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindBoolean   Kind = "boolean"
	KindDate      Kind = "date"
	KindObject    Kind = "object"
	KindArray     Kind = "array"
	KindReference Kind = "reference"
	KindUnknown   Kind = "unknown"
)

// System fields present on every document.
const (
	FieldID           = "_id"
	FieldCreationTime = "_creationTime"
)

var validKinds = map[Kind]bool{
	KindString:    true,
	KindNumber:    true,
	KindBoolean:   true,
	KindDate:      true,
	KindObject:    true,
	KindArray:     true,
	KindReference: true,
	KindUnknown:   true,
}

// identPattern restricts table and field names; table names become SQL
// identifiers in the sqlite adapter.
var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Field describes one field of a table.
//
// Target is set only for KindReference. Elem is set only for KindArray and
// may itself be an array or a reference.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Nullable bool
	Target   string
	Elem     *Field
}

// Reference reports the table this field points at, unwrapping arrays.
// many is true when the reference sits inside an array.
func (f Field) Reference() (target string, many bool, ok bool) {
	switch f.Kind {
	case KindReference:
		return f.Target, false, true
	case KindArray:
		if f.Elem == nil {
			return "", false, false
		}
		target, _, ok := f.Elem.Reference()
		return target, true, ok
	default:
		return "", false, false
	}
}

func (f Field) validate(table string) error {
	if !validKinds[f.Kind] {
		return &DefinitionError{Table: table, Field: f.Name, Message: fmt.Sprintf("unknown kind %q", f.Kind)}
	}
	switch f.Kind {
	case KindReference:
		if f.Target == "" {
			return &DefinitionError{Table: table, Field: f.Name, Message: "reference requires a target table"}
		}
	case KindArray:
		if f.Elem == nil {
			return &DefinitionError{Table: table, Field: f.Name, Message: "array requires an element descriptor"}
		}
		return f.Elem.validate(table)
	}
	return nil
}

// Table is a named collection with a fixed field set.
type Table struct {
	Name   string
	Fields []Field

	index map[string]int
}

// NewTable builds a table, keeping fields in the given order.
func NewTable(name string, fields ...Field) Table {
	return Table{Name: name, Fields: fields}
}

// Field returns the descriptor for name. System fields are reported with
// KindString (_id) and KindNumber (_creationTime).
func (t *Table) Field(name string) (Field, bool) {
	switch name {
	case FieldID:
		return Field{Name: FieldID, Kind: KindString}, true
	case FieldCreationTime:
		return Field{Name: FieldCreationTime, Kind: KindNumber}, true
	}
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// Channel configures which subscription filters a table accepts.
type Channel struct {
	Table   string
	IDField string
	Range   *RangeFilter
	Status  *StatusFilter
}

// RangeFilter bounds the numeric min/max subscription parameters.
type RangeFilter struct {
	Field string
	Min   float64
	Max   float64
}

// StatusFilter enumerates the accepted status subscription values.
type StatusFilter struct {
	Field  string
	Values []string
}

// Allows reports whether status is one of the enumerated values.
func (s *StatusFilter) Allows(status string) bool {
	for _, v := range s.Values {
		if v == status {
			return true
		}
	}
	return false
}
