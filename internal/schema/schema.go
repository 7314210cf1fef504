package schema

import (
	"fmt"
)

// Schema is the validated set of tables, their channel configs and the
// reference map built from them.
type Schema struct {
	tables   map[string]*Table
	order    []string
	channels map[string]Channel
	refs     *RefMap
}

// New validates the tables and channels and builds the reference map.
// Any malformed definition is returned as a *DefinitionError.
func New(tables []Table, channels []Channel) (*Schema, error) {
	s := &Schema{
		tables:   make(map[string]*Table, len(tables)),
		order:    make([]string, 0, len(tables)),
		channels: make(map[string]Channel, len(channels)),
	}

	for i := range tables {
		t := tables[i]
		if !identPattern.MatchString(t.Name) {
			return nil, &DefinitionError{Table: t.Name, Message: "table name must be an identifier"}
		}
		if _, dup := s.tables[t.Name]; dup {
			return nil, &DefinitionError{Table: t.Name, Message: "duplicate table"}
		}
		t.index = make(map[string]int, len(t.Fields))
		for j, f := range t.Fields {
			if f.Name == FieldID || f.Name == FieldCreationTime {
				return nil, &DefinitionError{Table: t.Name, Field: f.Name, Message: "system field cannot be declared"}
			}
			if !identPattern.MatchString(f.Name) {
				return nil, &DefinitionError{Table: t.Name, Field: f.Name, Message: "field name must be an identifier"}
			}
			if _, dup := t.index[f.Name]; dup {
				return nil, &DefinitionError{Table: t.Name, Field: f.Name, Message: "duplicate field"}
			}
			if err := f.validate(t.Name); err != nil {
				return nil, err
			}
			t.index[f.Name] = j
		}
		s.tables[t.Name] = &t
		s.order = append(s.order, t.Name)
	}

	// Reference targets can only be checked once every table is known.
	for _, name := range s.order {
		for _, f := range s.tables[name].Fields {
			target, _, ok := f.Reference()
			if !ok {
				continue
			}
			if _, exists := s.tables[target]; !exists {
				return nil, &DefinitionError{Table: name, Field: f.Name, Message: fmt.Sprintf("reference to unknown table %q", target)}
			}
		}
	}

	for _, c := range channels {
		if err := s.addChannel(c); err != nil {
			return nil, err
		}
	}

	s.refs = buildRefMap(s.order, s.tables)
	return s, nil
}

func (s *Schema) addChannel(c Channel) error {
	t, ok := s.tables[c.Table]
	if !ok {
		return &DefinitionError{Table: c.Table, Message: "channel for unknown table"}
	}
	if c.IDField == "" {
		c.IDField = FieldID
	}
	if _, ok := t.Field(c.IDField); !ok {
		return &DefinitionError{Table: c.Table, Field: c.IDField, Message: "channel id field does not exist"}
	}
	if c.Range != nil {
		f, ok := t.Field(c.Range.Field)
		if !ok {
			return &DefinitionError{Table: c.Table, Field: c.Range.Field, Message: "channel range field does not exist"}
		}
		// Range bounds are plain numbers; date fields would compare as time.
		if f.Kind != KindNumber {
			return &DefinitionError{Table: c.Table, Field: c.Range.Field, Message: "channel range field must be a number"}
		}
		if c.Range.Min > c.Range.Max {
			return &DefinitionError{Table: c.Table, Field: c.Range.Field, Message: "channel range min exceeds max"}
		}
	}
	if c.Status != nil {
		if _, ok := t.Field(c.Status.Field); !ok {
			return &DefinitionError{Table: c.Table, Field: c.Status.Field, Message: "channel status field does not exist"}
		}
		if len(c.Status.Values) == 0 {
			return &DefinitionError{Table: c.Table, Field: c.Status.Field, Message: "channel status needs at least one value"}
		}
	}
	s.channels[c.Table] = c
	return nil
}

// MustNew is like New but panics on error.
// Use only in tests or with definitions known to be valid.
func MustNew(tables []Table, channels []Channel) *Schema {
	s, err := New(tables, channels)
	if err != nil {
		panic(err)
	}
	return s
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns all tables in declaration order.
func (s *Schema) Tables() []*Table {
	out := make([]*Table, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tables[name])
	}
	return out
}

// Channel returns the subscription config for a table. Tables without an
// explicit channel accept an id filter on _id only.
func (s *Schema) Channel(table string) (Channel, bool) {
	if _, ok := s.tables[table]; !ok {
		return Channel{}, false
	}
	if c, ok := s.channels[table]; ok {
		return c, true
	}
	return Channel{Table: table, IDField: FieldID}, true
}

// Refs returns the reference map.
func (s *Schema) Refs() *RefMap {
	return s.refs
}
