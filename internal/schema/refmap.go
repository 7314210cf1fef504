package schema

import "sort"

// Ref is a forward reference from a field to a target table.
type Ref struct {
	Field  string
	Target string
	Many   bool // reference held inside an array
}

// Backref names a (table, field) pair that references some table.
type Backref struct {
	Table string
	Field string
}

// RefMap is the forward and backward reference index.
//
// Forward: table → field → Ref.
// Backward: table → []Backref, ordered by (source table declaration, field).
type RefMap struct {
	forward  map[string]map[string]Ref
	backward map[string][]Backref
}

func buildRefMap(order []string, tables map[string]*Table) *RefMap {
	m := &RefMap{
		forward:  make(map[string]map[string]Ref),
		backward: make(map[string][]Backref),
	}
	for _, name := range order {
		t := tables[name]
		for _, f := range t.Fields {
			target, many, ok := f.Reference()
			if !ok {
				continue
			}
			if m.forward[name] == nil {
				m.forward[name] = make(map[string]Ref)
			}
			m.forward[name][f.Name] = Ref{Field: f.Name, Target: target, Many: many}
			m.backward[target] = append(m.backward[target], Backref{Table: name, Field: f.Name})
		}
	}
	return m
}

// Forward looks up the reference held by table.field.
func (m *RefMap) Forward(table, field string) (Ref, bool) {
	r, ok := m.forward[table][field]
	return r, ok
}

// ForwardFields returns the reference fields of table sorted by name.
func (m *RefMap) ForwardFields(table string) []Ref {
	refs := make([]Ref, 0, len(m.forward[table]))
	for _, r := range m.forward[table] {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Field < refs[j].Field })
	return refs
}

// Backward returns every (table, field) that references table.
func (m *RefMap) Backward(table string) []Backref {
	out := make([]Backref, len(m.backward[table]))
	copy(out, m.backward[table])
	return out
}

// BackwardFrom returns the first field of source that references table.
func (m *RefMap) BackwardFrom(table, source string) (Backref, bool) {
	for _, b := range m.backward[table] {
		if b.Table == source {
			return b, true
		}
	}
	return Backref{}, false
}

// IsIDField reports whether values of table.field are document ids.
func (m *RefMap) IsIDField(table, field string) bool {
	if field == FieldID {
		return true
	}
	_, ok := m.forward[table][field]
	return ok
}
