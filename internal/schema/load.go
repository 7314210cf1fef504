package schema

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// LoadDir loads every CUE file of the package in dir and builds a Schema
// from its `table` and `channel` blocks.
//
//	table: tickets: {
//		title: "string"
//		user:  {ref: "users"}
//	}
//	channel: tickets: {
//		range: {field: "stock", min: 0, max: 1000}
//	}
func LoadDir(dir string) (*Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}
	return FromValue(value)
}

// Parse builds a Schema from a single CUE source.
func Parse(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return FromValue(value)
}

// FromValue builds a Schema from an evaluated CUE value.
func FromValue(v cue.Value) (*Schema, error) {
	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &DefinitionError{Table: "table", Message: "no tables declared", Pos: v.Pos()}
	}

	var tables []Table
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		t, err := parseTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	var channels []Channel
	channelsVal := v.LookupPath(cue.ParsePath("channel"))
	if channelsVal.Exists() {
		citer, err := channelsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for citer.Next() {
			c, err := parseChannel(citer.Label(), citer.Value())
			if err != nil {
				return nil, err
			}
			channels = append(channels, c)
		}
	}

	return New(tables, channels)
}

func parseTable(name string, v cue.Value) (Table, error) {
	if v.IncompleteKind() != cue.StructKind {
		return Table{}, &DefinitionError{Table: name, Message: "table must be a field map", Pos: v.Pos()}
	}
	t := Table{Name: name}
	iter, err := v.Fields()
	if err != nil {
		return Table{}, formatCUEError(err)
	}
	for iter.Next() {
		f, err := parseField(name, iter.Label(), iter.Value())
		if err != nil {
			return Table{}, err
		}
		t.Fields = append(t.Fields, f)
	}
	return t, nil
}

// parseField accepts either a kind name ("string") or a struct with
// kind/optional/nullable/ref/array keys.
func parseField(table, name string, v cue.Value) (Field, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		f := Field{Name: name, Kind: Kind(s)}
		if !validKinds[f.Kind] || f.Kind == KindReference || f.Kind == KindArray {
			return Field{}, &DefinitionError{Table: table, Field: name, Message: fmt.Sprintf("kind %q needs the struct form or is unknown", s), Pos: v.Pos()}
		}
		return f, nil
	case cue.StructKind:
	default:
		return Field{}, &DefinitionError{Table: table, Field: name, Message: "field must be a kind name or a struct", Pos: v.Pos()}
	}

	f := Field{Name: name, Kind: KindUnknown}
	if kv := v.LookupPath(cue.ParsePath("kind")); kv.Exists() {
		s, err := kv.String()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		f.Kind = Kind(s)
	}
	if rv := v.LookupPath(cue.ParsePath("ref")); rv.Exists() {
		target, err := rv.String()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		f.Kind = KindReference
		f.Target = target
	}
	if av := v.LookupPath(cue.ParsePath("array")); av.Exists() {
		elem, err := parseField(table, name, av)
		if err != nil {
			return Field{}, err
		}
		f.Kind = KindArray
		f.Elem = &elem
	}
	var err error
	if f.Optional, err = lookupBool(v, "optional"); err != nil {
		return Field{}, err
	}
	if f.Nullable, err = lookupBool(v, "nullable"); err != nil {
		return Field{}, err
	}
	if err := f.validate(table); err != nil {
		var de *DefinitionError
		if errors.As(err, &de) && !de.Pos.IsValid() {
			de.Pos = v.Pos()
		}
		return Field{}, err
	}
	return f, nil
}

func parseChannel(table string, v cue.Value) (Channel, error) {
	if v.IncompleteKind() != cue.StructKind {
		return Channel{}, &DefinitionError{Table: table, Message: "channel must be a struct", Pos: v.Pos()}
	}
	c := Channel{Table: table, IDField: FieldID}
	if iv := v.LookupPath(cue.ParsePath("id")); iv.Exists() {
		s, err := iv.String()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		c.IDField = s
	}
	if rv := v.LookupPath(cue.ParsePath("range")); rv.Exists() {
		field, err := rv.LookupPath(cue.ParsePath("field")).String()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		lo, err := rv.LookupPath(cue.ParsePath("min")).Float64()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		hi, err := rv.LookupPath(cue.ParsePath("max")).Float64()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		c.Range = &RangeFilter{Field: field, Min: lo, Max: hi}
	}
	if sv := v.LookupPath(cue.ParsePath("status")); sv.Exists() {
		field, err := sv.LookupPath(cue.ParsePath("field")).String()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		list, err := sv.LookupPath(cue.ParsePath("values")).List()
		if err != nil {
			return Channel{}, formatCUEError(err)
		}
		st := &StatusFilter{Field: field}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return Channel{}, formatCUEError(err)
			}
			st.Values = append(st.Values, s)
		}
		c.Status = st
	}
	return c, nil
}

func lookupBool(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// formatCUEError keeps the first CUE error with its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &DefinitionError{Table: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
