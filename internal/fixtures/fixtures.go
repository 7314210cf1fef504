// Package fixtures loads YAML seed files and inserts them through the table
// clients, so seeded writes go through the same validation and hooks as any
// other create.
//
// A fixture file maps table names to lists of documents:
//
//	users:
//	  - _key: ada
//	    name: Ada
//	tickets:
//	  - title: first
//	    user: "@ada"
//	    watchers: ["@ada"]
//
// Tables are seeded in file order. A document's optional _key names it; a
// later string value "@key" is replaced with that document's id. "@@text"
// yields the literal "@text".
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/livedoc/internal/schema"
	"github.com/roach88/livedoc/internal/tables"
)

// KeyField names a fixture document for later @key references.
const KeyField = "_key"

// ErrUnknownAlias is returned when a value references an undefined @key.
var ErrUnknownAlias = errors.New("unknown fixture alias")

// Record is one fixture document.
type Record struct {
	Key  string
	Data map[string]any
}

// Set is the ordered list of records for one table.
type Set struct {
	Table   string
	Records []Record
}

// Seeded reports one inserted document.
type Seeded struct {
	Table string `json:"table"`
	Key   string `json:"key,omitempty"`
	ID    string `json:"id"`
}

// Load reads and parses a fixture file.
func Load(path string) ([]Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML, keeping table order.
func Parse(src []byte) ([]Set, error) {
	var root yaml.Node
	decoder := yaml.NewDecoder(bytes.NewReader(src))
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: fixture file must map table names to document lists", doc.Line)
	}

	keys := make(map[string]bool)
	sets := make([]Set, 0, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name, list := doc.Content[i], doc.Content[i+1]
		if list.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: table %q must hold a list of documents", list.Line, name.Value)
		}
		set := Set{Table: name.Value, Records: make([]Record, 0, len(list.Content))}
		for _, item := range list.Content {
			var data map[string]any
			if err := item.Decode(&data); err != nil {
				return nil, fmt.Errorf("line %d: table %q: %w", item.Line, name.Value, err)
			}
			rec, err := newRecord(data)
			if err != nil {
				return nil, fmt.Errorf("line %d: table %q: %w", item.Line, name.Value, err)
			}
			if rec.Key != "" {
				if keys[rec.Key] {
					return nil, fmt.Errorf("line %d: duplicate fixture key %q", item.Line, rec.Key)
				}
				keys[rec.Key] = true
			}
			set.Records = append(set.Records, rec)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func newRecord(data map[string]any) (Record, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, ok := data[KeyField]
	if !ok {
		return Record{Data: data}, nil
	}
	key, ok := raw.(string)
	if !ok || key == "" {
		return Record{}, fmt.Errorf("%s must be a non-empty string", KeyField)
	}
	delete(data, KeyField)
	return Record{Key: key, Data: data}, nil
}

// Apply inserts every record in order and returns what was created. It stops
// at the first failure; earlier inserts are not rolled back.
func Apply(ctx context.Context, db *tables.DB, sets []Set) ([]Seeded, error) {
	ids := make(map[string]string)
	var out []Seeded
	for _, set := range sets {
		client, err := db.Table(set.Table)
		if err != nil {
			return out, err
		}
		for i, rec := range set.Records {
			resolved, err := resolve(rec.Data, ids)
			if err != nil {
				return out, fmt.Errorf("%s[%d]: %w", set.Table, i, err)
			}
			created, err := client.Create(ctx, resolved.(map[string]any), tables.Args{})
			if err != nil {
				return out, fmt.Errorf("%s[%d]: %w", set.Table, i, err)
			}
			id, _ := created[schema.FieldID].(string)
			if rec.Key != "" {
				ids[rec.Key] = id
			}
			out = append(out, Seeded{Table: set.Table, Key: rec.Key, ID: id})
		}
	}
	return out, nil
}

func resolve(v any, ids map[string]string) (any, error) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "@@") {
			return val[1:], nil
		}
		if !strings.HasPrefix(val, "@") {
			return val, nil
		}
		id, ok := ids[val[1:]]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownAlias, val)
		}
		return id, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			r, err := resolve(sub, ids)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			r, err := resolve(sub, ids)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
