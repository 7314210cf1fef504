package schema

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ErrMalformedTable is wrapped by every DefinitionError.
var ErrMalformedTable = errors.New("malformed table definition")

// DefinitionError reports an invalid table, field or channel declaration.
// Pos is set when the definition came from a CUE file.
type DefinitionError struct {
	Table   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *DefinitionError) Error() string {
	loc := e.Table
	if e.Field != "" {
		loc = e.Table + "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), loc, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

func (e *DefinitionError) Unwrap() error {
	return ErrMalformedTable
}
