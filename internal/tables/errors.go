package tables

import (
	"errors"

	"github.com/roach88/livedoc/internal/docstore"
)

var (
	// ErrUnknownTable is returned when a table is not part of the schema.
	ErrUnknownTable = docstore.ErrUnknownTable

	// ErrValidation rejects malformed arguments: unknown fields, a missing
	// where clause on FindUnique, writes to system fields, an aggregate
	// without accumulators.
	ErrValidation = errors.New("validation failed")
)
