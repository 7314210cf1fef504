package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/tables"
)

// ErrUnknownOperation is returned for an op outside the table contract.
var ErrUnknownOperation = errors.New("unknown operation")

// Operations lists the table API operations.
var Operations = []string{
	"findMany", "findFirst", "findUnique",
	"create", "update", "updateMany",
	"delete", "deleteMany", "count", "aggregate",
}

// Execute runs one table operation with JSON-decoded arguments. It backs
// both the HTTP table API and the CLI query command.
func Execute(ctx context.Context, db *tables.DB, table, op string, raw map[string]any) (any, error) {
	c, err := db.Table(table)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if op == "aggregate" {
		args, err := tables.ParseAggregateArgs(raw)
		if err != nil {
			return nil, err
		}
		return c.Aggregate(ctx, args)
	}

	args, err := tables.ParseArgs(raw)
	if err != nil {
		return nil, err
	}
	switch op {
	case "findMany":
		return c.FindMany(ctx, args)
	case "findFirst":
		return c.FindFirst(ctx, args)
	case "findUnique":
		return c.FindUnique(ctx, args)
	case "create":
		data, err := tables.ParseData(raw)
		if err != nil {
			return nil, err
		}
		return c.Create(ctx, data, args)
	case "update":
		data, err := tables.ParseData(raw)
		if err != nil {
			return nil, err
		}
		return c.Update(ctx, data, args)
	case "updateMany":
		data, err := tables.ParseData(raw)
		if err != nil {
			return nil, err
		}
		n, err := c.UpdateMany(ctx, data, args.Where)
		return countResult(n), err
	case "delete":
		return c.Delete(ctx, args)
	case "deleteMany":
		n, err := c.DeleteMany(ctx, args.Where)
		return countResult(n), err
	case "count":
		n, err := c.Count(ctx, args.Where)
		return countResult(n), err
	default:
		return nil, fmt.Errorf("%w %q: expected one of %v", ErrUnknownOperation, op, Operations)
	}
}

func countResult(n int64) map[string]any {
	return map[string]any{"count": n}
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	table, op := r.PathValue("table"), r.PathValue("op")

	var raw map[string]any
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := Execute(r.Context(), s.db, table, op, raw)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Errorw("table operation failed", "table", table, "op", op, "error", err)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tables.ErrUnknownTable), errors.Is(err, ErrUnknownOperation):
		return http.StatusNotFound
	case errors.Is(err, tables.ErrValidation), errors.Is(err, filter.ErrInvalidWhere):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
