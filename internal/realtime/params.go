package realtime

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/roach88/livedoc/internal/canon"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// ErrInvalidQuery rejects a subscription request.
var ErrInvalidQuery = errors.New("invalid subscription query")

// QueryParams is the query a connection subscribes with.
type QueryParams struct {
	Table  string   `json:"table"`
	ID     string   `json:"id,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Status string   `json:"status,omitempty"`
}

// ParseQuery reads table, id, min, max and status from request parameters.
func ParseQuery(values url.Values) (QueryParams, error) {
	p := QueryParams{
		Table:  values.Get("table"),
		ID:     values.Get("id"),
		Status: values.Get("status"),
	}
	if p.Table == "" {
		return QueryParams{}, fmt.Errorf("%w: table is required", ErrInvalidQuery)
	}
	var err error
	if p.Min, err = parseBound(values, "min"); err != nil {
		return QueryParams{}, err
	}
	if p.Max, err = parseBound(values, "max"); err != nil {
		return QueryParams{}, err
	}
	return p, nil
}

func parseBound(values url.Values, key string) (*float64, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be a finite number, got %q", ErrInvalidQuery, key, raw)
	}
	return &f, nil
}

// Validate checks p against the table's channel configuration.
func (p QueryParams) Validate(s *schema.Schema) error {
	ch, ok := s.Channel(p.Table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidQuery, p.Table)
	}
	if p.Min != nil || p.Max != nil {
		if ch.Range == nil {
			return fmt.Errorf("%w: table %q has no range filter", ErrInvalidQuery, p.Table)
		}
		for _, b := range []*float64{p.Min, p.Max} {
			if b != nil && (*b < ch.Range.Min || *b > ch.Range.Max) {
				return fmt.Errorf("%w: %s bound %v outside [%v, %v]",
					ErrInvalidQuery, ch.Range.Field, *b, ch.Range.Min, ch.Range.Max)
			}
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("%w: min %v greater than max %v", ErrInvalidQuery, *p.Min, *p.Max)
		}
	}
	if p.Status != "" {
		if ch.Status == nil {
			return fmt.Errorf("%w: table %q has no status filter", ErrInvalidQuery, p.Table)
		}
		if !ch.Status.Allows(p.Status) {
			return fmt.Errorf("%w: status %q not one of %v", ErrInvalidQuery, p.Status, ch.Status.Values)
		}
	}
	return nil
}

// Predicate compiles p into the filter used both for in-memory matching and
// for the re-query. p must have passed Validate.
func (p QueryParams) Predicate(s *schema.Schema) filter.Predicate {
	ch, _ := s.Channel(p.Table)
	var preds []filter.Predicate
	if p.ID != "" {
		preds = append(preds, filter.Eq(ch.IDField, p.ID))
	}
	if ch.Range != nil {
		if p.Min != nil {
			preds = append(preds, filter.Gte(ch.Range.Field, *p.Min))
		}
		if p.Max != nil {
			preds = append(preds, filter.Lte(ch.Range.Field, *p.Max))
		}
	}
	if p.Status != "" && ch.Status != nil {
		preds = append(preds, filter.Eq(ch.Status.Field, p.Status))
	}
	return filter.Conjoin(preds...)
}

// Map is the JSON object echoed in subscribed and data frames.
func (p QueryParams) Map() map[string]any {
	m := map[string]any{"table": p.Table}
	if p.ID != "" {
		m["id"] = p.ID
	}
	if p.Min != nil {
		m["min"] = *p.Min
	}
	if p.Max != nil {
		m["max"] = *p.Max
	}
	if p.Status != "" {
		m["status"] = p.Status
	}
	return m
}

// Signature is the structural equality key of p.
func (p QueryParams) Signature() (string, error) {
	return canon.Signature(p.Map())
}
