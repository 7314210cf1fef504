package sqlitestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// compiler turns docstore queries into parameterized SQL for one table.
// Values are NEVER interpolated; they always go through ? placeholders.
type compiler struct {
	table string // quoted identifier
}

func newCompiler(table string) *compiler {
	return &compiler{table: quoteIdent(table)}
}

// compileFind builds the SELECT for a FindQuery.
func (c *compiler) compileFind(q docstore.FindQuery) (string, []any, error) {
	var b strings.Builder
	var params []any

	fmt.Fprintf(&b, "SELECT id, creation_time, body FROM %s", c.table)

	where, whereParams, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)
	params = append(params, whereParams...)

	order, orderParams := c.compileOrder(q.Sort)
	b.WriteString(order)
	params = append(params, orderParams...)

	if q.Limit > 0 || q.Skip > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, limit, q.Skip)
	}

	return b.String(), params, nil
}

// compileCount builds a COUNT(*) for a filter.
func (c *compiler) compileCount(p filter.Predicate) (string, []any, error) {
	where, params, err := c.compileWhere(p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", c.table, where), params, nil
}

// compileDelete builds a DELETE for a filter.
func (c *compiler) compileDelete(p filter.Predicate) (string, []any, error) {
	where, params, err := c.compileWhere(p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s", c.table, where), params, nil
}

// compileUpdate builds an UPDATE that json_set()s each field. Values arrive
// JSON-encoded and are wrapped in json() so objects and arrays stay
// structured. fields and encoded are parallel.
func (c *compiler) compileUpdate(p filter.Predicate, fields []string, encoded []string) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("update needs at least one field")
	}
	var params []any
	setArgs := make([]string, len(fields))
	for i, f := range fields {
		setArgs[i] = "?, json(?)"
		params = append(params, jsonPath(f), encoded[i])
	}
	where, whereParams, err := c.compileWhere(p)
	if err != nil {
		return "", nil, err
	}
	params = append(params, whereParams...)
	sql := fmt.Sprintf("UPDATE %s SET body = json_set(body, %s)%s", c.table, strings.Join(setArgs, ", "), where)
	return sql, params, nil
}

// compileAggregate builds a GROUP BY query. Result columns, in order:
// one per group key, one per sum, one per avg, then the row count.
func (c *compiler) compileAggregate(q docstore.AggregateQuery) (string, []any, error) {
	var cols []string
	var params []any
	var groupAliases []string

	for i, g := range q.GroupBy {
		expr, exprParams := c.valueExpr(g)
		alias := fmt.Sprintf("g%d", i)
		cols = append(cols, expr+" AS "+alias)
		params = append(params, exprParams...)
		groupAliases = append(groupAliases, alias)
	}
	for i, f := range q.Sum {
		expr, exprParams := c.valueExpr(f)
		cols = append(cols, fmt.Sprintf("COALESCE(SUM(%s), 0) AS s%d", expr, i))
		params = append(params, exprParams...)
	}
	for i, f := range q.Avg {
		expr, exprParams := c.valueExpr(f)
		cols = append(cols, fmt.Sprintf("AVG(%s) AS a%d", expr, i))
		params = append(params, exprParams...)
	}
	cols = append(cols, "COUNT(*) AS n")

	where, whereParams, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	params = append(params, whereParams...)

	sql := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), c.table, where)
	if len(groupAliases) > 0 {
		sql += " GROUP BY " + strings.Join(groupAliases, ", ") + " ORDER BY " + strings.Join(groupAliases, ", ")
	}
	return sql, params, nil
}

func (c *compiler) compileWhere(p filter.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

// compileOrder always ends with rowid so ties resolve in insertion order.
func (c *compiler) compileOrder(keys []docstore.SortKey) (string, []any) {
	var parts []string
	var params []any
	for _, k := range keys {
		expr, exprParams := c.valueExpr(k.Field)
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
		params = append(params, exprParams...)
	}
	parts = append(parts, "rowid ASC")
	return " ORDER BY " + strings.Join(parts, ", "), params
}

// valueExpr returns the scalar expression for a field.
func (c *compiler) valueExpr(field string) (string, []any) {
	switch field {
	case schema.FieldID:
		return "id", nil
	case schema.FieldCreationTime:
		return "creation_time", nil
	default:
		return fmt.Sprintf("json_extract(%s.body, ?)", c.table), []any{jsonPath(field)}
	}
}

func (c *compiler) compilePredicate(p filter.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case filter.Compare:
		return c.compileCompare(pred)
	case *filter.Compare:
		return c.compileCompare(*pred)
	case filter.In:
		return c.compileIn(pred)
	case *filter.In:
		return c.compileIn(*pred)
	case filter.And:
		return c.compileAnd(pred)
	case *filter.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *compiler) compileAnd(and filter.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	var parts []string
	var params []any
	for _, sub := range and.Predicates {
		sql, subParams, err := c.compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

var sqlOps = map[filter.Op]string{
	filter.OpEq:  "=",
	filter.OpGt:  ">",
	filter.OpGte: ">=",
	filter.OpLt:  "<",
	filter.OpLte: "<=",
}

func (c *compiler) compileCompare(cmp filter.Compare) (string, []any, error) {
	if cmp.Op == filter.OpNe {
		sql, params, err := c.compileCompare(filter.Eq(cmp.Field, cmp.Value))
		if err != nil {
			return "", nil, err
		}
		return "NOT " + sql, params, nil
	}
	op, ok := sqlOps[cmp.Op]
	if !ok {
		return "", nil, fmt.Errorf("unsupported operator %q", cmp.Op)
	}

	if cmp.Value == nil {
		if cmp.Op != filter.OpEq {
			return "", nil, fmt.Errorf("%s %s needs a value", cmp.Field, cmp.Op)
		}
		return c.compileIsNull(cmp.Field), c.isNullParams(cmp.Field), nil
	}

	param, class, err := toParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", cmp.Field, err)
	}

	if col, ok := columnFor(cmp.Field); ok {
		return fmt.Sprintf("(%s %s ?)", col, op), []any{param}, nil
	}

	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.body, ?) WHERE value %s ? AND type IN %s)",
		c.table, op, class)
	return sql, []any{jsonPath(cmp.Field), param}, nil
}

// compileIn is a disjunction of equalities so each value keeps its own
// type class. An empty list matches nothing (or everything when negated).
func (c *compiler) compileIn(in filter.In) (string, []any, error) {
	var parts []string
	var params []any
	for _, v := range in.Values {
		sql, p, err := c.compileCompare(filter.Eq(in.Field, v))
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	sql := "0 = 1"
	if len(parts) > 0 {
		sql = "(" + strings.Join(parts, " OR ") + ")"
	}
	if in.Not {
		sql = "NOT " + sql
	}
	return sql, params, nil
}

func (c *compiler) compileIsNull(field string) string {
	if col, ok := columnFor(field); ok {
		return fmt.Sprintf("(%s IS NULL)", col)
	}
	return fmt.Sprintf("(json_type(%s.body, ?) IS NULL OR json_type(%s.body, ?) = 'null')", c.table, c.table)
}

func (c *compiler) isNullParams(field string) []any {
	if _, ok := columnFor(field); ok {
		return nil
	}
	return []any{jsonPath(field), jsonPath(field)}
}

func columnFor(field string) (string, bool) {
	switch field {
	case schema.FieldID:
		return "id", true
	case schema.FieldCreationTime:
		return "creation_time", true
	default:
		return "", false
	}
}

func jsonPath(field string) string {
	return "$." + field
}

type hexer interface {
	Hex() string
}

// Type classes keep comparisons within one JSON type, matching the
// in-memory matcher.
const (
	classNumber = "('integer', 'real')"
	classText   = "('text')"
	classBool   = "('true', 'false')"
)

// toParam converts a native filter literal into a driver parameter and the
// JSON type class it may be compared with.
func toParam(v any) (any, string, error) {
	switch val := v.(type) {
	case string:
		return val, classText, nil
	case hexer:
		return val.Hex(), classText, nil
	case bool:
		return val, classBool, nil
	case int:
		return int64(val), classNumber, nil
	case int32:
		return int64(val), classNumber, nil
	case int64:
		return val, classNumber, nil
	case float32:
		return float64(val), classNumber, nil
	case float64:
		return val, classNumber, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), classText, nil
	default:
		return nil, "", fmt.Errorf("unsupported filter value %T", v)
	}
}
