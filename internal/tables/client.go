package tables

import (
	"context"
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// Args is the read contract shared by every Client operation:
// where/orderBy/skip/take/select/include.
type Args struct {
	Where   filter.Predicate
	OrderBy []docstore.SortKey
	Skip    int64
	Take    int64
	Select  []string
	Include []string
}

// AggregateArgs describes one grouped aggregation.
type AggregateArgs struct {
	Where    filter.Predicate
	GroupBy  []string
	Sum      []string
	Avg      []string
	Populate []string
}

// Client is the CRUD facade for one table.
type Client struct {
	db    *DB
	table *schema.Table
}

// Name returns the table name.
func (c *Client) Name() string {
	return c.table.Name
}

func (c *Client) query(args Args) *QueryBuilder {
	return c.Query().
		Where(args.Where).
		Sort(args.OrderBy...).
		Offset(args.Skip).
		Limit(args.Take).
		Select(args.Select...).
		Populate(args.Include...)
}

// FindMany returns every matching document.
func (c *Client) FindMany(ctx context.Context, args Args) ([]docstore.Document, error) {
	return c.query(args).Find(ctx)
}

// FindFirst returns the first matching document or nil.
func (c *Client) FindFirst(ctx context.Context, args Args) (docstore.Document, error) {
	return c.query(args).FindOne(ctx)
}

// FindUnique returns the document identified by args.Where or nil.
func (c *Client) FindUnique(ctx context.Context, args Args) (docstore.Document, error) {
	if args.Where == nil {
		return nil, fmt.Errorf("%w: findUnique on %s requires a where clause", ErrValidation, c.table.Name)
	}
	return c.query(args).FindOne(ctx)
}

// Create inserts data and returns the stored document, honoring
// args.Select and args.Include.
func (c *Client) Create(ctx context.Context, data docstore.Document, args Args) (docstore.Document, error) {
	doc, err := c.nativeWrite(data)
	if err != nil {
		return nil, err
	}
	id := c.db.newID()
	doc[schema.FieldID] = id
	doc[schema.FieldCreationTime] = c.db.now().UnixMilli()

	if err := c.db.store.Insert(ctx, c.table.Name, doc); err != nil {
		return nil, fmt.Errorf("create %s: %w", c.table.Name, err)
	}
	local := docstore.ExternalDocument(doc)
	c.db.notify(c.table.Name, local)

	created, err := c.Query().
		Where(byID(id.Hex())).
		Select(args.Select...).
		Populate(args.Include...).
		FindOne(ctx)
	if err != nil {
		return nil, err
	}
	if created == nil {
		c.db.logger.Debugw("created document not visible yet, returning local copy",
			"table", c.table.Name, "id", id.Hex())
		return local, nil
	}
	return created, nil
}

// Update sets data on the first document matching args.Where and returns
// it after the update, or nil when nothing matched.
func (c *Client) Update(ctx context.Context, data docstore.Document, args Args) (docstore.Document, error) {
	if args.Where == nil {
		return nil, fmt.Errorf("%w: update on %s requires a where clause", ErrValidation, c.table.Name)
	}
	set, err := c.nativeWrite(data)
	if err != nil {
		return nil, err
	}
	target, err := c.Query().Where(args.Where).Select(schema.FieldID).FindOne(ctx)
	if err != nil || target == nil {
		return nil, err
	}
	id := target[schema.FieldID]

	if _, err := c.db.store.Update(ctx, c.table.Name, filter.Eq(schema.FieldID, docstore.ToNative(id)), set); err != nil {
		return nil, fmt.Errorf("update %s: %w", c.table.Name, err)
	}

	if len(c.db.hooks) > 0 {
		raw, err := c.Query().Where(byID(id)).FindOne(ctx)
		if err != nil {
			return nil, err
		}
		c.db.notify(c.table.Name, raw)
	}
	return c.Query().
		Where(byID(id)).
		Select(args.Select...).
		Populate(args.Include...).
		FindOne(ctx)
}

// UpdateMany sets data on every matching document and returns the count.
func (c *Client) UpdateMany(ctx context.Context, data docstore.Document, where filter.Predicate) (int64, error) {
	set, err := c.nativeWrite(data)
	if err != nil {
		return 0, err
	}
	native, err := c.nativeFilter(where)
	if err != nil {
		return 0, err
	}
	n, err := c.db.store.Update(ctx, c.table.Name, native, set)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.table.Name, err)
	}
	return n, nil
}

// Delete removes the first document matching args.Where and returns it as
// it was before removal, or nil when nothing matched.
func (c *Client) Delete(ctx context.Context, args Args) (docstore.Document, error) {
	if args.Where == nil {
		return nil, fmt.Errorf("%w: delete on %s requires a where clause", ErrValidation, c.table.Name)
	}
	before, err := c.Query().
		Where(args.Where).
		Select(args.Select...).
		Populate(args.Include...).
		FindOne(ctx)
	if err != nil || before == nil {
		return nil, err
	}
	id := before[schema.FieldID]

	var raw docstore.Document
	if len(c.db.hooks) > 0 {
		if raw, err = c.Query().Where(byID(id)).FindOne(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := c.db.store.Delete(ctx, c.table.Name, filter.Eq(schema.FieldID, docstore.ToNative(id))); err != nil {
		return nil, fmt.Errorf("delete %s: %w", c.table.Name, err)
	}
	c.db.notify(c.table.Name, raw)
	return before, nil
}

// DeleteMany removes every matching document and returns the count.
func (c *Client) DeleteMany(ctx context.Context, where filter.Predicate) (int64, error) {
	native, err := c.nativeFilter(where)
	if err != nil {
		return 0, err
	}
	n, err := c.db.store.Delete(ctx, c.table.Name, native)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.table.Name, err)
	}
	return n, nil
}

// Count returns the number of matching documents.
func (c *Client) Count(ctx context.Context, where filter.Predicate) (int64, error) {
	native, err := c.nativeFilter(where)
	if err != nil {
		return 0, err
	}
	n, err := c.db.store.Count(ctx, c.table.Name, native)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table.Name, err)
	}
	return n, nil
}

// Aggregate runs a grouped sum/avg aggregation.
func (c *Client) Aggregate(ctx context.Context, args AggregateArgs) ([]docstore.Document, error) {
	return c.Aggregation().
		Where(args.Where).
		GroupBy(args.GroupBy...).
		Sum(args.Sum...).
		Avg(args.Avg...).
		Populate(args.Populate...).
		Run(ctx)
}
