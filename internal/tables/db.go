package tables

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// MutationHook observes single-document writes. doc is the stored document
// in external form without any populated references; for deletes it is the
// document as it was before removal.
type MutationHook func(table string, doc docstore.Document)

// DB is the document context: one Client per schema table, built once.
type DB struct {
	schema  *schema.Schema
	store   docstore.Store
	logger  *zap.SugaredLogger
	strict  bool
	now     func() time.Time
	newID   func() docstore.ID
	hooks   []MutationHook
	clients map[string]*Client
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// WithStrictPopulate makes unknown populate keys fail with ErrValidation
// instead of being skipped with a warning.
func WithStrictPopulate(strict bool) Option {
	return func(db *DB) {
		db.strict = strict
	}
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// WithIDGenerator overrides id allocation for inserts.
func WithIDGenerator(gen func() docstore.ID) Option {
	return func(db *DB) {
		db.newID = gen
	}
}

// WithMutationHook registers a hook run after every Create, Update and
// Delete that touched a document.
func WithMutationHook(h MutationHook) Option {
	return func(db *DB) {
		db.hooks = append(db.hooks, h)
	}
}

// New builds the document context over store for every table of s.
func New(store docstore.Store, s *schema.Schema, opts ...Option) *DB {
	db := &DB{
		schema:  s,
		store:   store,
		logger:  zap.NewNop().Sugar(),
		now:     time.Now,
		newID:   docstore.NewID,
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(db)
	}
	for _, t := range s.Tables() {
		db.clients[t.Name] = &Client{db: db, table: t}
	}
	return db
}

// Schema returns the schema the DB was built from.
func (db *DB) Schema() *schema.Schema {
	return db.schema
}

// Table returns the client for name.
func (db *DB) Table(name string) (*Client, error) {
	c, ok := db.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return c, nil
}

// MustTable is Table for names known to exist. Panics otherwise.
func (db *DB) MustTable(name string) *Client {
	c, err := db.Table(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Find runs an unpopulated findMany on table. It is the re-query entry
// point used by the realtime broadcaster.
func (db *DB) Find(ctx context.Context, table string, where filter.Predicate) ([]docstore.Document, error) {
	c, err := db.Table(table)
	if err != nil {
		return nil, err
	}
	return c.Query().Where(where).Find(ctx)
}

func (db *DB) notify(table string, doc docstore.Document) {
	if doc == nil {
		return
	}
	for _, h := range db.hooks {
		h(table, doc)
	}
}
