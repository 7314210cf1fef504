package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/livedoc/internal/config"
	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/docstore/mongostore"
	"github.com/roach88/livedoc/internal/docstore/sqlitestore"
	"github.com/roach88/livedoc/internal/logging"
	"github.com/roach88/livedoc/internal/schema"
	"github.com/roach88/livedoc/internal/tables"
)

// pingStore is a docstore.Store that can report its own health.
type pingStore interface {
	docstore.Store
	Ping(ctx context.Context) error
}

// environment is what every data command needs: resolved config, a logger,
// the loaded schema and an open store.
type environment struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	schema *schema.Schema
	store  pingStore
}

// loadConfig resolves config and builds the logger. --verbose forces debug.
func loadConfig(opts *RootOptions, f *OutputFormatter) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, CodeConfig, "failed to load config", err)
	}
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Development: cfg.Log.Development})
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, CodeConfig, "failed to build logger", err)
	}
	return cfg, logger, nil
}

// openEnvironment loads config, schema and store. The caller must call close.
func openEnvironment(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*environment, error) {
	cfg, logger, err := loadConfig(opts, f)
	if err != nil {
		return nil, err
	}

	f.VerboseLog("Loading schema from %s", cfg.Schema.Dir)
	s, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		_ = logger.Sync()
		return nil, f.Fail(ExitCommandError, CodeSchema, "failed to load schema", err)
	}

	f.VerboseLog("Opening %s store", cfg.Store.Driver)
	st, err := openStore(ctx, cfg, s)
	if err != nil {
		_ = logger.Sync()
		return nil, f.Fail(ExitCommandError, CodeStore, "failed to open store", err)
	}
	logger.Debugw("environment ready",
		"driver", cfg.Store.Driver,
		"tables", len(s.Tables()))

	return &environment{cfg: cfg, logger: logger, schema: s, store: st}, nil
}

func openStore(ctx context.Context, cfg *config.Config, s *schema.Schema) (pingStore, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := sqlitestore.Open(cfg.Store.SQLite.Path, s)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMongo:
		st, err := mongostore.Open(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database, s)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// tablesDB builds the table DB context over the environment's store.
func (e *environment) tablesDB(opts ...tables.Option) *tables.DB {
	base := []tables.Option{
		tables.WithLogger(e.logger),
		tables.WithStrictPopulate(e.cfg.Query.StrictPopulate),
	}
	return tables.New(e.store, e.schema, append(base, opts...)...)
}

func (e *environment) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Errorw("error closing store", "error", err)
	}
	_ = e.logger.Sync()
}
