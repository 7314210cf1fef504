package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - catalog only
// 1 - creation_time index on every document table
const currentSchemaVersion = 1

// Store is the SQLite docstore adapter.
type Store struct {
	db     *sql.DB
	schema *schema.Schema
}

var _ docstore.Store = (*Store)(nil)

// Open creates or opens a SQLite database at path and makes sure every table
// of s exists.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, s *schema.Schema) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, s); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, schema: s}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) table(name string) (*schema.Table, error) {
	t, ok := s.schema.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", docstore.ErrUnknownTable, name)
	}
	return t, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the catalog and one table per schema table, then runs
// migrations. Idempotent.
func applySchema(db *sql.DB, s *schema.Schema) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, t := range s.Tables() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            TEXT PRIMARY KEY,
			creation_time INTEGER NOT NULL,
			body          TEXT NOT NULL
		)`, quoteIdent(t.Name))
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		if _, err := db.Exec(creationIndexDDL(t.Name)); err != nil {
			return fmt.Errorf("index table %s: %w", t.Name, err)
		}

		names := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			names[i] = f.Name
		}
		fields, err := json.Marshal(names)
		if err != nil {
			return fmt.Errorf("marshal fields of %s: %w", t.Name, err)
		}
		_, err = db.Exec(`
			INSERT INTO livedoc_tables (name, fields, created_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET fields = excluded.fields
		`, t.Name, string(fields), now)
		if err != nil {
			return fmt.Errorf("register table %s: %w", t.Name, err)
		}
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes creation_time on tables created before v1. New tables
// get the index from applySchema.
func migrateToV1(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM livedoc_tables ORDER BY name`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("migrate to v1: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}

	for _, name := range names {
		if _, err := db.Exec(creationIndexDDL(name)); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

func creationIndexDDL(table string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(creation_time)`,
		quoteIdent("idx_"+table+"_creation_time"), quoteIdent(table))
}

// verifyPragma checks a pragma value. Used by tests.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// quoteIdent quotes a validated identifier.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// Ping verifies the connection. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
